// Package jobs runs the background maintenance work: retrying missing
// thumbnails and pruning expired refresh tokens.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linksaver/linksaver/internal/auth"
	"github.com/linksaver/linksaver/internal/links"
)

const backfillBatchSize = 200

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron  *cron.Cron
	auth  *auth.Service
	links *links.Service
}

func NewScheduler(authService *auth.Service, linkService *links.Service) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		auth:  authService,
		links: linkService,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() {
	// Retry missing thumbnails nightly at 4:00 AM
	s.cron.AddFunc("0 4 * * *", func() {
		log.Println("Running thumbnail backfill job...")
		s.backfillThumbnails()
	})

	// Prune expired refresh tokens daily at 3:30 AM
	s.cron.AddFunc("30 3 * * *", func() {
		log.Println("Running refresh token cleanup job...")
		s.cleanupRefreshTokens()
	})

	s.cron.Start()
	log.Println("Job scheduler started")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Job scheduler stopped")
}

func (s *Scheduler) backfillThumbnails() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	filled, err := s.links.BackfillMissingThumbnails(ctx, backfillBatchSize)
	if err != nil {
		log.Printf("Failed to backfill thumbnails: %v", err)
		return
	}

	log.Printf("Backfilled %d missing thumbnails", filled)
}

func (s *Scheduler) cleanupRefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.auth.CleanupExpiredTokens(ctx)
	if err != nil {
		log.Printf("Failed to cleanup expired refresh tokens: %v", err)
		return
	}

	log.Printf("Cleaned up %d expired refresh tokens", removed)
}
