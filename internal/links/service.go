// Package links implements saving and listing of watch-later links,
// including source classification and best-effort thumbnail resolution.
package links

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/linksaver/linksaver/internal/apperror"
	"github.com/linksaver/linksaver/internal/metadata"
	"github.com/linksaver/linksaver/internal/models"
)

const (
	maxURLLen   = 2048
	maxTitleLen = 500

	// resolveBudget caps all metadata work done inside a single request.
	// The resolver's per-step timeouts add up to more than the server's
	// write timeout, so without this cap a hung host keeps the response
	// from ever reaching the client.
	resolveBudget = 10 * time.Second

	// maxListBackfill bounds thumbnail retries per list request; the
	// nightly sweep picks up the rest.
	maxListBackfill = 5
)

// Broadcaster pushes link events to the owning user's connected clients.
// A nil Broadcaster disables events.
type Broadcaster interface {
	BroadcastToUser(userID, messageType string, payload any)
}

// Service owns link persistence and metadata resolution.
type Service struct {
	db       *gorm.DB
	resolver metadata.Resolver
	hub      Broadcaster
}

func NewService(db *gorm.DB, resolver metadata.Resolver, hub Broadcaster) *Service {
	return &Service{db: db, resolver: resolver, hub: hub}
}

// CreateInput carries the caller-supplied fields of a new link. Optional
// fields left nil are filled from resolved metadata where possible.
type CreateInput struct {
	URL          string
	Source       *string
	Title        *string
	Category     *string
	ThumbnailURL *string
}

// Create validates and saves a link. Metadata resolution is best-effort:
// a link is always saved even when the resolver comes back empty, and
// caller-supplied values are never overwritten by resolved ones.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.Link, error) {
	rawURL := strings.TrimSpace(in.URL)
	if rawURL == "" {
		return nil, apperror.Validation("url", "URL is required")
	}
	if len(rawURL) > maxURLLen {
		return nil, apperror.Validation("url", "URL must be at most 2048 characters")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, apperror.Validation("url", "URL must be a valid http or https URL")
	}

	link := &models.Link{
		UserID: userID,
		URL:    rawURL,
		Source: InferSource(rawURL),
	}

	if in.Source != nil {
		source := strings.ToLower(strings.TrimSpace(*in.Source))
		if source != "" {
			if !models.ValidSource(source) {
				return nil, apperror.Validation("source", "Unknown source")
			}
			link.Source = source
		}
	}
	if in.Title != nil {
		if title := strings.TrimSpace(*in.Title); title != "" {
			if runes := []rune(title); len(runes) > maxTitleLen {
				title = string(runes[:maxTitleLen])
			}
			link.Title = &title
		}
	}
	if in.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*in.Category))
		if category != "" {
			if !ValidCategory(category) {
				return nil, apperror.Validation("category", "Unknown category")
			}
			link.Category = &category
		}
	}
	if in.ThumbnailURL != nil {
		if thumb := strings.TrimSpace(*in.ThumbnailURL); thumb != "" {
			link.ThumbnailURL = &thumb
		}
	}

	if link.Title == nil || link.ThumbnailURL == nil {
		rctx, cancel := context.WithTimeout(ctx, resolveBudget)
		md := s.resolver.Resolve(rctx, rawURL)
		cancel()
		if link.Title == nil && md.Title != "" {
			link.Title = &md.Title
		}
		if link.ThumbnailURL == nil && md.ThumbnailURL != "" {
			link.ThumbnailURL = &md.ThumbnailURL
		}
	}

	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		return nil, err
	}

	s.broadcast(userID, "link_created", link)
	return link, nil
}

// ListOptions filters the listing. Empty fields are ignored.
type ListOptions struct {
	Search   string
	Source   string
	Category string
}

// List returns the user's links, newest first. A bounded number of links
// still missing a thumbnail get one more resolution attempt, persisted
// inline so the next listing is served from storage.
func (s *Service) List(ctx context.Context, userID string, opts ListOptions) ([]models.Link, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)

	if source := strings.TrimSpace(opts.Source); source != "" {
		query = query.Where("source = ?", source)
	}
	if category := strings.TrimSpace(opts.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if search := strings.ToLower(strings.TrimSpace(opts.Search)); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("LOWER(url) LIKE ? OR LOWER(title) LIKE ?", pattern, pattern)
	}

	var list []models.Link
	if err := query.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, resolveBudget)
	defer cancel()

	attempts := 0
	for i := range list {
		if list[i].ThumbnailURL != nil {
			continue
		}
		if attempts >= maxListBackfill || rctx.Err() != nil {
			break
		}
		attempts++
		if thumb := s.resolver.ResolveThumbnail(rctx, list[i].URL); thumb != "" {
			if err := s.saveThumbnail(ctx, &list[i], thumb); err != nil {
				log.Printf("links: backfill thumbnail for %s: %v", list[i].ID, err)
			}
		}
	}

	return list, nil
}

// Get returns a single link scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, linkID string) (*models.Link, error) {
	var link models.Link
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", linkID, userID).
		First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperror.NotFound("link")
		}
		return nil, err
	}
	return &link, nil
}

// Delete removes a link scoped to its owner.
func (s *Service) Delete(ctx context.Context, userID, linkID string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", linkID, userID).
		Delete(&models.Link{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("link")
	}
	s.broadcast(userID, "link_deleted", map[string]string{"id": linkID})
	return nil
}

// BackfillMissingThumbnails retries thumbnail resolution for links that
// still have none, across all users. Returns how many were filled.
func (s *Service) BackfillMissingThumbnails(ctx context.Context, limit int) (int, error) {
	var pending []models.Link
	err := s.db.WithContext(ctx).
		Where("thumbnail_url IS NULL").
		Order("created_at DESC").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	filled := 0
	for i := range pending {
		thumb := s.resolver.ResolveThumbnail(ctx, pending[i].URL)
		if thumb == "" {
			continue
		}
		if err := s.saveThumbnail(ctx, &pending[i], thumb); err != nil {
			log.Printf("links: backfill thumbnail for %s: %v", pending[i].ID, err)
			continue
		}
		filled++
	}

	return filled, nil
}

func (s *Service) saveThumbnail(ctx context.Context, link *models.Link, thumb string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Link{}).
		Where("id = ?", link.ID).
		Update("thumbnail_url", thumb).Error
	if err != nil {
		return err
	}
	link.ThumbnailURL = &thumb
	s.broadcast(link.UserID, "link_updated", link)
	return nil
}

func (s *Service) broadcast(userID, messageType string, payload any) {
	if s.hub != nil {
		s.hub.BroadcastToUser(userID, messageType, payload)
	}
}
