package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Link sources. Links always carry one of these; unrecognized hosts
// fall back to SourceOther.
const (
	SourceInstagram = "instagram"
	SourceFacebook  = "facebook"
	SourceTwitter   = "twitter"
	SourceTikTok    = "tiktok"
	SourceYouTube   = "youtube"
	SourceLinkedIn  = "linkedin"
	SourceOther     = "other"
)

// Link represents a saved link. Title and ThumbnailURL are best-effort
// metadata; ThumbnailURL stays null until a resolver step succeeds and is
// never re-resolved afterwards.
type Link struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       string    `json:"user_id" gorm:"type:uuid;not null;index"`
	URL          string    `json:"url" gorm:"size:2048;not null"`
	Source       string    `json:"source" gorm:"size:20;not null;default:other;index"`
	Title        *string   `json:"title" gorm:"size:500"`
	Category     *string   `json:"category" gorm:"size:50"`
	ThumbnailURL *string   `json:"thumbnail_url" gorm:"column:thumbnail_url;size:2048"`
	CreatedAt    time.Time `json:"created_at"`

	// Relationships (optional, for eager loading)
	User User `json:"-" gorm:"foreignKey:UserID"`
}

// TableName specifies the table name for Link
func (Link) TableName() string {
	return "links"
}

// BeforeCreate assigns a UUID primary key (GORM hook)
func (l *Link) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// ValidSource reports whether s is one of the known source values.
func ValidSource(s string) bool {
	switch s {
	case SourceInstagram, SourceFacebook, SourceTwitter, SourceTikTok,
		SourceYouTube, SourceLinkedIn, SourceOther:
		return true
	}
	return false
}
