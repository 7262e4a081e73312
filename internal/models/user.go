package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a user account. Password is null for OAuth-only accounts
// and otherwise holds a bcrypt hash, never plaintext.
type User struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string    `json:"name" gorm:"size:100;not null"`
	Email         string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Password      *string   `json:"-" gorm:"size:255"` // Never expose password in JSON
	Avatar        *string   `json:"avatar" gorm:"size:500"`
	Role          string    `json:"role" gorm:"size:50;not null;default:user"`
	OAuthProvider *string   `json:"-" gorm:"column:oauth_provider;size:50"`
	OAuthID       *string   `json:"-" gorm:"column:oauth_id;size:255"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships (optional, for eager loading)
	Links         []Link         `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	RefreshTokens []RefreshToken `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID primary key (GORM hook)
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasPassword reports whether this is a password account.
// OAuth-only users have none and can never log in with a password.
func (u *User) HasPassword() bool {
	return u.Password != nil && *u.Password != ""
}
