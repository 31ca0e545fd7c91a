package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential stores one encrypted provider secret per (user, provider) pair.
// The plaintext secret never touches this struct: only the hex ciphertext and
// the IV used for that specific encryption are persisted.
type Credential struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_credentials_user_provider" json:"user_id"`
	Provider   Provider  `gorm:"type:varchar(32);not null;uniqueIndex:idx_credentials_user_provider" json:"provider"`
	Name       string    `gorm:"type:varchar(128)" json:"name"`
	Ciphertext string    `gorm:"type:text;not null" json:"-"`
	Nonce      string    `gorm:"type:varchar(64);not null" json:"-"`

	// Only meaningful for custom providers; registry defaults apply otherwise.
	BaseURL   string `gorm:"type:varchar(255)" json:"base_url,omitempty"`
	ModelName string `gorm:"type:varchar(128)" json:"model_name,omitempty"`

	Active    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
