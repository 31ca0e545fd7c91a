package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLog records one user-visible mutation. Writes to it are always
// best-effort: a failed log entry must never fail the primary operation.
type ActivityLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Action    string    `gorm:"type:varchar(64);not null" json:"action"`
	Entity    string    `gorm:"type:varchar(64);not null" json:"entity"`
	EntityID  string    `gorm:"type:varchar(64)" json:"entity_id"`
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
