package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OptimizationRecord is one prompt-optimization history entry. Multi-round
// refinement appends to Iterations and overwrites the top-level optimized
// fields; earlier iterations are never removed.
type OptimizationRecord struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	OriginalPrompt   string         `gorm:"type:text;not null" json:"original_prompt"`
	OptimizedPrompt  string         `gorm:"type:text" json:"optimized_prompt"`
	Improvements     string         `gorm:"type:text" json:"improvements"`
	ExpectedBenefits string         `gorm:"type:text" json:"expected_benefits"`
	Category         string         `gorm:"type:varchar(32)" json:"category"`
	Provider         string         `gorm:"type:varchar(32)" json:"provider"`
	Model            string         `gorm:"type:varchar(128)" json:"model"`
	Rating           *int           `json:"rating,omitempty"`
	Iterations       datatypes.JSON `gorm:"type:jsonb" json:"iterations"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Iteration is one refinement round stored inside OptimizationRecord.Iterations.
type Iteration struct {
	OptimizedPrompt  string    `json:"optimized_prompt"`
	Improvements     string    `json:"improvements"`
	ExpectedBenefits string    `json:"expected_benefits"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *OptimizationRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
