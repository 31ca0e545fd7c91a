package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetherflow/engine/internal/models"
	appErr "github.com/aetherflow/engine/pkg/errors"
)

type ActivityRepository interface {
	BaseRepository[models.ActivityLog]
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ActivityLog, error)
}

type activityRepository struct {
	BaseRepository[models.ActivityLog]
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{BaseRepository: NewBaseRepository[models.ActivityLog](db), db: db}
}

func (r *activityRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []models.ActivityLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list activity failed")
	}
	return items, nil
}
