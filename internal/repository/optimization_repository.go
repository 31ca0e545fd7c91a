package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetherflow/engine/internal/models"
	appErr "github.com/aetherflow/engine/pkg/errors"
)

type OptimizationRepository interface {
	BaseRepository[models.OptimizationRecord]
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.OptimizationRecord, int64, error)
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID, dest *models.OptimizationRecord) error
}

type optimizationRepository struct {
	BaseRepository[models.OptimizationRecord]
	db *gorm.DB
}

func NewOptimizationRepository(db *gorm.DB) OptimizationRepository {
	return &optimizationRepository{BaseRepository: NewBaseRepository[models.OptimizationRecord](db), db: db}
}

func (r *optimizationRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.OptimizationRecord, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.OptimizationRecord{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "count optimization history failed")
	}

	var items []models.OptimizationRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "list optimization history failed")
	}
	return items, total, nil
}

func (r *optimizationRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID, dest *models.OptimizationRecord) error {
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(dest).Error
	if err == gorm.ErrRecordNotFound {
		return appErr.New(appErr.CodeNotFound, "optimization record not found")
	}
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "get optimization record failed")
	}
	return nil
}
