package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetherflow/engine/internal/models"
	appErr "github.com/aetherflow/engine/pkg/errors"
)

type CredentialRepository interface {
	BaseRepository[models.Credential]
	ListByUser(ctx context.Context, userID uuid.UUID, provider models.Provider) ([]models.Credential, error)
	GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider models.Provider, dest *models.Credential) error
	GetActiveByUserAndProvider(ctx context.Context, userID uuid.UUID, provider models.Provider, dest *models.Credential) error
}

type credentialRepository struct {
	BaseRepository[models.Credential]
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{BaseRepository: NewBaseRepository[models.Credential](db), db: db}
}

// ListByUser returns a user's credentials, newest first. An empty provider
// returns all of them.
func (r *credentialRepository) ListByUser(ctx context.Context, userID uuid.UUID, provider models.Provider) ([]models.Credential, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	var items []models.Credential
	if err := q.Order("updated_at DESC").Find(&items).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list credentials failed")
	}
	return items, nil
}

func (r *credentialRepository) GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider models.Provider, dest *models.Credential) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(dest).Error
	if err == gorm.ErrRecordNotFound {
		return appErr.New(appErr.CodeNotFound, "credential not found")
	}
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "get credential failed")
	}
	return nil
}

func (r *credentialRepository) GetActiveByUserAndProvider(ctx context.Context, userID uuid.UUID, provider models.Provider, dest *models.Credential) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND active = ?", userID, provider, true).
		First(dest).Error
	if err == gorm.ErrRecordNotFound {
		return appErr.New(appErr.CodeNotFound, "no active credential")
	}
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "get active credential failed")
	}
	return nil
}
