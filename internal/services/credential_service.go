package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/internal/providers"
	"github.com/aetherflow/engine/internal/repository"
	appErr "github.com/aetherflow/engine/pkg/errors"
	"github.com/aetherflow/engine/pkg/keycipher"
	"github.com/aetherflow/engine/pkg/logger"
)

// CredentialService owns encrypted provider secrets: CRUD, live verification,
// and plaintext resolution for the optimization gateway. Secrets are decrypted
// on demand and never cached.
type CredentialService interface {
	Add(ctx context.Context, userID uuid.UUID, in AddCredentialInput) (*models.Credential, error)
	List(ctx context.Context, userID uuid.UUID, provider models.Provider) ([]models.Credential, error)
	Verify(ctx context.Context, userID, credentialID uuid.UUID) (bool, error)
	Update(ctx context.Context, userID, credentialID uuid.UUID, patch UpdateCredentialInput) (*models.Credential, error)
	Delete(ctx context.Context, userID, credentialID uuid.UUID) error

	// ResolveSecret returns the decrypted secret of the user's active
	// credential for the provider, plus the credential itself (the gateway
	// needs base URL and model for custom providers). A missing credential is
	// not an error: it returns ("", nil, nil) and the caller falls back.
	ResolveSecret(ctx context.Context, userID uuid.UUID, provider models.Provider) (string, *models.Credential, error)
}

type AddCredentialInput struct {
	Provider  models.Provider
	Secret    string
	Name      string
	BaseURL   string
	ModelName string
}

type UpdateCredentialInput struct {
	Name      *string
	Active    *bool
	BaseURL   *string
	ModelName *string
	// Secret rotates the stored key: it is re-encrypted under a fresh IV.
	Secret *string
}

type credentialService struct {
	repo     repository.CredentialRepository
	cipher   *keycipher.Cipher
	caller   providers.Caller
	activity ActivityRecorder
}

func NewCredentialService(repo repository.CredentialRepository, cipher *keycipher.Cipher, caller providers.Caller, activity ActivityRecorder) CredentialService {
	return &credentialService{repo: repo, cipher: cipher, caller: caller, activity: activity}
}

var _ CredentialService = (*credentialService)(nil)

func (s *credentialService) Add(ctx context.Context, userID uuid.UUID, in AddCredentialInput) (*models.Credential, error) {
	if !in.Provider.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, "unsupported provider").WithMeta("provider", string(in.Provider))
	}
	if strings.TrimSpace(in.Secret) == "" {
		return nil, appErr.New(appErr.CodeInvalid, "secret must not be empty")
	}

	var existing models.Credential
	if err := s.repo.GetByUserAndProvider(ctx, userID, in.Provider, &existing); err == nil {
		return nil, appErr.New(appErr.CodeConflict, "credential already exists for provider").
			WithMeta("provider", string(in.Provider))
	} else if !appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, err
	}

	// Only deepseek has a defined live check today; other providers are
	// persisted without contacting the vendor.
	if info, ok := providers.Lookup(in.Provider); ok && info.Verifiable {
		probe := providers.CompletionRequest{
			BaseURL: info.BaseURL,
			Model:   info.DefaultModel,
			Secret:  in.Secret,
			Messages: []providers.Message{
				{Role: providers.RoleUser, Content: "ping"},
			},
		}
		if _, err := s.caller.Complete(ctx, probe); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeCredentialRejected, "provider rejected the supplied key").
				WithMeta("provider", string(in.Provider))
		}
	}

	ciphertext, nonce, err := s.cipher.Encrypt(in.Secret)
	if err != nil {
		return nil, err
	}

	cred := models.Credential{
		UserID:     userID,
		Provider:   in.Provider,
		Name:       in.Name,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		BaseURL:    in.BaseURL,
		ModelName:  in.ModelName,
		Active:     true,
	}
	if err := s.repo.Create(ctx, &cred); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, userID, "credential.add", "credential", cred.ID.String(), string(in.Provider))
	return &cred, nil
}

func (s *credentialService) List(ctx context.Context, userID uuid.UUID, provider models.Provider) ([]models.Credential, error) {
	if provider != "" && !provider.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, "unsupported provider").WithMeta("provider", string(provider))
	}
	return s.repo.ListByUser(ctx, userID, provider)
}

func (s *credentialService) Verify(ctx context.Context, userID, credentialID uuid.UUID) (bool, error) {
	cred, err := s.getOwned(ctx, userID, credentialID)
	if err != nil {
		return false, err
	}

	info, ok := providers.Lookup(cred.Provider)
	if !ok || !info.Verifiable {
		// No liveness check defined for this provider; report valid.
		return true, nil
	}

	secret, err := s.cipher.Decrypt(cred.Ciphertext, cred.Nonce)
	if err != nil {
		return false, err
	}

	if err := s.caller.ListModels(ctx, info.BaseURL, secret); err != nil {
		logger.L().Info("credential liveness check failed",
			zap.String("credential_id", credentialID.String()),
			zap.String("provider", string(cred.Provider)),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *credentialService) Update(ctx context.Context, userID, credentialID uuid.UUID, patch UpdateCredentialInput) (*models.Credential, error) {
	cred, err := s.getOwned(ctx, userID, credentialID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		cred.Name = *patch.Name
	}
	if patch.Active != nil {
		cred.Active = *patch.Active
	}
	if patch.BaseURL != nil {
		cred.BaseURL = *patch.BaseURL
	}
	if patch.ModelName != nil {
		cred.ModelName = *patch.ModelName
	}
	if patch.Secret != nil {
		if strings.TrimSpace(*patch.Secret) == "" {
			return nil, appErr.New(appErr.CodeInvalid, "secret must not be empty")
		}
		ciphertext, nonce, err := s.cipher.Encrypt(*patch.Secret)
		if err != nil {
			return nil, err
		}
		cred.Ciphertext = ciphertext
		cred.Nonce = nonce
	}

	if err := s.repo.Update(ctx, cred); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, userID, "credential.update", "credential", cred.ID.String(), string(cred.Provider))
	return cred, nil
}

func (s *credentialService) Delete(ctx context.Context, userID, credentialID uuid.UUID) error {
	cred, err := s.getOwned(ctx, userID, credentialID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, cred.ID); err != nil {
		return err
	}
	s.activity.Record(ctx, userID, "credential.delete", "credential", cred.ID.String(), string(cred.Provider))
	return nil
}

func (s *credentialService) ResolveSecret(ctx context.Context, userID uuid.UUID, provider models.Provider) (string, *models.Credential, error) {
	var cred models.Credential
	if err := s.repo.GetActiveByUserAndProvider(ctx, userID, provider, &cred); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return "", nil, nil
		}
		return "", nil, err
	}
	secret, err := s.cipher.Decrypt(cred.Ciphertext, cred.Nonce)
	if err != nil {
		return "", nil, err
	}
	return secret, &cred, nil
}

// getOwned loads a credential and enforces ownership.
func (s *credentialService) getOwned(ctx context.Context, userID, credentialID uuid.UUID) (*models.Credential, error) {
	var cred models.Credential
	if err := s.repo.GetByID(ctx, credentialID, &cred); err != nil {
		return nil, err
	}
	if cred.UserID != userID {
		return nil, appErr.New(appErr.CodeForbidden, "credential belongs to another user")
	}
	return &cred, nil
}
