package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/engine/internal/api/middleware"
	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/internal/services"
	appErr "github.com/aetherflow/engine/pkg/errors"
)

// Mock implementations

type mockCredentialService struct {
	mock.Mock
}

func (m *mockCredentialService) Add(ctx context.Context, userID uuid.UUID, in services.AddCredentialInput) (*models.Credential, error) {
	args := m.Called(ctx, userID, in)
	if v := args.Get(0); v != nil {
		return v.(*models.Credential), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCredentialService) List(ctx context.Context, userID uuid.UUID, provider models.Provider) ([]models.Credential, error) {
	args := m.Called(ctx, userID, provider)
	if v := args.Get(0); v != nil {
		return v.([]models.Credential), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCredentialService) Verify(ctx context.Context, userID, credentialID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, credentialID)
	return args.Bool(0), args.Error(1)
}

func (m *mockCredentialService) Update(ctx context.Context, userID, credentialID uuid.UUID, patch services.UpdateCredentialInput) (*models.Credential, error) {
	args := m.Called(ctx, userID, credentialID, patch)
	if v := args.Get(0); v != nil {
		return v.(*models.Credential), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCredentialService) Delete(ctx context.Context, userID, credentialID uuid.UUID) error {
	args := m.Called(ctx, userID, credentialID)
	return args.Error(0)
}

func (m *mockCredentialService) ResolveSecret(ctx context.Context, userID uuid.UUID, provider models.Provider) (string, *models.Credential, error) {
	args := m.Called(ctx, userID, provider)
	if v := args.Get(1); v != nil {
		return args.String(0), v.(*models.Credential), args.Error(2)
	}
	return args.String(0), nil, args.Error(2)
}

func newAPIKeysRouter(svc services.CredentialService) chi.Router {
	h := NewAPIKeysHandler(svc)
	r := chi.NewRouter()
	r.Get("/api-keys", h.List)
	r.Post("/api-keys", h.Create)
	r.Post("/api-keys/{id}/verify", h.Verify)
	r.Patch("/api-keys/{id}", h.Update)
	r.Delete("/api-keys/{id}", h.Delete)
	return r
}

func doAuthed(r http.Handler, userID uuid.UUID, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID.String()))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAPIKeysHandler_ListNeverLeaksSecrets(t *testing.T) {
	userID := uuid.New()
	svc := &mockCredentialService{}
	creds := []models.Credential{{
		ID:         uuid.New(),
		UserID:     userID,
		Provider:   models.ProviderOpenAI,
		Name:       "work key",
		Ciphertext: "6465616462656566", // never serialized
		Nonce:      "63616665",
		Active:     true,
	}}
	svc.On("List", mock.Anything, userID, models.Provider("")).Return(creds, nil).Once()

	rr := doAuthed(newAPIKeysRouter(svc), userID, http.MethodGet, "/api-keys", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	require.Contains(t, body, "openai")
	require.Contains(t, body, "work key")
	require.NotContains(t, body, "6465616462656566")
	require.NotContains(t, body, "63616665")
	require.NotContains(t, body, "ciphertext")
	require.NotContains(t, body, "nonce")
	svc.AssertExpectations(t)
}

func TestAPIKeysHandler_Create(t *testing.T) {
	userID := uuid.New()

	t.Run("created", func(t *testing.T) {
		svc := &mockCredentialService{}
		svc.On("Add", mock.Anything, userID, services.AddCredentialInput{
			Provider: models.ProviderOpenAI,
			Secret:   "sk-test",
			Name:     "work key",
		}).Return(&models.Credential{ID: uuid.New(), UserID: userID, Provider: models.ProviderOpenAI, Active: true}, nil).Once()

		rr := doAuthed(newAPIKeysRouter(svc), userID, http.MethodPost, "/api-keys",
			`{"provider":"openai","key":"sk-test","name":"work key"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown provider fails validation", func(t *testing.T) {
		svc := &mockCredentialService{}
		rr := doAuthed(newAPIKeysRouter(svc), userID, http.MethodPost, "/api-keys",
			`{"provider":"claude","key":"sk-test"}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "Add")
	})

	t.Run("duplicate maps to 409", func(t *testing.T) {
		svc := &mockCredentialService{}
		svc.On("Add", mock.Anything, userID, mock.Anything).
			Return(nil, appErr.New(appErr.CodeConflict, "credential already exists for provider")).Once()

		rr := doAuthed(newAPIKeysRouter(svc), userID, http.MethodPost, "/api-keys",
			`{"provider":"openai","key":"sk-test"}`)
		require.Equal(t, http.StatusConflict, rr.Code)
		require.Contains(t, rr.Body.String(), "conflict")
	})

	t.Run("rejected key maps to 400", func(t *testing.T) {
		svc := &mockCredentialService{}
		svc.On("Add", mock.Anything, userID, mock.Anything).
			Return(nil, appErr.New(appErr.CodeCredentialRejected, "provider rejected the supplied key")).Once()

		rr := doAuthed(newAPIKeysRouter(svc), userID, http.MethodPost, "/api-keys",
			`{"provider":"deepseek","key":"sk-bad"}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Contains(t, rr.Body.String(), "credential_rejected")
	})

	t.Run("missing identity is unauthorized", func(t *testing.T) {
		svc := &mockCredentialService{}
		req := httptest.NewRequest(http.MethodPost, "/api-keys", strings.NewReader(`{"provider":"openai","key":"sk"}`))
		rr := httptest.NewRecorder()
		newAPIKeysRouter(svc).ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAPIKeysHandler_Verify(t *testing.T) {
	userID := uuid.New()
	credID := uuid.New()

	svc := &mockCredentialService{}
	svc.On("Verify", mock.Anything, userID, credID).Return(false, nil).Once()

	rr := doAuthed(newAPIKeysRouter(svc), userID, http.MethodPost, "/api-keys/"+credID.String()+"/verify", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"valid":false`)

	rr = doAuthed(newAPIKeysRouter(svc), userID, http.MethodPost, "/api-keys/not-a-uuid/verify", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPIKeysHandler_Delete(t *testing.T) {
	userID := uuid.New()
	credID := uuid.New()

	svc := &mockCredentialService{}
	svc.On("Delete", mock.Anything, userID, credID).
		Return(appErr.New(appErr.CodeForbidden, "credential belongs to another user")).Once()

	rr := doAuthed(newAPIKeysRouter(svc), userID, http.MethodDelete, "/api-keys/"+credID.String(), "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	svc.AssertExpectations(t)
}
