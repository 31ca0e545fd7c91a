package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aetherflow/engine/internal/api/middleware"
	"github.com/aetherflow/engine/internal/api/types"
	"github.com/aetherflow/engine/internal/api/validators"
	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/internal/services"
)

type APIKeysHandler struct {
	credentials services.CredentialService
}

func NewAPIKeysHandler(credentials services.CredentialService) *APIKeysHandler {
	return &APIKeysHandler{credentials: credentials}
}

func (h *APIKeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.CredentialCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	cred, err := h.credentials.Add(r.Context(), userID, services.AddCredentialInput{
		Provider:  models.Provider(req.Provider),
		Secret:    req.Key,
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		ModelName: req.ModelName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: cred})
}

func (h *APIKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	provider := models.Provider(r.URL.Query().Get("provider"))
	items, err := h.credentials.List(r.Context(), userID, provider)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *APIKeysHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	credID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	valid, err := h.credentials.Verify(r.Context(), userID, credID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]bool{"valid": valid}})
}

func (h *APIKeysHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	credID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	var req types.CredentialUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}

	cred, err := h.credentials.Update(r.Context(), userID, credID, services.UpdateCredentialInput{
		Name:      req.Name,
		Active:    req.IsActive,
		BaseURL:   req.BaseURL,
		ModelName: req.ModelName,
		Secret:    req.Key,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: cred})
}

func (h *APIKeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	credID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	if err := h.credentials.Delete(r.Context(), userID, credID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"message": "credential deleted"}})
}

// currentUser extracts the authenticated user id or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	uid, err := uuid.Parse(middleware.GetUserID(r.Context()))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return uid, true
}
