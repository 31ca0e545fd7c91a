package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aetherflow/engine/internal/api/types"
	"github.com/aetherflow/engine/internal/api/validators"
	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/internal/services"
)

type OptimizeHandler struct {
	optimize services.OptimizeService
}

func NewOptimizeHandler(optimize services.OptimizeService) *OptimizeHandler {
	return &OptimizeHandler{optimize: optimize}
}

func (h *OptimizeHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req types.OptimizeRequest
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

	result, err := h.optimize.Optimize(r.Context(), userID, services.OptimizeInput{
		Content:      req.Content,
		Category:     req.Category,
		Provider:     models.Provider(req.Provider),
		Model:        req.Model,
		UseClientKey: req.UseClientAPI,
		ClientKey:    req.APIKey,
		HistoryID:    req.HistoryID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: result})
}

func (h *OptimizeHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	items, total, err := h.optimize.History(r.Context(), userID, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    items,
		Meta:    &types.Meta{Page: page, PageSize: size, Total: total},
	})
}

func (h *OptimizeHandler) HistoryByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	recID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid history id")
		return
	}

	rec, err := h.optimize.HistoryByID(r.Context(), userID, recID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: rec})
}

func (h *OptimizeHandler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	recID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid history id")
		return
	}

	var req types.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.optimize.Rate(r.Context(), userID, recID, req.Score); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"message": "rating saved"}})
}
