package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/internal/repository"
	"github.com/aetherflow/engine/pkg/logger"
)

// TypeActivityRecord is the asynq task type for activity-log writes.
const TypeActivityRecord = "activity:record"

// ActivityPayload is the wire form of one activity record.
type ActivityPayload struct {
	UserID   string `json:"user_id"`
	Action   string `json:"action"`
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// ActivityTaskHandler drains activity:record tasks into the activity log table.
type ActivityTaskHandler struct {
	repo repository.ActivityRepository
}

func NewActivityTaskHandler(repo repository.ActivityRepository) *ActivityTaskHandler {
	return &ActivityTaskHandler{repo: repo}
}

// HandleRecord persists one activity record. Malformed payloads are dropped
// rather than retried: replaying them can never succeed.
func (h *ActivityTaskHandler) HandleRecord(ctx context.Context, t *asynq.Task) error {
	var p ActivityPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Warn("dropping malformed activity payload", zap.Error(err))
		return nil
	}

	uid, err := uuid.Parse(p.UserID)
	if err != nil {
		logger.L().Warn("dropping activity payload with bad user id", zap.String("user_id", p.UserID))
		return nil
	}

	rec := models.ActivityLog{
		UserID:   uid,
		Action:   p.Action,
		Entity:   p.Entity,
		EntityID: p.EntityID,
		Detail:   p.Detail,
	}
	if err := h.repo.Create(ctx, &rec); err != nil {
		logger.L().Error("persist activity record failed", zap.Error(err), zap.String("action", p.Action))
		return err
	}
	return nil
}
