package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aetherflow/engine/internal/queue/tasks"
	"github.com/aetherflow/engine/pkg/logger"
)

// ActivityRecorder emits activity records for user-visible mutations.
// Recording is fire-and-forget: implementations must never return an error to
// the primary operation.
type ActivityRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, action, entity, entityID, detail string)
}

type asynqActivityRecorder struct {
	client *asynq.Client
}

// NewActivityRecorder returns a recorder that enqueues activity:record tasks.
// A nil client is tolerated (tests, single-process dev runs) and only warns.
func NewActivityRecorder(client *asynq.Client) ActivityRecorder {
	return &asynqActivityRecorder{client: client}
}

func (r *asynqActivityRecorder) Record(ctx context.Context, userID uuid.UUID, action, entity, entityID, detail string) {
	payload := tasks.ActivityPayload{
		UserID:   userID.String(),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   detail,
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		logger.L().Warn("marshal activity payload failed", zap.Error(err))
		return
	}
	if r.client == nil {
		logger.L().Warn("asynq client not configured, skipping activity record", zap.String("action", action))
		return
	}
	if _, err := r.client.EnqueueContext(ctx, asynq.NewTask(tasks.TypeActivityRecord, pb)); err != nil {
		logger.L().Error("enqueue activity record failed", zap.Error(err), zap.String("action", action))
	}
}
