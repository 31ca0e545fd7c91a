package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by tasks)
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// Mock implementations

type mockActivityRepository struct {
	mock.Mock
}

func (m *mockActivityRepository) Create(ctx context.Context, obj *models.ActivityLog) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockActivityRepository) GetByID(ctx context.Context, id any, dest *models.ActivityLog) error {
	args := m.Called(ctx, id, dest)
	return args.Error(0)
}

func (m *mockActivityRepository) Update(ctx context.Context, obj *models.ActivityLog) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockActivityRepository) Delete(ctx context.Context, id any) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockActivityRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	args := m.Called(ctx, userID, limit)
	if v := args.Get(0); v != nil {
		return v.([]models.ActivityLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestActivityTaskHandler_HandleRecord(t *testing.T) {
	userID := uuid.New()

	t.Run("persists a well-formed record", func(t *testing.T) {
		repo := &mockActivityRepository{}
		handler := NewActivityTaskHandler(repo)

		payload := ActivityPayload{
			UserID:   userID.String(),
			Action:   "credential.add",
			Entity:   "credential",
			EntityID: uuid.NewString(),
			Detail:   "openai",
		}
		pb, _ := json.Marshal(payload)
		task := asynq.NewTask(TypeActivityRecord, pb)

		repo.On("Create", mock.Anything, mock.MatchedBy(func(rec *models.ActivityLog) bool {
			return rec.UserID == userID && rec.Action == "credential.add" && rec.Entity == "credential"
		})).Return(nil).Once()

		require.NoError(t, handler.HandleRecord(context.Background(), task))
		mock.AssertExpectationsForObjects(t, repo)
	})

	t.Run("drops malformed payload without retry", func(t *testing.T) {
		repo := &mockActivityRepository{}
		handler := NewActivityTaskHandler(repo)

		task := asynq.NewTask(TypeActivityRecord, []byte("{not json"))
		require.NoError(t, handler.HandleRecord(context.Background(), task))
		repo.AssertNotCalled(t, "Create")
	})

	t.Run("drops payload with bad user id", func(t *testing.T) {
		repo := &mockActivityRepository{}
		handler := NewActivityTaskHandler(repo)

		pb, _ := json.Marshal(ActivityPayload{UserID: "nope", Action: "credential.add"})
		task := asynq.NewTask(TypeActivityRecord, pb)
		require.NoError(t, handler.HandleRecord(context.Background(), task))
		repo.AssertNotCalled(t, "Create")
	})

	t.Run("persistence failure is returned for retry", func(t *testing.T) {
		repo := &mockActivityRepository{}
		handler := NewActivityTaskHandler(repo)

		pb, _ := json.Marshal(ActivityPayload{UserID: userID.String(), Action: "prompt.optimize", Entity: "optimization"})
		task := asynq.NewTask(TypeActivityRecord, pb)

		dbErr := errors.New("connection reset")
		repo.On("Create", mock.Anything, mock.Anything).Return(dbErr).Once()

		require.ErrorIs(t, handler.HandleRecord(context.Background(), task), dbErr)
		mock.AssertExpectationsForObjects(t, repo)
	})
}
