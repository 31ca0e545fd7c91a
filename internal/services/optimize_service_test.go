package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/internal/providers"
	"github.com/aetherflow/engine/internal/repository"
	appErr "github.com/aetherflow/engine/pkg/errors"
)

type optimizeHarness struct {
	svc      OptimizeService
	creds    CredentialService
	records  repository.OptimizationRepository
	caller   *mockCaller
	sink     *captureSink
	activity *captureActivity
}

func newOptimizeHarness(t *testing.T, fallbacks staticFallbacks) *optimizeHarness {
	t.Helper()
	db := newTestDB(t)
	caller := &mockCaller{}
	sink := &captureSink{}
	activity := &captureActivity{}
	creds := NewCredentialService(repository.NewCredentialRepository(db), newTestCipher(t), caller, activity)
	records := repository.NewOptimizationRepository(db)
	svc := NewOptimizeService(records, creds, caller, fallbacks, activity, sink)
	return &optimizeHarness{
		svc:      svc,
		creds:    creds,
		records:  records,
		caller:   caller,
		sink:     sink,
		activity: activity,
	}
}

const wellFormedResponse = "优化后的提示词：\n写一首关于秋天的十四行诗，包含落叶与黄昏的意象。\n\n" +
	"改进说明：\n明确了体裁和意象。\n\n" +
	"预期效果：\n输出更聚焦。"

func TestOptimize_EmptyContent(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	_, err := h.svc.Optimize(context.Background(), uuid.New(), OptimizeInput{Content: "   "})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestOptimize_UnsupportedProvider(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	_, err := h.svc.Optimize(context.Background(), uuid.New(), OptimizeInput{
		Content:  "write a poem",
		Provider: "claude",
	})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestOptimize_MockFallbackWithoutAnySecret(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()

	res, err := h.svc.Optimize(context.Background(), userID, OptimizeInput{Content: "write a poem"})
	require.NoError(t, err)
	require.Equal(t, models.ProviderOpenAI, res.Provider)
	require.True(t, strings.HasSuffix(res.Model, "-mock"))
	require.NotEmpty(t, res.OptimizedPrompt)
	require.Contains(t, res.OptimizedPrompt, "write a poem")
	h.caller.AssertNotCalled(t, "Complete")

	// The mock round is persisted like any other.
	var rec models.OptimizationRecord
	require.NoError(t, h.records.GetByIDForUser(context.Background(), res.HistoryID, userID, &rec))
	require.Equal(t, "write a poem", rec.OriginalPrompt)
	require.Equal(t, "openai", rec.Provider)

	incs := h.sink.counters("optimize_requests_total")
	require.Len(t, incs, 1)
	require.Equal(t, "mock", incs[0].labels["mode"])
	require.Equal(t, []string{"prompt.optimize"}, h.activity.recorded())
}

func TestOptimize_CustomProviderWithoutEndpointIsMock(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{"custom": "sk-env"})

	res, err := h.svc.Optimize(context.Background(), uuid.New(), OptimizeInput{
		Content:  "summarize this",
		Provider: models.ProviderCustom,
	})
	require.NoError(t, err)
	require.Equal(t, "custom-mock", res.Model)
	h.caller.AssertNotCalled(t, "Complete")
}

func TestOptimize_ClientKeyTakesPriority(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{"openai": "sk-env"})
	userID := uuid.New()

	h.caller.On("Complete", mock.Anything, mock.MatchedBy(func(req providers.CompletionRequest) bool {
		return req.Secret == "sk-client" &&
			req.BaseURL == "https://api.openai.com/v1" &&
			req.Model == "gpt-4o-mini" &&
			len(req.Messages) == 2
	})).Return(wellFormedResponse, nil).Once()

	res, err := h.svc.Optimize(context.Background(), userID, OptimizeInput{
		Content:   "write a poem",
		ClientKey: "sk-client",
	})
	require.NoError(t, err)
	require.Equal(t, "写一首关于秋天的十四行诗，包含落叶与黄昏的意象。", res.OptimizedPrompt)
	require.Equal(t, "明确了体裁和意象。", res.Improvements)
	require.Equal(t, "输出更聚焦。", res.ExpectedBenefits)
	require.Equal(t, "gpt-4o-mini", res.Model)
	h.caller.AssertExpectations(t)

	incs := h.sink.counters("optimize_requests_total")
	require.Len(t, incs, 1)
	require.Equal(t, "real", incs[0].labels["mode"])

	// The client key must not be stored anywhere.
	items, err := h.creds.List(context.Background(), userID, "")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestOptimize_UsesStoredCredential(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()

	_, err := h.creds.Add(context.Background(), userID, AddCredentialInput{
		Provider: models.ProviderOpenAI,
		Secret:   "sk-stored",
	})
	require.NoError(t, err)

	h.caller.On("Complete", mock.Anything, mock.MatchedBy(func(req providers.CompletionRequest) bool {
		return req.Secret == "sk-stored" && req.BaseURL == "https://api.openai.com/v1"
	})).Return(wellFormedResponse, nil).Once()

	res, err := h.svc.Optimize(context.Background(), userID, OptimizeInput{Content: "write a poem"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", res.Model)
	h.caller.AssertExpectations(t)
}

func TestOptimize_CustomCredentialCarriesEndpointAndModel(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()

	_, err := h.creds.Add(context.Background(), userID, AddCredentialInput{
		Provider:  models.ProviderCustom,
		Secret:    "sk-custom",
		BaseURL:   "https://llm.internal/v1",
		ModelName: "qwen-plus",
	})
	require.NoError(t, err)

	h.caller.On("Complete", mock.Anything, mock.MatchedBy(func(req providers.CompletionRequest) bool {
		return req.Secret == "sk-custom" &&
			req.BaseURL == "https://llm.internal/v1" &&
			req.Model == "qwen-plus"
	})).Return(wellFormedResponse, nil).Once()

	res, err := h.svc.Optimize(context.Background(), userID, OptimizeInput{
		Content:  "write a poem",
		Provider: models.ProviderCustom,
	})
	require.NoError(t, err)
	require.Equal(t, "qwen-plus", res.Model)
	h.caller.AssertExpectations(t)
}

func TestOptimize_UpstreamFailure(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{"openai": "sk-env"})

	h.caller.On("Complete", mock.Anything, mock.Anything).
		Return("", appErr.Wrap(errors.New("timeout"), appErr.CodeUpstream, "provider call failed")).Once()

	_, err := h.svc.Optimize(context.Background(), uuid.New(), OptimizeInput{Content: "write a poem"})
	require.True(t, appErr.IsCode(err, appErr.CodeUpstream))
	require.Len(t, h.sink.counters("optimize_failures_total"), 1)
	require.Empty(t, h.sink.counters("optimize_requests_total"))
}

func TestOptimize_ContinuationAppendsIteration(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()
	ctx := context.Background()

	round2Response := "优化后的提示词：\n第二轮优化的诗歌提示词。\n\n改进说明：\n进一步收紧了约束。\n\n预期效果：\n更稳定的输出。"

	// First round: system + user.
	h.caller.On("Complete", mock.Anything, mock.MatchedBy(func(req providers.CompletionRequest) bool {
		return len(req.Messages) == 2
	})).Return(wellFormedResponse, nil).Once()
	// Refinement round replays the prior answer: system + user + assistant + user.
	h.caller.On("Complete", mock.Anything, mock.MatchedBy(func(req providers.CompletionRequest) bool {
		return len(req.Messages) == 4 &&
			req.Messages[2].Role == providers.RoleAssistant &&
			req.Messages[2].Content == "写一首关于秋天的十四行诗，包含落叶与黄昏的意象。"
	})).Return(round2Response, nil).Once()

	first, err := h.svc.Optimize(ctx, userID, OptimizeInput{Content: "write a poem", ClientKey: "sk-client"})
	require.NoError(t, err)

	second, err := h.svc.Optimize(ctx, userID, OptimizeInput{
		Content:   "write a poem",
		ClientKey: "sk-client",
		HistoryID: first.HistoryID.String(),
	})
	require.NoError(t, err)
	require.Equal(t, first.HistoryID, second.HistoryID)
	h.caller.AssertExpectations(t)

	var rec models.OptimizationRecord
	require.NoError(t, h.records.GetByIDForUser(ctx, first.HistoryID, userID, &rec))
	require.Equal(t, "第二轮优化的诗歌提示词。", rec.OptimizedPrompt)

	var iterations []models.Iteration
	require.NoError(t, json.Unmarshal(rec.Iterations, &iterations))
	require.Len(t, iterations, 2)
	require.Equal(t, "写一首关于秋天的十四行诗，包含落叶与黄昏的意象。", iterations[0].OptimizedPrompt)
	require.Equal(t, "第二轮优化的诗歌提示词。", iterations[1].OptimizedPrompt)

	// Both rounds live in one history entry.
	_, total, err := h.svc.History(ctx, userID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestOptimize_UnknownHistoryStartsFresh(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()
	ctx := context.Background()

	_, err := h.svc.Optimize(ctx, userID, OptimizeInput{Content: "first", HistoryID: "not-a-uuid"})
	require.NoError(t, err)
	_, err = h.svc.Optimize(ctx, userID, OptimizeInput{Content: "second", HistoryID: uuid.NewString()})
	require.NoError(t, err)

	_, total, err := h.svc.History(ctx, userID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
}

func TestHistory_PaginationAndOwnership(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		_, err := h.svc.Optimize(ctx, userID, OptimizeInput{Content: content})
		require.NoError(t, err)
	}
	_, err := h.svc.Optimize(ctx, uuid.New(), OptimizeInput{Content: "foreign"})
	require.NoError(t, err)

	items, total, err := h.svc.History(ctx, userID, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, items, 2)

	items, _, err = h.svc.History(ctx, userID, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Foreign record is invisible through the detail endpoint.
	foreign, _, err := h.svc.History(ctx, userID, 1, 10)
	require.NoError(t, err)
	for _, rec := range foreign {
		require.NotEqual(t, "foreign", rec.OriginalPrompt)
	}
}

func TestHistoryByID(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()
	ctx := context.Background()

	res, err := h.svc.Optimize(ctx, userID, OptimizeInput{Content: "write a poem"})
	require.NoError(t, err)

	rec, err := h.svc.HistoryByID(ctx, userID, res.HistoryID)
	require.NoError(t, err)
	require.Equal(t, "write a poem", rec.OriginalPrompt)

	_, err = h.svc.HistoryByID(ctx, uuid.New(), res.HistoryID)
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestRate(t *testing.T) {
	h := newOptimizeHarness(t, staticFallbacks{})
	userID := uuid.New()
	ctx := context.Background()

	res, err := h.svc.Optimize(ctx, userID, OptimizeInput{Content: "write a poem"})
	require.NoError(t, err)

	// Bounds are checked before any lookup.
	require.True(t, appErr.IsCode(h.svc.Rate(ctx, userID, uuid.New(), 0), appErr.CodeInvalid))
	require.True(t, appErr.IsCode(h.svc.Rate(ctx, userID, uuid.New(), 6), appErr.CodeInvalid))

	require.NoError(t, h.svc.Rate(ctx, userID, res.HistoryID, 4))
	rec, err := h.svc.HistoryByID(ctx, userID, res.HistoryID)
	require.NoError(t, err)
	require.NotNil(t, rec.Rating)
	require.Equal(t, 4, *rec.Rating)

	// A foreign record cannot be rated.
	require.True(t, appErr.IsCode(h.svc.Rate(ctx, uuid.New(), res.HistoryID, 3), appErr.CodeNotFound))
}
