package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/aetherflow/engine/internal/models"
	"github.com/aetherflow/engine/internal/providers"
	"github.com/aetherflow/engine/internal/repository"
	appErr "github.com/aetherflow/engine/pkg/errors"
	"github.com/aetherflow/engine/pkg/logger"
	"github.com/aetherflow/engine/pkg/metrics"
)

// OptimizeService executes prompt-optimization requests end to end: credential
// resolution, provider invocation, response normalization, and history
// persistence.
type OptimizeService interface {
	Optimize(ctx context.Context, userID uuid.UUID, in OptimizeInput) (*OptimizeResult, error)
	History(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.OptimizationRecord, int64, error)
	HistoryByID(ctx context.Context, userID, recordID uuid.UUID) (*models.OptimizationRecord, error)
	Rate(ctx context.Context, userID, recordID uuid.UUID, score int) error
}

type OptimizeInput struct {
	Content      string
	Category     string
	Provider     models.Provider
	Model        string
	UseClientKey bool
	ClientKey    string
	HistoryID    string
}

type OptimizeResult struct {
	OptimizedPrompt  string          `json:"optimized_prompt"`
	Improvements     string          `json:"improvements"`
	ExpectedBenefits string          `json:"expected_benefits"`
	Provider         models.Provider `json:"provider"`
	Model            string          `json:"model"`
	HistoryID        uuid.UUID       `json:"history_id"`
}

// FallbackSecrets supplies process-wide provider secrets used when a user has
// no stored credential.
type FallbackSecrets interface {
	FallbackSecret(provider string) string
}

type optimizeService struct {
	records     repository.OptimizationRepository
	credentials CredentialService
	caller      providers.Caller
	fallbacks   FallbackSecrets
	activity    ActivityRecorder
	sink        metrics.Sink
}

func NewOptimizeService(
	records repository.OptimizationRepository,
	credentials CredentialService,
	caller providers.Caller,
	fallbacks FallbackSecrets,
	activity ActivityRecorder,
	sink metrics.Sink,
) OptimizeService {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &optimizeService{
		records:     records,
		credentials: credentials,
		caller:      caller,
		fallbacks:   fallbacks,
		activity:    activity,
		sink:        sink,
	}
}

var _ OptimizeService = (*optimizeService)(nil)

// callMode tags how a request will be served. It is resolved once, up front,
// and passed down instead of re-checking booleans at every step.
type callMode int

const (
	modeReal callMode = iota
	modeMock
)

func (m callMode) String() string {
	if m == modeMock {
		return "mock"
	}
	return "real"
}

// callPlan is the fully resolved strategy for one optimization request.
type callPlan struct {
	mode    callMode
	secret  string
	baseURL string
	model   string
}

// System prompt templates per category. Unknown categories fall back to
// general rather than erroring.
var categoryPrompts = map[string]string{
	"general": "你是一个提示词优化专家。请优化用户提供的提示词，输出三个部分：优化后的提示词、改进说明、预期效果。",
	"programming": "你是一个编程提示词优化专家。请针对编程场景优化用户提供的提示词，输出三个部分：优化后的提示词、改进说明、预期效果。",
	"writing": "你是一个写作提示词优化专家。请针对写作场景优化用户提供的提示词，输出三个部分：优化后的提示词、改进说明、预期效果。",
}

const refineInstruction = "请在上一版的基础上进一步优化，保持同样的输出格式。"

func (s *optimizeService) Optimize(ctx context.Context, userID uuid.UUID, in OptimizeInput) (*OptimizeResult, error) {
	start := time.Now()

	if strings.TrimSpace(in.Content) == "" {
		return nil, appErr.New(appErr.CodeInvalid, "content must not be empty")
	}

	provider := in.Provider
	if provider == "" {
		provider = models.ProviderOpenAI
	}
	if !provider.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, "unsupported provider").WithMeta("provider", string(provider))
	}

	category := in.Category
	if _, ok := categoryPrompts[category]; !ok {
		category = "general"
	}

	plan, err := s.resolvePlan(ctx, userID, provider, in)
	if err != nil {
		return nil, err
	}

	// Continuation: a missing or foreign record degrades to a fresh round.
	prior := s.loadPrior(ctx, userID, in.HistoryID)

	var sections Sections
	if plan.mode == modeMock {
		sections = mockSections(in.Content, category)
	} else {
		msgs := buildMessages(category, in.Content, prior)
		raw, err := s.caller.Complete(ctx, providers.CompletionRequest{
			BaseURL:  plan.baseURL,
			Model:    plan.model,
			Secret:   plan.secret,
			Messages: msgs,
		})
		if err != nil {
			s.sink.Inc("optimize_failures_total", map[string]string{"provider": string(provider)})
			return nil, err
		}
		sections = splitSections(raw)
	}

	record, err := s.persist(ctx, userID, provider, category, plan, in.Content, sections, prior)
	if err != nil {
		return nil, err
	}

	s.sink.Inc("optimize_requests_total", map[string]string{
		"provider": string(provider),
		"mode":     plan.mode.String(),
	})
	s.sink.Observe("optimize_duration", time.Since(start), map[string]string{"provider": string(provider)})
	s.activity.Record(ctx, userID, "prompt.optimize", "optimization", record.ID.String(), string(provider))

	return &OptimizeResult{
		OptimizedPrompt:  sections.OptimizedPrompt,
		Improvements:     sections.Improvements,
		ExpectedBenefits: sections.ExpectedBenefits,
		Provider:         provider,
		Model:            plan.model,
		HistoryID:        record.ID,
	}, nil
}

// resolvePlan picks the secret and endpoint once per request. Priority:
// explicit client key, stored credential, process-wide fallback, mock.
// This path never fails on a missing secret; it degrades to mock mode.
func (s *optimizeService) resolvePlan(ctx context.Context, userID uuid.UUID, provider models.Provider, in OptimizeInput) (callPlan, error) {
	info, _ := providers.Lookup(provider)
	plan := callPlan{mode: modeReal, baseURL: info.BaseURL, model: in.Model}

	if in.ClientKey != "" {
		// Used for this call only, never persisted.
		plan.secret = in.ClientKey
	} else if !in.UseClientKey {
		secret, cred, err := s.credentials.ResolveSecret(ctx, userID, provider)
		if err != nil {
			// Decrypt and lookup failures degrade to the next fallback rather
			// than failing the request; the cause is logged for operators.
			logger.L().Warn("credential resolution failed, falling back",
				zap.String("provider", string(provider)), zap.Error(err))
		}
		if secret != "" {
			plan.secret = secret
			// Custom providers carry their own endpoint and model.
			if cred.BaseURL != "" {
				plan.baseURL = cred.BaseURL
			}
			if plan.model == "" {
				plan.model = cred.ModelName
			}
		}
	}

	if plan.secret == "" {
		plan.secret = s.fallbacks.FallbackSecret(string(provider))
	}
	if plan.model == "" {
		plan.model = info.DefaultModel
	}
	if plan.model == "" {
		plan.model = string(provider)
	}

	// No secret from any source, or a custom provider without an endpoint:
	// serve the request locally.
	if plan.secret == "" || plan.baseURL == "" {
		plan.mode = modeMock
		plan.model = plan.model + "-mock"
	}
	return plan, nil
}

// loadPrior fetches the record a continuation round refines, or nil.
func (s *optimizeService) loadPrior(ctx context.Context, userID uuid.UUID, historyID string) *models.OptimizationRecord {
	if historyID == "" {
		return nil
	}
	id, err := uuid.Parse(historyID)
	if err != nil {
		return nil
	}
	var rec models.OptimizationRecord
	if err := s.records.GetByIDForUser(ctx, id, userID, &rec); err != nil {
		return nil
	}
	return &rec
}

// buildMessages assembles the chat exchange: system prompt plus either a
// single user turn, or a three-turn refinement exchange when continuing.
func buildMessages(category, content string, prior *models.OptimizationRecord) []providers.Message {
	msgs := []providers.Message{
		{Role: providers.RoleSystem, Content: categoryPrompts[category]},
	}
	if prior != nil && prior.OptimizedPrompt != "" {
		msgs = append(msgs,
			providers.Message{Role: providers.RoleUser, Content: content},
			providers.Message{Role: providers.RoleAssistant, Content: prior.OptimizedPrompt},
			providers.Message{Role: providers.RoleUser, Content: refineInstruction},
		)
		return msgs
	}
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: content})
	return msgs
}

// mockSections synthesizes a deterministic local result so the feature stays
// demoable without any configured credential.
func mockSections(content, category string) Sections {
	return Sections{
		OptimizedPrompt: fmt.Sprintf("[%s] %s\n\n请提供更多上下文、期望的输出格式和约束条件。", category, strings.TrimSpace(content)),
		Improvements: flattenLines([]string{
			"补充了上下文要求",
			"明确了输出格式",
		}),
		ExpectedBenefits: "模型回答将更贴近预期。",
	}
}

func (s *optimizeService) persist(
	ctx context.Context,
	userID uuid.UUID,
	provider models.Provider,
	category string,
	plan callPlan,
	content string,
	sections Sections,
	prior *models.OptimizationRecord,
) (*models.OptimizationRecord, error) {
	iteration := models.Iteration{
		OptimizedPrompt:  sections.OptimizedPrompt,
		Improvements:     sections.Improvements,
		ExpectedBenefits: sections.ExpectedBenefits,
		Provider:         string(provider),
		Model:            plan.model,
		CreatedAt:        time.Now().UTC(),
	}

	if prior != nil {
		var iterations []models.Iteration
		if len(prior.Iterations) > 0 {
			if err := json.Unmarshal(prior.Iterations, &iterations); err != nil {
				logger.L().Warn("unreadable iterations blob, starting over",
					zap.String("record_id", prior.ID.String()), zap.Error(err))
				iterations = nil
			}
		}
		iterations = append(iterations, iteration)
		blob, err := json.Marshal(iterations)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal iterations failed")
		}

		prior.OptimizedPrompt = sections.OptimizedPrompt
		prior.Improvements = sections.Improvements
		prior.ExpectedBenefits = sections.ExpectedBenefits
		prior.Provider = string(provider)
		prior.Model = plan.model
		prior.Iterations = datatypes.JSON(blob)
		if err := s.records.Update(ctx, prior); err != nil {
			return nil, err
		}
		return prior, nil
	}

	blob, err := json.Marshal([]models.Iteration{iteration})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal iterations failed")
	}
	rec := models.OptimizationRecord{
		UserID:           userID,
		OriginalPrompt:   content,
		OptimizedPrompt:  sections.OptimizedPrompt,
		Improvements:     sections.Improvements,
		ExpectedBenefits: sections.ExpectedBenefits,
		Category:         category,
		Provider:         string(provider),
		Model:            plan.model,
		Iterations:       datatypes.JSON(blob),
	}
	if err := s.records.Create(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *optimizeService) History(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.OptimizationRecord, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.records.ListByUser(ctx, userID, (page-1)*pageSize, pageSize)
}

func (s *optimizeService) HistoryByID(ctx context.Context, userID, recordID uuid.UUID) (*models.OptimizationRecord, error) {
	var rec models.OptimizationRecord
	if err := s.records.GetByIDForUser(ctx, recordID, userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *optimizeService) Rate(ctx context.Context, userID, recordID uuid.UUID, score int) error {
	if score < 1 || score > 5 {
		return appErr.New(appErr.CodeInvalid, "score must be between 1 and 5")
	}
	var rec models.OptimizationRecord
	if err := s.records.GetByIDForUser(ctx, recordID, userID, &rec); err != nil {
		return err
	}
	rec.Rating = &score
	if err := s.records.Update(ctx, &rec); err != nil {
		return err
	}
	s.activity.Record(ctx, userID, "prompt.rate", "optimization", rec.ID.String(), fmt.Sprintf("score=%d", score))
	return nil
}
