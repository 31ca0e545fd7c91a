package providers

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	appErr "github.com/aetherflow/engine/pkg/errors"
)

// Role names for chat messages, re-exported so callers do not import go-openai.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a fully resolved upstream call: endpoint, model and
// secret have already been decided by the gateway.
type CompletionRequest struct {
	BaseURL  string
	Model    string
	Secret   string
	Messages []Message
}

// Caller performs chat completions and credential liveness checks against a
// provider endpoint.
type Caller interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	ListModels(ctx context.Context, baseURL, secret string) error
}

// OpenAICaller talks to any OpenAI-compatible endpoint.
type OpenAICaller struct {
	Timeout time.Duration
}

func NewCaller() *OpenAICaller {
	return &OpenAICaller{Timeout: 60 * time.Second}
}

var _ Caller = (*OpenAICaller)(nil)

func (c *OpenAICaller) client(baseURL, secret string) *openai.Client {
	cfg := openai.DefaultConfig(secret)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Complete performs one chat completion and returns the assistant's text.
// Upstream failures surface as upstream_error; there is no retry.
func (c *OpenAICaller) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Secret == "" {
		return "", appErr.New(appErr.CodeUpstream, "missing provider secret")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client(req.BaseURL, req.Secret).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeUpstream, "provider call failed")
	}
	if len(resp.Choices) == 0 {
		return "", appErr.New(appErr.CodeUpstream, "provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels is the lightweight liveness probe used by credential verification.
func (c *OpenAICaller) ListModels(ctx context.Context, baseURL, secret string) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if _, err := c.client(baseURL, secret).ListModels(ctx); err != nil {
		return appErr.Wrap(err, appErr.CodeUpstream, "list models failed")
	}
	return nil
}
