package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// SessionOptions enumerates the recognized session creation fields. Defaults
// are applied once, at session construction, not at each call site.
type SessionOptions struct {
	// SystemPrompt is the single system message the session is seeded with.
	SystemPrompt string
	// SeedMessages are raw turns replayed into the fresh session so the model
	// can continue coherently after a reset token counter.
	SeedMessages []Message
	// ExpectedInputs / ExpectedOutputs are the modalities the session will
	// exchange. Only "text" is supported by the bundled runtime.
	ExpectedInputs  []string
	ExpectedOutputs []string
	Temperature     float32
	TopK            int
}

// Normalize fills unset option fields with defaults.
func (o SessionOptions) Normalize() SessionOptions {
	if len(o.ExpectedInputs) == 0 {
		o.ExpectedInputs = []string{"text"}
	}
	if len(o.ExpectedOutputs) == 0 {
		o.ExpectedOutputs = []string{"text"}
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

// Session is a stateful handle to a model conversation. It consumes input
// budget cumulatively until destroyed. Handles are owned exclusively by the
// session registry and are destroyed and replaced, never mutated in place,
// on reconstruction.
type Session interface {
	// InputUsage returns the tokens already consumed from the input quota.
	InputUsage() int
	// InputQuota returns the maximum input tokens the session accepts.
	InputQuota() int
	// Metrics returns a derived snapshot of the session's token accounting.
	Metrics() SessionMetrics

	// MeasureInputTokens empirically measures the token cost of text against
	// this session.
	MeasureInputTokens(ctx context.Context, text string) (int, error)

	// GenerateStream starts schema-constrained generation for prompt and
	// returns the fragment stream. The error channel delivers at most one
	// error and both channels close when generation ends.
	GenerateStream(ctx context.Context, prompt string, schema json.RawMessage) (<-chan string, <-chan error)

	// Destroy releases the handle. Further operations fail with
	// ErrSessionDestroyed.
	Destroy()
}

// Runtime is the model runtime collaborator.
type Runtime interface {
	// CreateSession creates a fresh session seeded per opts.
	CreateSession(ctx context.Context, opts SessionOptions) (Session, error)
	// Complete performs one synchronous, non-streamed exchange. Used by the
	// summarization service.
	Complete(ctx context.Context, messages []Message) (string, error)
}

// RuntimeConfig configures the OpenAI-compatible local runtime (Ollama,
// llama-server and friends expose this surface).
type RuntimeConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	ContextWindow int
	MaxTokens     int
}

type localRuntime struct {
	client *openai.Client
	model  string
	quota  int
	maxTok int
}

// NewRuntime creates a Runtime backed by an OpenAI-compatible endpoint.
func NewRuntime(cfg *RuntimeConfig) (Runtime, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("runtime base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("runtime model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	quota := cfg.ContextWindow
	if quota <= 0 {
		quota = 8192
	}
	maxTok := cfg.MaxTokens
	if maxTok <= 0 {
		maxTok = DefaultMaxAnswerTokens
	}
	return &localRuntime{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		quota:  quota,
		maxTok: maxTok,
	}, nil
}

func (r *localRuntime) CreateSession(ctx context.Context, opts SessionOptions) (Session, error) {
	opts = opts.Normalize()
	for _, modality := range opts.ExpectedInputs {
		if modality != "text" {
			return nil, fmt.Errorf("unsupported input modality: %s", modality)
		}
	}

	s := &localSession{runtime: r, opts: opts}
	seed := sessionSeedText(opts)
	measured, err := s.MeasureInputTokens(ctx, seed)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.usage = measured
	s.mu.Unlock()
	return s, nil
}

func (r *localRuntime) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     r.model,
		Messages:  toChatMessages(messages),
		MaxTokens: r.maxTok,
	})
	if err != nil {
		return "", normalizeAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// localSession tracks token usage client-side; the OpenAI-compatible API is
// stateless, so the seed messages are replayed on every generation.
type localSession struct {
	runtime *localRuntime
	opts    SessionOptions

	mu        sync.Mutex
	usage     int
	destroyed bool
}

func (s *localSession) InputUsage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func (s *localSession) InputQuota() int {
	return s.runtime.quota
}

func (s *localSession) Metrics() SessionMetrics {
	usage := s.InputUsage()
	quota := s.InputQuota()
	ratio := 0.0
	if quota > 0 {
		ratio = float64(usage) / float64(quota)
	}
	return SessionMetrics{InputUsage: usage, InputQuota: quota, UsageRatio: ratio}
}

// MeasureInputTokens estimates at ~4 characters per token. Local runtimes do
// not expose a tokenize endpoint through the OpenAI surface, so the estimate
// stands in for the empirical measurement.
func (s *localSession) MeasureInputTokens(_ context.Context, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return 0, ErrSessionDestroyed
	}
	return EstimateTokens(text), nil
}

func (s *localSession) GenerateStream(ctx context.Context, prompt string, schema json.RawMessage) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errs := make(chan error, 1)

	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		close(fragments)
		errs <- ErrSessionDestroyed
		close(errs)
		return fragments, errs
	}

	req := openai.ChatCompletionRequest{
		Model:       s.runtime.model,
		Messages:    append(s.seedChatMessages(), openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.runtime.maxTok,
		Stream:      true,
	}
	if len(schema) > 0 {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "assistant_answer",
				Schema: schema,
				Strict: true,
			},
		}
	}

	go func() {
		defer close(fragments)
		defer close(errs)

		stream, err := s.runtime.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errs <- normalizeAPIError(err)
			return
		}
		defer stream.Close()

		var produced strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errs <- normalizeAPIError(err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			produced.WriteString(delta)
			select {
			case fragments <- delta:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		s.mu.Lock()
		s.usage += EstimateTokens(prompt) + EstimateTokens(produced.String())
		s.mu.Unlock()
	}()

	return fragments, errs
}

func (s *localSession) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

func (s *localSession) seedChatMessages() []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(s.opts.SeedMessages)+1)
	if s.opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.opts.SystemPrompt,
		})
	}
	for _, msg := range s.opts.SeedMessages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}

func sessionSeedText(opts SessionOptions) string {
	var sb strings.Builder
	sb.WriteString(opts.SystemPrompt)
	for _, msg := range opts.SeedMessages {
		sb.WriteString("\n")
		sb.WriteString(msg.Content)
	}
	return sb.String()
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    chatRole(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

func chatRole(role string) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// normalizeAPIError maps provider errors onto the engine's sentinels so the
// retry coordinator can dispatch without string matching.
func normalizeAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		if apiErr.HTTPStatusCode == 429 ||
			strings.Contains(msg, "context length") ||
			strings.Contains(msg, "too many tokens") {
			return fmt.Errorf("%w: %s", ErrCapacityExceeded, apiErr.Message)
		}
	}
	return err
}
