package ai

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/internal/profile"
	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/plugin/ai/contextbudget"
	"github.com/paperlens/paperlens/plugin/ai/memory"
	"github.com/paperlens/paperlens/plugin/ai/recovery"
	"github.com/paperlens/paperlens/plugin/ai/session"
	"github.com/paperlens/paperlens/server/retrieval"
	"github.com/paperlens/paperlens/store"
)

// Service bundles the assistant's wired components.
type Service struct {
	Handler  *Handler
	Registry *session.Registry
	papers   *PaperService
}

// NewService wires the full assistant stack from the profile: runtime,
// session registry, memory, budget planner, retry coordinator, and the HTTP
// handler on top.
func NewService(p *profile.Profile, st *store.Store, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := ai.NewConfigFromProfile(p)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid assistant config")
	}

	runtime, err := ai.NewRuntime(&ai.RuntimeConfig{
		BaseURL:       p.LLMBaseURL,
		APIKey:        p.LLMAPIKey,
		Model:         p.LLMModel,
		ContextWindow: p.LLMContextWindow,
		MaxTokens:     cfg.MaxAnswerTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create model runtime")
	}

	return newServiceWithRuntime(cfg, runtime, st, logger), nil
}

// newServiceWithRuntime finishes wiring on top of any Runtime. Tests inject a
// mock runtime here.
func newServiceWithRuntime(cfg *ai.Config, runtime ai.Runtime, st *store.Store, logger *slog.Logger) *Service {
	states := newStoreStateStore(st, logger)
	summarizer := memory.NewLLMSummarizer(runtime)
	memoryService := memory.NewService(cfg, summarizer, states, logger)
	registry := session.NewRegistry(runtime, cfg, logger)
	planner := contextbudget.NewPlanner(cfg, registry, memoryService, logger)
	coordinator := recovery.NewCoordinator(planner, registry, logger)
	retriever := retrieval.NewKeywordProvider()

	chat := NewChatService(cfg, st, registry, coordinator, states, memoryService, retriever, logger)
	conversations := NewConversationService(st, registry)
	papers := NewPaperService(st, retriever)

	return &Service{
		Handler:  NewHandler(chat, conversations, papers),
		Registry: registry,
		papers:   papers,
	}
}

// RestoreCorpora reloads the persisted retrieval corpora into memory. Called
// once at daemon startup.
func (s *Service) RestoreCorpora(ctx context.Context) (int, error) {
	return s.papers.RestoreCorpora(ctx)
}

// Shutdown releases every live session.
func (s *Service) Shutdown() {
	s.Registry.DestroyAll()
}
