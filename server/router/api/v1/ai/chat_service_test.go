package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/profile"
	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/plugin/ai/contextbudget"
	"github.com/paperlens/paperlens/plugin/ai/memory"
	"github.com/paperlens/paperlens/plugin/ai/recovery"
	"github.com/paperlens/paperlens/plugin/ai/session"
	"github.com/paperlens/paperlens/server/retrieval"
	"github.com/paperlens/paperlens/store"
	"github.com/paperlens/paperlens/store/db/sqlite"
)

type fakeEmitter struct {
	mu        sync.Mutex
	deltas    []string
	answer    string
	sources   []string
	completed bool
	errs      []string
	dead      bool
}

func (f *fakeEmitter) EmitDelta(delta string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, delta)
}

func (f *fakeEmitter) EmitTurnComplete(answer string, sources []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	f.answer = answer
	f.sources = sources
}

func (f *fakeEmitter) EmitTurnError(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, message)
}

func (f *fakeEmitter) TargetAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestChatService(t *testing.T, runtime ai.Runtime) (*ChatService, *store.Store) {
	return newTestChatServiceWithConfig(t, runtime, ai.DefaultConfig())
}

func newTestChatServiceWithConfig(t *testing.T, runtime ai.Runtime, cfg *ai.Config) (*ChatService, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newTestStore(t)

	states := newStoreStateStore(st, logger)
	summarizer := memory.NewLLMSummarizer(runtime)
	memoryService := memory.NewService(cfg, summarizer, states, logger)
	registry := session.NewRegistry(runtime, cfg, logger)
	planner := contextbudget.NewPlanner(cfg, registry, memoryService, logger)
	coordinator := recovery.NewCoordinator(planner, registry, logger)
	retriever := retrieval.NewKeywordProvider()

	return NewChatService(cfg, st, registry, coordinator, states, memoryService, retriever, logger), st
}

func TestProcessTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("HappyPathPersistsAndCompletes", func(t *testing.T) {
		runtime := ai.NewMockRuntime(8192)
		runtime.SessionFn = func(int, ai.SessionOptions) *ai.MockSession {
			s := ai.NewMockSession(8192)
			s.StreamFn = func(int, string) ([]string, error) {
				return []string{
					`{"answer": "The model uses eight attention heads.`,
					`", "sources": ["Architecture"]}`,
				}, nil
			}
			return s
		}
		svc, st := newTestChatService(t, runtime)
		emitter := &fakeEmitter{}

		err := svc.ProcessTurn(ctx, "conv-1", "how many heads?", nil, emitter)
		require.NoError(t, err)

		assert.True(t, emitter.completed)
		assert.Equal(t, "The model uses eight attention heads.", emitter.answer)
		assert.Equal(t, []string{"Architecture"}, emitter.sources)
		assert.NotEmpty(t, emitter.deltas)
		assert.Empty(t, emitter.errs)

		uid := "conv-1"
		conv, err := st.GetConversation(ctx, &store.FindConversation{UID: &uid})
		require.NoError(t, err)
		require.NotNil(t, conv)
		assert.Equal(t, "how many heads?", conv.Title)

		messages, err := st.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID})
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, store.MessageRoleUser, messages[0].Role)
		assert.Equal(t, store.MessageRoleAssistant, messages[1].Role)
		assert.Contains(t, messages[1].Metadata, "Architecture")
	})

	t.Run("SecondTurnSeesHistory", func(t *testing.T) {
		runtime := ai.NewMockRuntime(8192)
		svc, st := newTestChatService(t, runtime)
		emitter := &fakeEmitter{}

		require.NoError(t, svc.ProcessTurn(ctx, "conv-1", "first question", nil, emitter))
		require.NoError(t, svc.ProcessTurn(ctx, "conv-1", "second question", nil, emitter))

		uid := "conv-1"
		conv, err := st.GetConversation(ctx, &store.FindConversation{UID: &uid})
		require.NoError(t, err)
		messages, err := st.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID})
		require.NoError(t, err)
		assert.Len(t, messages, 4)
		// One session serves both turns.
		assert.Equal(t, 1, runtime.CreateCount())
	})

	t.Run("StateTracksRecentWindow", func(t *testing.T) {
		runtime := ai.NewMockRuntime(8192)
		svc, _ := newTestChatService(t, runtime)
		emitter := &fakeEmitter{}

		require.NoError(t, svc.ProcessTurn(ctx, "conv-1", "first question", nil, emitter))
		require.NoError(t, svc.ProcessTurn(ctx, "conv-1", "second question", nil, emitter))

		state, err := svc.states.GetConversationState(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, state.RecentMessages, 4)
		assert.Equal(t, ai.RoleUser, state.RecentMessages[0].Role)
		assert.Equal(t, "first question", state.RecentMessages[0].Content)
		assert.Equal(t, "second question", state.RecentMessages[2].Content)
		assert.Equal(t, ai.RoleAssistant, state.RecentMessages[3].Role)
		assert.Equal(t, "mock answer", state.RecentMessages[3].Content)
	})

	t.Run("LongThreadFoldsIntoSummary", func(t *testing.T) {
		runtime := ai.NewMockRuntime(8192)
		cfg := ai.DefaultConfig()
		cfg.ContextWindow = 100
		svc, st := newTestChatServiceWithConfig(t, runtime, cfg)
		emitter := &fakeEmitter{}

		long := strings.Repeat("how does the attention mechanism scale with sequence length ", 8)
		for i := 0; i < 12; i++ {
			require.NoError(t, svc.ProcessTurn(ctx, "conv-1", fmt.Sprintf("%s#%d", long, i), nil, emitter))
		}

		state, err := svc.states.GetConversationState(ctx, "conv-1")
		require.NoError(t, err)
		assert.NotEmpty(t, state.Summary)
		// 24 messages of history, everything before the 6-message recent
		// window is folded.
		assert.Equal(t, 17, state.LastSummarizedIndex)
		assert.Len(t, state.RecentMessages, cfg.RecentWindow)
		assert.GreaterOrEqual(t, state.SummaryCount, 1)

		uid := "conv-1"
		conv, err := st.GetConversation(ctx, &store.FindConversation{UID: &uid})
		require.NoError(t, err)
		summaryType := store.MessageTypeSummary
		markers, err := st.ListChatMessages(ctx, &store.FindChatMessage{
			ConversationID: &conv.ID,
			Type:           &summaryType,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, markers)

		msgType := store.MessageTypeMessage
		turns, err := st.ListChatMessages(ctx, &store.FindChatMessage{
			ConversationID: &conv.ID,
			Type:           &msgType,
		})
		require.NoError(t, err)
		assert.Len(t, turns, 24)
	})

	t.Run("DeadTargetLeavesNoTrace", func(t *testing.T) {
		runtime := ai.NewMockRuntime(8192)
		svc, st := newTestChatService(t, runtime)
		emitter := &fakeEmitter{dead: true}

		err := svc.ProcessTurn(ctx, "conv-1", "anyone there?", nil, emitter)
		require.NoError(t, err)

		assert.False(t, emitter.completed)
		assert.Empty(t, emitter.errs)
		assert.Empty(t, emitter.deltas)

		uid := "conv-1"
		conv, err := st.GetConversation(ctx, &store.FindConversation{UID: &uid})
		require.NoError(t, err)
		require.NotNil(t, conv)
		messages, err := st.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID})
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("FatalErrorEmitsUserMessage", func(t *testing.T) {
		runtime := ai.NewMockRuntime(8192)
		runtime.SessionFn = func(int, ai.SessionOptions) *ai.MockSession {
			s := ai.NewMockSession(8192)
			s.StreamFn = func(int, string) ([]string, error) {
				return nil, errors.New("adapter crashed")
			}
			return s
		}
		svc, st := newTestChatService(t, runtime)
		emitter := &fakeEmitter{}

		err := svc.ProcessTurn(ctx, "conv-1", "q", nil, emitter)
		require.Error(t, err)

		require.Len(t, emitter.errs, 1)
		assert.NotContains(t, emitter.errs[0], "adapter crashed")
		assert.False(t, emitter.completed)

		uid := "conv-1"
		conv, err := st.GetConversation(ctx, &store.FindConversation{UID: &uid})
		require.NoError(t, err)
		messages, err := st.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID})
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}

func TestStoreStateStore(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	states := newStoreStateStore(st, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("FreshStateWhenAbsent", func(t *testing.T) {
		state, err := states.GetConversationState(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, -1, state.LastSummarizedIndex)
		assert.Empty(t, state.Summary)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		state := ai.NewConversationState()
		state.Summary = "we covered section 3"
		state.LastSummarizedIndex = 5
		state.SummaryCount = 2
		state.RecentMessages = []ai.Message{{Role: ai.RoleUser, Content: "q"}}
		require.NoError(t, states.SaveConversationState(ctx, "conv-1", state))

		loaded, err := states.GetConversationState(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, "we covered section 3", loaded.Summary)
		assert.Equal(t, 5, loaded.LastSummarizedIndex)
		assert.Equal(t, 2, loaded.SummaryCount)
		require.Len(t, loaded.RecentMessages, 1)
	})

	t.Run("CorruptBlobTreatedAsAbsent", func(t *testing.T) {
		require.NoError(t, st.UpsertConversationState(ctx, &store.ConversationStateRecord{
			ConversationUID: "conv-2",
			Data:            []byte("not json"),
			UpdatedTs:       1,
		}))
		state, err := states.GetConversationState(ctx, "conv-2")
		require.NoError(t, err)
		assert.Equal(t, -1, state.LastSummarizedIndex)
	})
}
