package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/plugin/ai/contextbudget"
)

type fakeRebuilder struct {
	make  func() ai.Session
	calls int
}

func (f *fakeRebuilder) CloneWithHistory(_ context.Context, _ string, _ *ai.ConversationState, _ string, _ ai.SessionOptions) (ai.Session, error) {
	f.calls++
	return f.make(), nil
}

func testExcerpts(n int) []ai.ContextExcerpt {
	excerpts := make([]ai.ContextExcerpt, n)
	for i := range excerpts {
		excerpts[i] = ai.ContextExcerpt{
			Content:            fmt.Sprintf("excerpt %d", i),
			SectionPath:        fmt.Sprintf("Section %d", i),
			DocumentOrderIndex: i,
			ParagraphIndex:     1,
		}
	}
	return excerpts
}

func newTestCoordinator(rebuilder SessionRebuilder) *Coordinator {
	planner := contextbudget.NewPlanner(ai.DefaultConfig(), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := NewCoordinator(planner, rebuilder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetTimeouts(20*time.Millisecond, time.Millisecond)
	return c
}

func TestExecuteTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("HappyPathStreamsDeltas", func(t *testing.T) {
		session := ai.NewMockSession(10000)
		session.StreamFn = func(int, string) ([]string, error) {
			return []string{
				`{"answer": "The bound is tight`,
				`", "sources": ["Results"]}`,
			}, nil
		}
		coordinator := newTestCoordinator(&fakeRebuilder{})

		var deltas []string
		result, err := coordinator.ExecuteTurn(ctx, &TurnRequest{
			ThreadID:  "t1",
			Session:   session,
			Excerpts:  testExcerpts(3),
			Message:   "how tight is the bound?",
			State:     ai.NewConversationState(),
			EmitDelta: func(d string) { deltas = append(deltas, d) },
		})
		require.NoError(t, err)
		assert.Equal(t, "The bound is tight", result.Answer)
		assert.Equal(t, []string{"Results"}, result.Sources)
		assert.Equal(t, "The bound is tight", strings.Join(deltas, ""))
		assert.Len(t, result.Excerpts, 3)
	})

	t.Run("ThreeTimeoutsTwoReconstructions", func(t *testing.T) {
		makeStalled := func() ai.Session {
			s := ai.NewMockSession(10000)
			s.FirstFragmentDelay = 200 * time.Millisecond
			return s
		}
		rebuilder := &fakeRebuilder{make: makeStalled}
		coordinator := newTestCoordinator(rebuilder)

		_, err := coordinator.ExecuteTurn(ctx, &TurnRequest{
			ThreadID: "t1",
			Session:  makeStalled(),
			Excerpts: testExcerpts(3),
			Message:  "q",
			State:    ai.NewConversationState(),
		})
		require.Error(t, err)
		classified := ai.Classify(err)
		assert.Equal(t, ai.FailureTimeout, classified.Kind)
		assert.Contains(t, classified.UserMessage(), "try again")
		// One reconstruction per retry, none after the final failed attempt.
		assert.Equal(t, 2, rebuilder.calls)
	})

	t.Run("CapacityShrinksFiveThreeOne", func(t *testing.T) {
		session := ai.NewMockSession(10000)
		session.StreamFn = func(call int, _ string) ([]string, error) {
			if call < 2 {
				return nil, ai.ErrCapacityExceeded
			}
			return []string{`{"answer": "fits now", "sources": []}`}, nil
		}
		coordinator := newTestCoordinator(&fakeRebuilder{})

		result, err := coordinator.ExecuteTurn(ctx, &TurnRequest{
			ThreadID: "t1",
			Session:  session,
			Excerpts: testExcerpts(5),
			Message:  "q",
			State:    ai.NewConversationState(),
		})
		require.NoError(t, err)
		assert.Equal(t, "fits now", result.Answer)
		assert.Len(t, result.Excerpts, 1)

		prompts := session.Prompts()
		require.Len(t, prompts, 3)
		assert.Equal(t, 5, strings.Count(prompts[0], "[Section:"))
		assert.Equal(t, 3, strings.Count(prompts[1], "[Section:"))
		assert.Equal(t, 1, strings.Count(prompts[2], "[Section:"))
	})

	t.Run("CapacityExhaustedIsTerminal", func(t *testing.T) {
		session := ai.NewMockSession(10000)
		session.StreamFn = func(int, string) ([]string, error) {
			return nil, ai.ErrCapacityExceeded
		}
		coordinator := newTestCoordinator(&fakeRebuilder{})

		_, err := coordinator.ExecuteTurn(ctx, &TurnRequest{
			ThreadID: "t1",
			Session:  session,
			Excerpts: testExcerpts(5),
			Message:  "q",
			State:    ai.NewConversationState(),
		})
		require.Error(t, err)
		assert.Equal(t, ai.FailureCapacity, ai.Classify(err).Kind)
		assert.Len(t, session.Prompts(), 3)
	})

	t.Run("DeadTargetAbortsSilently", func(t *testing.T) {
		session := ai.NewMockSession(10000)
		coordinator := newTestCoordinator(&fakeRebuilder{})

		_, err := coordinator.ExecuteTurn(ctx, &TurnRequest{
			ThreadID:    "t1",
			Session:     session,
			Excerpts:    testExcerpts(3),
			Message:     "q",
			State:       ai.NewConversationState(),
			TargetAlive: func() bool { return false },
		})
		require.Error(t, err)
		assert.Equal(t, ai.FailureStaleTarget, ai.Classify(err).Kind)
		assert.Empty(t, session.Prompts())
	})

	t.Run("FatalErrorNotRetried", func(t *testing.T) {
		session := ai.NewMockSession(10000)
		session.StreamFn = func(int, string) ([]string, error) {
			return nil, errors.New("adapter crashed")
		}
		rebuilder := &fakeRebuilder{}
		coordinator := newTestCoordinator(rebuilder)

		_, err := coordinator.ExecuteTurn(ctx, &TurnRequest{
			ThreadID: "t1",
			Session:  session,
			Excerpts: testExcerpts(3),
			Message:  "q",
			State:    ai.NewConversationState(),
		})
		require.Error(t, err)
		assert.Equal(t, ai.FailureFatal, ai.Classify(err).Kind)
		assert.Len(t, session.Prompts(), 1)
		assert.Equal(t, 0, rebuilder.calls)
	})
}
