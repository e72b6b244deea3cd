package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/server/retrieval"
	"github.com/paperlens/paperlens/store"
)

func TestPaperService(t *testing.T) {
	ctx := context.Background()

	t.Run("CorpusSurvivesRestart", func(t *testing.T) {
		st := newTestStore(t)
		excerpts := []ai.ContextExcerpt{
			{Content: "multi head attention projects queries keys values", SectionPath: "Architecture", DocumentOrderIndex: 1},
			{Content: "training ran on eight gpus for several days", SectionPath: "Training", DocumentOrderIndex: 2},
		}
		papers := NewPaperService(st, retrieval.NewKeywordProvider())
		paper, err := papers.Register(ctx, "Attention Is All You Need", "https://arxiv.org/abs/1706.03762", "Vaswani et al.", "", excerpts)
		require.NoError(t, err)

		// A fresh provider over the same store stands in for a restarted
		// daemon.
		second := retrieval.NewKeywordProvider()
		reloaded := NewPaperService(st, second)
		restored, err := reloaded.RestoreCorpora(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, restored)

		got, err := second.GetRelevantExcerpts(ctx, paper.UID, "attention queries keys", 4)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "Architecture", got[0].SectionPath)
	})

	t.Run("ReRegisterRefreshesPersistedCorpus", func(t *testing.T) {
		st := newTestStore(t)
		papers := NewPaperService(st, retrieval.NewKeywordProvider())

		_, err := papers.Register(ctx, "Paper", "https://example.org/p1", "", "",
			[]ai.ContextExcerpt{{Content: "old corpus text", SectionPath: "Intro"}})
		require.NoError(t, err)
		paper, err := papers.Register(ctx, "Paper", "https://example.org/p1", "", "",
			[]ai.ContextExcerpt{{Content: "new corpus describing evaluation metrics", SectionPath: "Evaluation"}})
		require.NoError(t, err)

		row, err := st.GetPaper(ctx, &store.FindPaper{UID: &paper.UID})
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Contains(t, row.Payload, "evaluation metrics")
		assert.NotContains(t, row.Payload, "old corpus")

		list, err := papers.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("RestoreSkipsPapersWithoutCorpus", func(t *testing.T) {
		st := newTestStore(t)
		papers := NewPaperService(st, retrieval.NewKeywordProvider())
		_, err := papers.Register(ctx, "Bare paper", "https://example.org/bare", "", "", nil)
		require.NoError(t, err)

		restored, err := papers.RestoreCorpora(ctx)
		require.NoError(t, err)
		assert.Zero(t, restored)
	})
}
