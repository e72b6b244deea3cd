package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/plugin/ai"
)

func TestKeywordProvider(t *testing.T) {
	ctx := context.Background()
	provider := NewKeywordProvider()
	provider.Register("paper-1", []ai.ContextExcerpt{
		{Content: "the transformer uses multi-head attention", SectionPath: "Architecture", DocumentOrderIndex: 2},
		{Content: "training ran on eight GPUs for twelve hours", SectionPath: "Training", DocumentOrderIndex: 5},
		{Content: "attention weights are computed via softmax over scaled dot products", SectionPath: "Architecture > Attention", DocumentOrderIndex: 3},
	})

	t.Run("RanksByTermOverlap", func(t *testing.T) {
		got, err := provider.GetRelevantExcerpts(ctx, "paper-1", "how is attention computed with softmax?", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 3, got[0].DocumentOrderIndex)
	})

	t.Run("NoMatchesEmpty", func(t *testing.T) {
		got, err := provider.GetRelevantExcerpts(ctx, "paper-1", "quantum chromodynamics", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("UnknownDocumentEmpty", func(t *testing.T) {
		got, err := provider.GetRelevantExcerpts(ctx, "nope", "attention", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("RemoveDropsCorpus", func(t *testing.T) {
		provider.Remove("paper-1")
		got, err := provider.GetRelevantExcerpts(ctx, "paper-1", "attention", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
