package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderReveal(t *testing.T) {
	t.Run("NothingBeforeAnswerField", func(t *testing.T) {
		d := New()
		assert.Empty(t, d.Feed(`{"ans`))
		assert.Empty(t, d.Feed(`wer"`))
	})

	t.Run("MathSpanSurvivesReveal", func(t *testing.T) {
		d := New()
		first := d.Feed(`{"answer": "The result is $x^2$ holds`)
		second := d.Feed(`", "sources": ["Methods"]}`)
		assert.Equal(t, "The result is $x^2$ holds", first+second)
		assert.Contains(t, first+second, "$x^2$")

		// Nothing is revealed past the boundary.
		assert.Empty(t, d.Feed(` trailing garbage`))

		answer, sources := d.Finalize()
		assert.Equal(t, "The result is $x^2$ holds", answer)
		assert.Equal(t, []string{"Methods"}, sources)
	})

	t.Run("BoundarySplitAcrossFragments", func(t *testing.T) {
		d := New()
		var revealed string
		revealed += d.Feed(`{"answer": "short answer here`)
		revealed += d.Feed(`", "so`)
		revealed += d.Feed(`urces": []}`)
		assert.Equal(t, "short answer here", revealed)

		answer, sources := d.Finalize()
		assert.Equal(t, "short answer here", answer)
		assert.Empty(t, sources)
	})

	t.Run("LookaheadWindowHeldBack", func(t *testing.T) {
		d := New()
		delta := d.Feed(`{"answer": "abcdefghijklmnop`)
		// The trailing window the length of the boundary pattern stays hidden.
		assert.Equal(t, "abcde", delta)
	})

	t.Run("TrailingBackslashHeldBack", func(t *testing.T) {
		d := New()
		delta := d.Feed(`{"answer": "abc\12345678901`)
		assert.Equal(t, "abc", delta)
	})

	t.Run("EscapedQuotesUnescaped", func(t *testing.T) {
		d := New()
		var revealed string
		revealed += d.Feed(`{"answer": "he said \"hi\"`)
		revealed += d.Feed(`", "sources": []}`)
		assert.Equal(t, `he said "hi"`, revealed)
	})
}

func TestDecoderFinalize(t *testing.T) {
	t.Run("ParseFailureYieldsEmptySources", func(t *testing.T) {
		d := New()
		d.Feed(`{"answer": "partial truth`)
		d.Feed(`", "sources": [broken`)
		answer, sources := d.Finalize()
		assert.Equal(t, "partial truth", answer)
		require.NotNil(t, sources)
		assert.Empty(t, sources)
	})

	t.Run("AnswerRecoveredWhenNothingRevealed", func(t *testing.T) {
		// The whole object arrives in one short burst with no incremental
		// reveal beyond the boundary cut.
		d := New()
		d.Feed(`{"answer": "hi", "sources": ["Intro"]}`)
		answer, sources := d.Finalize()
		assert.Equal(t, "hi", answer)
		assert.Equal(t, []string{"Intro"}, sources)
	})

	t.Run("NullSourcesBecomesEmpty", func(t *testing.T) {
		d := New()
		d.Feed(`{"answer": "x", "sources": null}`)
		_, sources := d.Finalize()
		require.NotNil(t, sources)
		assert.Empty(t, sources)
	})
}
