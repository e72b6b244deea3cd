// Package retrieval supplies paper excerpts for a question. The extension
// normally ships ranked excerpts with each chat request; the keyword provider
// is the local fallback used when a request arrives without them.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/paperlens/paperlens/plugin/ai"
)

// Provider returns ranked excerpts relevant to a query. Rank order, not
// document order; the budget planner re-sorts before rendering.
type Provider interface {
	GetRelevantExcerpts(ctx context.Context, documentID, query string, limit int) ([]ai.ContextExcerpt, error)
}

// KeywordProvider is an in-memory term-overlap ranker over excerpts uploaded
// at paper registration time.
type KeywordProvider struct {
	mu        sync.RWMutex
	documents map[string][]ai.ContextExcerpt
}

// NewKeywordProvider creates an empty provider.
func NewKeywordProvider() *KeywordProvider {
	return &KeywordProvider{documents: map[string][]ai.ContextExcerpt{}}
}

// Register stores the excerpt corpus for a document, replacing any previous
// corpus.
func (p *KeywordProvider) Register(documentID string, excerpts []ai.ContextExcerpt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.documents[documentID] = append([]ai.ContextExcerpt(nil), excerpts...)
}

// Remove drops the corpus for a document.
func (p *KeywordProvider) Remove(documentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.documents, documentID)
}

// GetRelevantExcerpts ranks the document's excerpts by query term overlap.
func (p *KeywordProvider) GetRelevantExcerpts(_ context.Context, documentID, query string, limit int) ([]ai.ContextExcerpt, error) {
	p.mu.RLock()
	corpus := p.documents[documentID]
	p.mu.RUnlock()
	if len(corpus) == 0 || limit <= 0 {
		return []ai.ContextExcerpt{}, nil
	}

	terms := tokenize(query)
	type scored struct {
		excerpt ai.ContextExcerpt
		score   int
	}
	ranked := make([]scored, 0, len(corpus))
	for _, excerpt := range corpus {
		s := overlap(terms, tokenize(excerpt.Content+" "+excerpt.SectionPath))
		if s > 0 {
			ranked = append(ranked, scored{excerpt: excerpt, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	result := make([]ai.ContextExcerpt, 0, len(ranked))
	for _, r := range ranked {
		result = append(result, r.excerpt)
	}
	return result, nil
}

func tokenize(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(word) > 2 {
			tokens[word] = struct{}{}
		}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	count := 0
	for t := range a {
		if _, ok := b[t]; ok {
			count++
		}
	}
	return count
}
