package ai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/server/retrieval"
	"github.com/paperlens/paperlens/store"
)

// paperPayload is the JSON stored in a paper row's payload column.
type paperPayload struct {
	Excerpts []ai.ContextExcerpt `json:"excerpts,omitempty"`
}

// PaperService registers detected papers and their excerpt corpora.
type PaperService struct {
	store     *store.Store
	retriever *retrieval.KeywordProvider
}

// NewPaperService creates a paper service.
func NewPaperService(st *store.Store, retriever *retrieval.KeywordProvider) *PaperService {
	return &PaperService{store: st, retriever: retriever}
}

// Register stores a paper and indexes its excerpts for fallback retrieval.
// Registration is idempotent on URL: re-registering refreshes the corpus,
// both in memory and in the persisted payload.
func (s *PaperService) Register(ctx context.Context, title, url, authors, abstract string, excerpts []ai.ContextExcerpt) (*store.Paper, error) {
	payload := encodePayload(excerpts)

	if url != "" {
		existing, err := s.store.GetPaper(ctx, &store.FindPaper{URL: &url})
		if err != nil {
			return nil, errors.Wrap(err, "look up paper")
		}
		if existing != nil {
			if len(excerpts) > 0 {
				existing, err = s.store.UpdatePaper(ctx, &store.UpdatePaper{ID: existing.ID, Payload: &payload})
				if err != nil {
					return nil, errors.Wrap(err, "refresh paper corpus")
				}
				if s.retriever != nil {
					s.retriever.Register(existing.UID, excerpts)
				}
			}
			return existing, nil
		}
	}

	paper, err := s.store.CreatePaper(ctx, &store.Paper{
		UID:       shortuuid.New(),
		Title:     title,
		URL:       url,
		Authors:   authors,
		Abstract:  abstract,
		Payload:   payload,
		CreatedTs: time.Now().Unix(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create paper")
	}
	if s.retriever != nil && len(excerpts) > 0 {
		s.retriever.Register(paper.UID, excerpts)
	}
	return paper, nil
}

// RestoreCorpora reindexes every persisted paper's excerpts into the
// retriever. Called once at startup; the in-memory index does not survive a
// daemon restart on its own.
func (s *PaperService) RestoreCorpora(ctx context.Context) (int, error) {
	if s.retriever == nil {
		return 0, nil
	}
	papers, err := s.store.ListPapers(ctx, &store.FindPaper{})
	if err != nil {
		return 0, errors.Wrap(err, "list papers")
	}
	restored := 0
	for _, paper := range papers {
		if paper.Payload == "" || paper.Payload == "{}" {
			continue
		}
		var payload paperPayload
		if err := json.Unmarshal([]byte(paper.Payload), &payload); err != nil || len(payload.Excerpts) == 0 {
			continue
		}
		s.retriever.Register(paper.UID, payload.Excerpts)
		restored++
	}
	return restored, nil
}

func encodePayload(excerpts []ai.ContextExcerpt) string {
	if len(excerpts) == 0 {
		return "{}"
	}
	data, err := json.Marshal(paperPayload{Excerpts: excerpts})
	if err != nil {
		return "{}"
	}
	return string(data)
}

// List returns all registered papers.
func (s *PaperService) List(ctx context.Context) ([]*store.Paper, error) {
	return s.store.ListPapers(ctx, &store.FindPaper{})
}

// Delete removes a paper and its retrieval corpus.
func (s *PaperService) Delete(ctx context.Context, uid string) error {
	paper, err := s.store.GetPaper(ctx, &store.FindPaper{UID: &uid})
	if err != nil {
		return err
	}
	if paper == nil {
		return nil
	}
	if s.retriever != nil {
		s.retriever.Remove(uid)
	}
	return s.store.DeletePaper(ctx, &store.DeletePaper{ID: paper.ID})
}
