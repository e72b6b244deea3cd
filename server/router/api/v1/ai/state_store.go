package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/store"
)

// storeStateStore persists conversation state as a JSON blob in the store.
type storeStateStore struct {
	store  *store.Store
	logger *slog.Logger
}

func newStoreStateStore(s *store.Store, logger *slog.Logger) *storeStateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &storeStateStore{store: s, logger: logger}
}

// GetConversationState returns the persisted state, a fresh one when nothing
// is stored yet. A corrupt blob is treated as absent; losing a summary
// degrades quality, not correctness.
func (s *storeStateStore) GetConversationState(ctx context.Context, threadID string) (*ai.ConversationState, error) {
	record, err := s.store.GetConversationState(ctx, threadID)
	if err != nil {
		return nil, errors.Wrap(err, "load conversation state")
	}
	if record == nil {
		return ai.NewConversationState(), nil
	}
	state := ai.NewConversationState()
	if err := json.Unmarshal(record.Data, state); err != nil {
		s.logger.Warn("discarding corrupt conversation state",
			slog.String("thread_id", threadID), slog.String("error", err.Error()))
		return ai.NewConversationState(), nil
	}
	return state, nil
}

func (s *storeStateStore) SaveConversationState(ctx context.Context, threadID string, state *ai.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal conversation state")
	}
	return s.store.UpsertConversationState(ctx, &store.ConversationStateRecord{
		ConversationUID: threadID,
		Data:            data,
		UpdatedTs:       time.Now().Unix(),
	})
}
