package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/profile"
	"github.com/paperlens/paperlens/store"
)

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()
	driver, err := NewDB(&profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func TestConversationCRUD(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	created, err := driver.CreateConversation(ctx, &store.Conversation{
		UID:       "conv-1",
		PaperUID:  "paper-1",
		Title:     "Attention paper",
		CreatedTs: 100,
		UpdatedTs: 100,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, store.Normal, created.RowStatus)

	t.Run("FindByUID", func(t *testing.T) {
		uid := "conv-1"
		list, err := driver.ListConversations(ctx, &store.FindConversation{UID: &uid})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Attention paper", list[0].Title)
	})

	t.Run("Update", func(t *testing.T) {
		title := "Renamed"
		pinned := true
		updated, err := driver.UpdateConversation(ctx, &store.UpdateConversation{
			ID:     created.ID,
			Title:  &title,
			Pinned: &pinned,
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title)
		assert.True(t, updated.Pinned)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, driver.DeleteConversation(ctx, &store.DeleteConversation{ID: created.ID}))
		list, err := driver.ListConversations(ctx, &store.FindConversation{ID: &created.ID})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestChatMessages(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	conv, err := driver.CreateConversation(ctx, &store.Conversation{UID: "conv-1", CreatedTs: 1, UpdatedTs: 1})
	require.NoError(t, err)

	for i, entry := range []struct {
		uid  string
		typ  store.MessageType
		role store.MessageRole
	}{
		{"m1", store.MessageTypeMessage, store.MessageRoleUser},
		{"m2", store.MessageTypeMessage, store.MessageRoleAssistant},
		{"m3", store.MessageTypeSummary, store.MessageRoleSystem},
	} {
		_, err := driver.CreateChatMessage(ctx, &store.ChatMessage{
			UID:            entry.uid,
			ConversationID: conv.ID,
			Type:           entry.typ,
			Role:           entry.role,
			Content:        "content",
			CreatedTs:      int64(i),
		})
		require.NoError(t, err)
	}

	t.Run("ListInInsertionOrder", func(t *testing.T) {
		list, err := driver.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "m1", list[0].UID)
		assert.Equal(t, "m3", list[2].UID)
		assert.Equal(t, "{}", list[0].Metadata)
	})

	t.Run("FilterByType", func(t *testing.T) {
		typ := store.MessageTypeSummary
		list, err := driver.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID, Type: &typ})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, store.MessageRoleSystem, list[0].Role)
	})

	t.Run("DeleteByConversation", func(t *testing.T) {
		require.NoError(t, driver.DeleteChatMessage(ctx, &store.DeleteChatMessage{ConversationID: &conv.ID}))
		list, err := driver.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestConversationState(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	t.Run("MissingStateIsNil", func(t *testing.T) {
		record, err := driver.GetConversationState(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		require.NoError(t, driver.UpsertConversationState(ctx, &store.ConversationStateRecord{
			ConversationUID: "conv-1",
			Data:            []byte(`{"summary":"v1"}`),
			UpdatedTs:       1,
		}))
		require.NoError(t, driver.UpsertConversationState(ctx, &store.ConversationStateRecord{
			ConversationUID: "conv-1",
			Data:            []byte(`{"summary":"v2"}`),
			UpdatedTs:       2,
		}))

		record, err := driver.GetConversationState(ctx, "conv-1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.JSONEq(t, `{"summary":"v2"}`, string(record.Data))
		assert.EqualValues(t, 2, record.UpdatedTs)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, driver.DeleteConversationState(ctx, "conv-1"))
		record, err := driver.GetConversationState(ctx, "conv-1")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		for uid, ts := range map[string]int64{"old-1": 10, "old-2": 20, "live": 100} {
			require.NoError(t, driver.UpsertConversationState(ctx, &store.ConversationStateRecord{
				ConversationUID: uid,
				Data:            []byte(`{}`),
				UpdatedTs:       ts,
			}))
		}

		deleted, err := driver.DeleteExpiredConversationStates(ctx, 50)
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		record, err := driver.GetConversationState(ctx, "live")
		require.NoError(t, err)
		assert.NotNil(t, record)
		record, err = driver.GetConversationState(ctx, "old-1")
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}

func TestPapers(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	created, err := driver.CreatePaper(ctx, &store.Paper{
		UID:       "paper-1",
		Title:     "Attention Is All You Need",
		URL:       "https://arxiv.org/abs/1706.03762",
		Authors:   "Vaswani et al.",
		CreatedTs: 1,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	url := "https://arxiv.org/abs/1706.03762"
	list, err := driver.ListPapers(ctx, &store.FindPaper{URL: &url})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Attention Is All You Need", list[0].Title)

	require.NoError(t, driver.DeletePaper(ctx, &store.DeletePaper{ID: created.ID}))
	list, err = driver.ListPapers(ctx, &store.FindPaper{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
