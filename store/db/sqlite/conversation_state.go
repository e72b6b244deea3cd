package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/store"
)

func (d *DB) UpsertConversationState(ctx context.Context, upsert *store.ConversationStateRecord) error {
	stmt := `
		INSERT INTO conversation_state (conversation_uid, data, updated_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (conversation_uid) DO UPDATE SET data = excluded.data, updated_ts = excluded.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.ConversationUID, upsert.Data, upsert.UpdatedTs); err != nil {
		return errors.Wrap(err, "failed to upsert conversation state")
	}
	return nil
}

func (d *DB) GetConversationState(ctx context.Context, conversationUID string) (*store.ConversationStateRecord, error) {
	record := &store.ConversationStateRecord{ConversationUID: conversationUID}
	err := d.db.QueryRowContext(ctx,
		`SELECT data, updated_ts FROM conversation_state WHERE conversation_uid = ?`,
		conversationUID,
	).Scan(&record.Data, &record.UpdatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conversation state")
	}
	return record, nil
}

func (d *DB) DeleteConversationState(ctx context.Context, conversationUID string) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM conversation_state WHERE conversation_uid = ?`, conversationUID); err != nil {
		return errors.Wrap(err, "failed to delete conversation state")
	}
	return nil
}

func (d *DB) DeleteExpiredConversationStates(ctx context.Context, before int64) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`DELETE FROM conversation_state WHERE updated_ts < ?`, before)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired conversation states")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted conversation states")
	}
	return deleted, nil
}
