package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/store"
)

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	if create.Type == "" {
		create.Type = store.MessageTypeMessage
	}
	if create.Metadata == "" {
		create.Metadata = "{}"
	}
	stmt := `
		INSERT INTO chat_message (uid, conversation_id, type, role, content, metadata, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.ConversationID,
		create.Type,
		create.Role,
		create.Content,
		create.Metadata,
		create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create chat message")
	}
	return create, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.ConversationID; v != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *v)
	}
	if v := find.Type; v != nil {
		where, args = append(where, "type = ?"), append(args, *v)
	}

	query := `
		SELECT id, uid, conversation_id, type, role, content, metadata, created_ts
		FROM chat_message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat messages")
	}
	defer rows.Close()

	list := []*store.ChatMessage{}
	for rows.Next() {
		var m store.ChatMessage
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.Type, &m.Role, &m.Content, &m.Metadata, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat message")
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (d *DB) DeleteChatMessage(ctx context.Context, delete *store.DeleteChatMessage) error {
	where, args := []string{"1 = 1"}, []any{}
	if v := delete.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := delete.ConversationID; v != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *v)
	}
	stmt := `DELETE FROM chat_message WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete chat messages")
	}
	return nil
}
