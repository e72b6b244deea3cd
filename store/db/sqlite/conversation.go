package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `
		INSERT INTO conversation (uid, paper_uid, title, pinned, row_status, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if create.RowStatus == "" {
		create.RowStatus = store.Normal
	}
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.PaperUID,
		create.Title,
		create.Pinned,
		create.RowStatus,
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.PaperUID; v != nil {
		where, args = append(where, "paper_uid = ?"), append(args, *v)
	}
	if v := find.Pinned; v != nil {
		where, args = append(where, "pinned = ?"), append(args, *v)
	}
	if v := find.RowStatus; v != nil {
		where, args = append(where, "row_status = ?"), append(args, *v)
	}

	query := `
		SELECT id, uid, paper_uid, title, pinned, row_status, created_ts, updated_ts
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY pinned DESC, updated_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		var c store.Conversation
		if err := rows.Scan(&c.ID, &c.UID, &c.PaperUID, &c.Title, &c.Pinned, &c.RowStatus, &c.CreatedTs, &c.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = ?"), append(args, *v)
	}
	if v := update.Pinned; v != nil {
		set, args = append(set, "pinned = ?"), append(args, *v)
	}
	if v := update.RowStatus; v != nil {
		set, args = append(set, "row_status = ?"), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to update conversation")
	}

	list, err := d.ListConversations(ctx, &store.FindConversation{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("conversation %d not found", update.ID)
	}
	return list[0], nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}
