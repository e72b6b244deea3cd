package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/store"
)

func (d *DB) CreatePaper(ctx context.Context, create *store.Paper) (*store.Paper, error) {
	if create.Payload == "" {
		create.Payload = "{}"
	}
	stmt := `
		INSERT INTO paper (uid, title, url, authors, abstract, payload, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.Title,
		create.URL,
		create.Authors,
		create.Abstract,
		create.Payload,
		create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create paper")
	}
	return create, nil
}

func (d *DB) UpdatePaper(ctx context.Context, update *store.UpdatePaper) (*store.Paper, error) {
	set, args := []string{}, []any{}
	if v := update.Payload; v != nil {
		set, args = append(set, "payload = ?"), append(args, *v)
	}
	if len(set) != 0 {
		stmt := `UPDATE paper SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
		if _, err := d.db.ExecContext(ctx, stmt, append(args, update.ID)...); err != nil {
			return nil, errors.Wrap(err, "failed to update paper")
		}
	}

	list, err := d.ListPapers(ctx, &store.FindPaper{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("paper %d not found", update.ID)
	}
	return list[0], nil
}

func (d *DB) ListPapers(ctx context.Context, find *store.FindPaper) ([]*store.Paper, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.URL; v != nil {
		where, args = append(where, "url = ?"), append(args, *v)
	}

	query := `
		SELECT id, uid, title, url, authors, abstract, payload, created_ts
		FROM paper
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list papers")
	}
	defer rows.Close()

	list := []*store.Paper{}
	for rows.Next() {
		var p store.Paper
		if err := rows.Scan(&p.ID, &p.UID, &p.Title, &p.URL, &p.Authors, &p.Abstract, &p.Payload, &p.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan paper")
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func (d *DB) DeletePaper(ctx context.Context, delete *store.DeletePaper) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM paper WHERE id = ?`, delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete paper")
	}
	return nil
}
