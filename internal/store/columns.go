package store

import (
	"context"
	"fmt"
)

// Columns belong to a board and carry the same owner stamp as their parent so
// ownership checks never need a join.

func (s *PostgresStore) ListColumns(ctx context.Context, owner Owner, boardID string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, title, position
		FROM columns
		WHERE board_id = $1 AND (user_id = $2 OR guest_id = $3)
		ORDER BY position ASC, id ASC
	`, boardID, owner.UserID, owner.GuestID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	items := make([]Column, 0)
	for rows.Next() {
		var item Column
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Title, &item.Position); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertColumn(ctx context.Context, owner Owner, column Column) (Column, error) {
	var next int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1000 FROM columns WHERE board_id = $1
	`, column.BoardID).Scan(&next); err != nil {
		return Column{}, fmt.Errorf("next column position: %w", err)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO columns (id, board_id, title, position, user_id, guest_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, board_id, title, position
	`, column.ID, column.BoardID, column.Title, next, owner.UserID, owner.GuestID).
		Scan(&column.ID, &column.BoardID, &column.Title, &column.Position)
	if err != nil {
		return Column{}, fmt.Errorf("insert column: %w", err)
	}
	return column, nil
}

func (s *PostgresStore) UpdateColumn(ctx context.Context, owner Owner, columnID string, title *string, position *int64) error {
	set := make([]string, 0, 2)
	args := []any{columnID, owner.UserID, owner.GuestID}
	idx := 4
	if title != nil {
		set = append(set, fmt.Sprintf("title=$%d", idx))
		args = append(args, *title)
		idx++
	}
	if position != nil {
		set = append(set, fmt.Sprintf("position=$%d", idx))
		args = append(args, *position)
		idx++
	}
	if len(set) == 0 {
		return nil
	}

	query := "UPDATE columns SET " + joinComma(set) + " WHERE id=$1 AND (user_id = $2 OR guest_id = $3)"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update column: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update column rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteColumn cascades to the column's tasks via FK.
func (s *PostgresStore) DeleteColumn(ctx context.Context, owner Owner, columnID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM columns WHERE id=$1 AND (user_id = $2 OR guest_id = $3)
	`, columnID, owner.UserID, owner.GuestID)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete column rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
