package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) ListBoards(ctx context.Context, owner Owner) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(color, ''), position, created_at, updated_at
		FROM boards
		WHERE (user_id = $1 OR guest_id = $2)
		ORDER BY position ASC, created_at ASC
	`, owner.UserID, owner.GuestID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var item Board
		if err := rows.Scan(&item.ID, &item.Title, &item.Color, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, owner Owner, boardID string) (Board, error) {
	var item Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(color, ''), position, created_at, updated_at
		FROM boards
		WHERE id = $1 AND (user_id = $2 OR guest_id = $3)
	`, boardID, owner.UserID, owner.GuestID).Scan(&item.ID, &item.Title, &item.Color, &item.Position, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, fmt.Errorf("get board: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertBoard(ctx context.Context, owner Owner, board Board) (Board, error) {
	var next int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1000 FROM boards WHERE (user_id = $1 OR guest_id = $2)
	`, owner.UserID, owner.GuestID).Scan(&next); err != nil {
		return Board{}, fmt.Errorf("next board position: %w", err)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO boards (id, title, color, position, user_id, guest_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING id, title, COALESCE(color, ''), position, created_at, updated_at
	`, board.ID, board.Title, board.Color, next, owner.UserID, owner.GuestID).
		Scan(&board.ID, &board.Title, &board.Color, &board.Position, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return Board{}, fmt.Errorf("insert board: %w", err)
	}
	return board, nil
}

func (s *PostgresStore) UpdateBoard(ctx context.Context, owner Owner, boardID string, update BoardUpdate) error {
	set := make([]string, 0, 3)
	args := []any{boardID, owner.UserID, owner.GuestID}
	idx := 4
	if update.Title != nil {
		set = append(set, fmt.Sprintf("title=$%d", idx))
		args = append(args, *update.Title)
		idx++
	}
	if update.Color != nil {
		set = append(set, fmt.Sprintf("color=NULLIF($%d, '')", idx))
		args = append(args, *update.Color)
		idx++
	}
	if update.Position != nil {
		set = append(set, fmt.Sprintf("position=$%d", idx))
		args = append(args, *update.Position)
		idx++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at=NOW()")

	query := "UPDATE boards SET " + joinComma(set) + " WHERE id=$1 AND (user_id = $2 OR guest_id = $3)"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update board rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBoard removes the board; columns and tasks go with it via FK cascade,
// so the whole subtree disappears in one atomic statement.
func (s *PostgresStore) DeleteBoard(ctx context.Context, owner Owner, boardID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM boards WHERE id=$1 AND (user_id = $2 OR guest_id = $3)
	`, boardID, owner.UserID, owner.GuestID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete board rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountBoards(ctx context.Context, owner Owner) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM boards WHERE (user_id = $1 OR guest_id = $2)
	`, owner.UserID, owner.GuestID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count boards: %w", err)
	}
	return count, nil
}

// ReorderBoards applies the batch inside one transaction. Ids not owned by
// the caller match zero rows and are skipped without error.
func (s *PostgresStore) ReorderBoards(ctx context.Context, owner Owner, updates []PositionUpdate) error {
	return s.reorder(ctx, "boards", owner, updates)
}

func (s *PostgresStore) reorder(ctx context.Context, table string, owner Owner, updates []PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder tx: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET position=$1, updated_at=NOW() WHERE id=$2 AND (user_id = $3 OR guest_id = $4)`, table)
	for _, update := range updates {
		if _, err := tx.ExecContext(ctx, query, update.Position, update.ID, owner.UserID, owner.GuestID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reorder %s %s: %w", table, update.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, part := range parts {
		if i > 0 {
			out += ", "
		}
		out += part
	}
	return out
}
