package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) ListTasks(ctx context.Context, owner Owner, boardID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, COALESCE(column_id, ''), title, description, status, points, position, created_at, updated_at
		FROM tasks
		WHERE (user_id = $1 OR guest_id = $2)
		  AND ($3 = '' OR board_id = $3)
		ORDER BY position ASC, created_at ASC
	`, owner.UserID, owner.GuestID, boardID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(&item.ID, &item.BoardID, &item.ColumnID, &item.Title, &item.Description,
			&item.Status, &item.Points, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, owner Owner, taskID string) (Task, error) {
	var item Task
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, COALESCE(column_id, ''), title, description, status, points, position, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND (user_id = $2 OR guest_id = $3)
	`, taskID, owner.UserID, owner.GuestID).Scan(&item.ID, &item.BoardID, &item.ColumnID, &item.Title,
		&item.Description, &item.Status, &item.Points, &item.Position, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, owner Owner, task Task) (Task, error) {
	var next int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1000 FROM tasks WHERE board_id = $1
	`, task.BoardID).Scan(&next); err != nil {
		return Task{}, fmt.Errorf("next task position: %w", err)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, board_id, column_id, title, description, status, points, position, user_id, guest_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, board_id, COALESCE(column_id, ''), title, description, status, points, position, created_at, updated_at
	`, task.ID, task.BoardID, task.ColumnID, task.Title, task.Description, task.Status, task.Points, next,
		owner.UserID, owner.GuestID).
		Scan(&task.ID, &task.BoardID, &task.ColumnID, &task.Title, &task.Description,
			&task.Status, &task.Points, &task.Position, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, owner Owner, taskID string, update TaskUpdate) error {
	set := make([]string, 0, 6)
	args := []any{taskID, owner.UserID, owner.GuestID}
	idx := 4
	if update.Title != nil {
		set = append(set, fmt.Sprintf("title=$%d", idx))
		args = append(args, *update.Title)
		idx++
	}
	if update.Description != nil {
		set = append(set, fmt.Sprintf("description=$%d", idx))
		args = append(args, *update.Description)
		idx++
	}
	if update.Status != nil {
		set = append(set, fmt.Sprintf("status=$%d", idx))
		args = append(args, *update.Status)
		idx++
	}
	if update.Points != nil {
		set = append(set, fmt.Sprintf("points=$%d", idx))
		args = append(args, *update.Points)
		idx++
	}
	if update.ColumnID != nil {
		set = append(set, fmt.Sprintf("column_id=NULLIF($%d, '')", idx))
		args = append(args, *update.ColumnID)
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

	query := "UPDATE tasks SET " + joinComma(set) + " WHERE id=$1 AND (user_id = $2 OR guest_id = $3)"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, owner Owner, taskID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE id=$1 AND (user_id = $2 OR guest_id = $3)
	`, taskID, owner.UserID, owner.GuestID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountTasksByBoard(ctx context.Context, owner Owner, boardID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks WHERE board_id = $1 AND (user_id = $2 OR guest_id = $3)
	`, boardID, owner.UserID, owner.GuestID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count board tasks: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ReorderTasks(ctx context.Context, owner Owner, updates []PositionUpdate) error {
	return s.reorder(ctx, "tasks", owner, updates)
}
