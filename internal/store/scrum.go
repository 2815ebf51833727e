package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Scrum collections share one parameterized table instead of nine
// near-identical ones; kind-specific fields ride in a JSONB payload and the
// ownership filter stays in exactly one place per operation.
const (
	KindSprints        = "sprints"
	KindEpics          = "epics"
	KindStories        = "stories"
	KindTeam           = "team"
	KindStandups       = "standups"
	KindReviews        = "reviews"
	KindRetrospectives = "retrospectives"
	KindSettings       = "settings"
	KindPageHeaders    = "page-headers"
)

var scrumKinds = map[string]bool{
	KindSprints:        true,
	KindEpics:          true,
	KindStories:        true,
	KindTeam:           true,
	KindStandups:       true,
	KindReviews:        true,
	KindRetrospectives: true,
	KindSettings:       true,
	KindPageHeaders:    true,
}

// Settings and page headers exist at most once per identity.
var singletonKinds = map[string]bool{
	KindSettings:    true,
	KindPageHeaders: true,
}

func IsScrumKind(kind string) bool {
	return scrumKinds[kind]
}

func IsSingletonKind(kind string) bool {
	return singletonKinds[kind]
}

func ScrumKinds() []string {
	return []string{
		KindSprints, KindEpics, KindStories, KindTeam, KindStandups,
		KindReviews, KindRetrospectives, KindSettings, KindPageHeaders,
	}
}

func (s *PostgresStore) ListScrumItems(ctx context.Context, owner Owner, kind string) ([]ScrumItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, position, data, created_at, updated_at
		FROM scrum_items
		WHERE kind = $1 AND (user_id = $2 OR guest_id = $3)
		ORDER BY position ASC, created_at ASC
	`, kind, owner.UserID, owner.GuestID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	items := make([]ScrumItem, 0)
	for rows.Next() {
		var item ScrumItem
		if err := rows.Scan(&item.ID, &item.Kind, &item.Position, &item.Data, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return items, nil
}

func (s *PostgresStore) GetScrumItem(ctx context.Context, owner Owner, kind, itemID string) (ScrumItem, error) {
	var item ScrumItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, position, data, created_at, updated_at
		FROM scrum_items
		WHERE kind = $1 AND id = $2 AND (user_id = $3 OR guest_id = $4)
	`, kind, itemID, owner.UserID, owner.GuestID).
		Scan(&item.ID, &item.Kind, &item.Position, &item.Data, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ScrumItem{}, ErrNotFound
	}
	if err != nil {
		return ScrumItem{}, fmt.Errorf("get %s: %w", kind, err)
	}
	return item, nil
}

func (s *PostgresStore) InsertScrumItem(ctx context.Context, owner Owner, item ScrumItem) (ScrumItem, error) {
	var next int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1000 FROM scrum_items WHERE kind = $1 AND (user_id = $2 OR guest_id = $3)
	`, item.Kind, owner.UserID, owner.GuestID).Scan(&next); err != nil {
		return ScrumItem{}, fmt.Errorf("next %s position: %w", item.Kind, err)
	}

	if item.Data == nil {
		item.Data = json.RawMessage(`{}`)
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO scrum_items (id, kind, position, data, user_id, guest_id)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		RETURNING id, kind, position, data, created_at, updated_at
	`, item.ID, item.Kind, next, string(item.Data), owner.UserID, owner.GuestID).
		Scan(&item.ID, &item.Kind, &item.Position, &item.Data, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return ScrumItem{}, fmt.Errorf("insert %s: %w", item.Kind, err)
	}
	return item, nil
}

// UpdateScrumItem replaces the payload by merging the patch over the stored
// document, so partial updates leave untouched fields intact.
func (s *PostgresStore) UpdateScrumItem(ctx context.Context, owner Owner, kind, itemID string, patch json.RawMessage) (ScrumItem, error) {
	var item ScrumItem
	err := s.db.QueryRowContext(ctx, `
		UPDATE scrum_items
		SET data = data || $5::jsonb, updated_at = NOW()
		WHERE kind = $1 AND id = $2 AND (user_id = $3 OR guest_id = $4)
		RETURNING id, kind, position, data, created_at, updated_at
	`, kind, itemID, owner.UserID, owner.GuestID, string(patch)).
		Scan(&item.ID, &item.Kind, &item.Position, &item.Data, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ScrumItem{}, ErrNotFound
	}
	if err != nil {
		return ScrumItem{}, fmt.Errorf("update %s: %w", kind, err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteScrumItem(ctx context.Context, owner Owner, kind, itemID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM scrum_items WHERE kind = $1 AND id = $2 AND (user_id = $3 OR guest_id = $4)
	`, kind, itemID, owner.UserID, owner.GuestID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s rows: %w", kind, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOrCreateScrumItem backs the singleton kinds: return the identity's
// existing row or create one with the given default payload.
func (s *PostgresStore) FindOrCreateScrumItem(ctx context.Context, owner Owner, kind, newID string, defaults json.RawMessage) (ScrumItem, error) {
	items, err := s.ListScrumItems(ctx, owner, kind)
	if err != nil {
		return ScrumItem{}, err
	}
	if len(items) > 0 {
		return items[0], nil
	}
	return s.InsertScrumItem(ctx, owner, ScrumItem{ID: newID, Kind: kind, Data: defaults})
}

func (s *PostgresStore) ReorderScrumItems(ctx context.Context, owner Owner, updates []PositionUpdate) error {
	return s.reorder(ctx, "scrum_items", owner, updates)
}
