package store

import (
	"context"
	"fmt"
)

// Guest-to-user reassignment. Each call touches one entity kind inside one
// transaction; the service layer walks all kinds and tolerates per-kind
// failure, so a partially migrated guest can finish on a later attempt.
// Re-running after success matches zero rows and reports zero moved.

// relational tables carrying owner columns, migrated one at a time
var ownedTables = []string{"boards", "columns", "tasks"}

func OwnedTables() []string {
	return append([]string(nil), ownedTables...)
}

func (s *PostgresStore) MigrateGuestTable(ctx context.Context, table, userID, guestID string) (int64, error) {
	allowed := false
	for _, t := range ownedTables {
		if t == table {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0, fmt.Errorf("migrate guest: unknown table %q", table)
	}

	query := fmt.Sprintf(`UPDATE %s SET user_id=$1, guest_id=NULL WHERE guest_id=$2`, table)
	result, err := s.db.ExecContext(ctx, query, userID, guestID)
	if err != nil {
		return 0, fmt.Errorf("migrate guest %s: %w", table, err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("migrate guest %s rows: %w", table, err)
	}
	return moved, nil
}

// MigrateGuestScrumKind reassigns one scrum kind. Singleton kinds keep their
// per-identity invariant: when the user already owns a row of that kind, the
// guest's duplicate is dropped instead of moved.
func (s *PostgresStore) MigrateGuestScrumKind(ctx context.Context, kind, userID, guestID string) (int64, error) {
	if !IsScrumKind(kind) {
		return 0, fmt.Errorf("migrate guest: unknown scrum kind %q", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin migrate %s tx: %w", kind, err)
	}

	if IsSingletonKind(kind) {
		var userHas bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM scrum_items WHERE kind=$1 AND user_id=$2)
		`, kind, userID).Scan(&userHas)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("check singleton %s: %w", kind, err)
		}
		if userHas {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM scrum_items WHERE kind=$1 AND guest_id=$2
			`, kind, guestID); err != nil {
				_ = tx.Rollback()
				return 0, fmt.Errorf("drop duplicate %s: %w", kind, err)
			}
			if err := tx.Commit(); err != nil {
				return 0, fmt.Errorf("commit migrate %s: %w", kind, err)
			}
			return 0, nil
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE scrum_items SET user_id=$1, guest_id=NULL WHERE kind=$2 AND guest_id=$3
	`, userID, kind, guestID)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("migrate guest %s: %w", kind, err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("migrate guest %s rows: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit migrate %s: %w", kind, err)
	}
	return moved, nil
}
