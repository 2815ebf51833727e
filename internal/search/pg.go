package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// Pg implements Searcher using ILIKE matching in Postgres as a fallback.
// Ranking is crude (boards, then tasks, then items, newest first) but the
// results stay correct when Meilisearch is down or not configured.
type Pg struct {
	db *sql.DB
}

// NewPg creates a Postgres searcher.
func NewPg(db *sql.DB) *Pg {
	return &Pg{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *Pg) Healthy() bool {
	return true
}

func ownerColumn(ownerKey string) (column, id string, err error) {
	switch {
	case strings.HasPrefix(ownerKey, "user:"):
		return "user_id", strings.TrimPrefix(ownerKey, "user:"), nil
	case strings.HasPrefix(ownerKey, "guest:"):
		return "guest_id", strings.TrimPrefix(ownerKey, "guest:"), nil
	default:
		return "", "", fmt.Errorf("malformed owner key %q", ownerKey)
	}
}

// Search runs a UNION ALL over boards, tasks, and scrum_items. The owner
// column predicate is on every branch, so a hit outside the caller's
// identity is impossible.
func (p *Pg) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	col, ownerID, err := ownerColumn(q.OwnerKey)
	if err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + q.Text + "%"
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultBoard {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'board'::text AS type, b.id, b.title, ''::text AS snippet,
				b.id AS board_id, ''::text AS kind, 1 AS weight, b.updated_at
			FROM boards b
			WHERE b.%s = $1 AND b.title ILIKE $2`, col))
	}

	if q.FilterType == "" || q.FilterType == ResultTask {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.title,
				left(t.description, 160) AS snippet,
				t.board_id, ''::text AS kind, 2 AS weight, t.updated_at
			FROM tasks t
			WHERE t.%s = $1 AND (t.title ILIKE $2 OR t.description ILIKE $2)`, col))
	}

	if q.FilterType == "" || q.FilterType == ResultItem {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'item'::text AS type, s.id,
				coalesce(s.data->>'title', s.data->>'name', '') AS title,
				''::text AS snippet,
				''::text AS board_id, s.kind, 3 AS weight, s.updated_at
			FROM scrum_items s
			WHERE s.%s = $1 AND s.data::text ILIKE $2`, col))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	if err := p.db.QueryRow(countSQL, ownerID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search hits: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, board_id, kind
		FROM (%s) sub
		ORDER BY weight ASC, updated_at DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	rows, err := p.db.Query(dataSQL, ownerID, pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.BoardID, &r.Kind); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search hits: %w", err)
	}
	return results, total, nil
}
