// Package search provides identity-scoped search over boards, tasks, and
// scrum items, backed by Meilisearch with a Postgres fallback.
package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBoard ResultType = "board"
	ResultTask  ResultType = "task"
	ResultItem  ResultType = "item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet,omitempty"`
	BoardID string     `json:"boardId,omitempty"`
	Kind    string     `json:"kind,omitempty"`
}

// Query describes a search request. OwnerKey scopes every hit to the
// caller's identity; results never cross identities.
type Query struct {
	Text       string
	OwnerKey   string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a scoped text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// BoardRecord is the data we index for a board.
type BoardRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	BoardID     string `json:"boardId"`
	Owner       string `json:"owner"`
}

// ItemRecord is the data we index for a scrum item.
type ItemRecord struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Text  string `json:"text"`
	Owner string `json:"owner"`
}

// OwnerKey builds the identity scope value stored on every indexed record.
// Exactly one of userID, guestID is set.
func OwnerKey(userID, guestID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "guest:" + guestID
}
