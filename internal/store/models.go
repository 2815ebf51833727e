package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Board struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Color     string    `json:"color,omitempty"`
	Position  int64     `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Column struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Position int64  `json:"position"`
}

type Task struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"boardId"`
	ColumnID    string    `json:"columnId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Points      int       `json:"points"`
	Position    int64     `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ScrumItem is the generic row shape for the scrum collections (sprints,
// epics, stories, team, standups, reviews, retrospectives, settings,
// page-headers). Kind-specific fields live in Data.
type ScrumItem struct {
	ID        string          `json:"id"`
	Kind      string          `json:"-"`
	Position  int64           `json:"position"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PositionUpdate is one element of a batch reorder request.
type PositionUpdate struct {
	ID       string `json:"id"`
	Position int64  `json:"position"`
}

// BoardUpdate carries optional PATCH fields; nil means leave unchanged.
type BoardUpdate struct {
	Title    *string `json:"title"`
	Color    *string `json:"color"`
	Position *int64  `json:"position"`
}

// TaskUpdate carries optional PATCH fields; nil means leave unchanged.
type TaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Points      *int    `json:"points"`
	ColumnID    *string `json:"columnId"`
	Position    *int64  `json:"position"`
}
