package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"sprintbase/api/internal/authpw"
	"sprintbase/api/internal/config"
	"sprintbase/api/internal/identity"
	"sprintbase/api/internal/store"
)

// fakeStore is an in-memory dataStore that mirrors the ownership semantics of
// the SQL layer: rows carry exactly one owner, writes against rows the caller
// does not own report ErrNotFound, reorder skips foreign ids.
type fakeStore struct {
	users   map[string]store.User
	boards  map[string]*ownedRow[store.Board]
	columns map[string]*ownedRow[store.Column]
	tasks   map[string]*ownedRow[store.Task]
	items   map[string]*ownedRow[store.ScrumItem]
	refresh map[string]refreshRec
	revoked map[string]bool

	// kinds that should fail migration, for best-effort tests
	failKinds map[string]bool
}

type ownedRow[T any] struct {
	row   T
	user  string
	guest string
}

type refreshRec struct {
	userID    string
	expiresAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]store.User),
		boards:    make(map[string]*ownedRow[store.Board]),
		columns:   make(map[string]*ownedRow[store.Column]),
		tasks:     make(map[string]*ownedRow[store.Task]),
		items:     make(map[string]*ownedRow[store.ScrumItem]),
		refresh:   make(map[string]refreshRec),
		revoked:   make(map[string]bool),
		failKinds: make(map[string]bool),
	}
}

func ownerMatch(owner store.Owner, user, guest string) bool {
	if owner.UserID != nil {
		return user != "" && owner.UserID == user
	}
	if owner.GuestID != nil {
		return guest != "" && owner.GuestID == guest
	}
	return false
}

func ownerStrings(owner store.Owner) (string, string) {
	user, _ := owner.UserID.(string)
	guest, _ := owner.GuestID.(string)
	return user, guest
}

// Users and sessions

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return fmt.Errorf("duplicate email")
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, hash, userID string, expiresAt time.Time) error {
	f.refresh[hash] = refreshRec{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, hash string) (store.User, error) {
	rec, ok := f.refresh[hash]
	if !ok || time.Now().After(rec.expiresAt) {
		return store.User{}, store.ErrNotFound
	}
	return f.GetUserByID(ctx, rec.userID)
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, hash string) error {
	delete(f.refresh, hash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

// Boards

func (f *fakeStore) ListBoards(_ context.Context, owner store.Owner) ([]store.Board, error) {
	out := make([]store.Board, 0)
	for _, row := range f.boards {
		if ownerMatch(owner, row.user, row.guest) {
			out = append(out, row.row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) GetBoard(_ context.Context, owner store.Owner, boardID string) (store.Board, error) {
	row, ok := f.boards[boardID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.Board{}, store.ErrNotFound
	}
	return row.row, nil
}

func (f *fakeStore) InsertBoard(_ context.Context, owner store.Owner, board store.Board) (store.Board, error) {
	var max int64
	for _, row := range f.boards {
		if ownerMatch(owner, row.user, row.guest) && row.row.Position > max {
			max = row.row.Position
		}
	}
	board.Position = max + 1000
	board.CreatedAt = time.Now()
	board.UpdatedAt = board.CreatedAt
	user, guest := ownerStrings(owner)
	f.boards[board.ID] = &ownedRow[store.Board]{row: board, user: user, guest: guest}
	return board, nil
}

func (f *fakeStore) UpdateBoard(_ context.Context, owner store.Owner, boardID string, update store.BoardUpdate) error {
	row, ok := f.boards[boardID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.ErrNotFound
	}
	if update.Title != nil {
		row.row.Title = *update.Title
	}
	if update.Color != nil {
		row.row.Color = *update.Color
	}
	if update.Position != nil {
		row.row.Position = *update.Position
	}
	row.row.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) DeleteBoard(_ context.Context, owner store.Owner, boardID string) error {
	row, ok := f.boards[boardID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.ErrNotFound
	}
	delete(f.boards, boardID)
	for id, col := range f.columns {
		if col.row.BoardID == boardID {
			delete(f.columns, id)
		}
	}
	for id, task := range f.tasks {
		if task.row.BoardID == boardID {
			delete(f.tasks, id)
		}
	}
	return nil
}

func (f *fakeStore) CountBoards(ctx context.Context, owner store.Owner) (int, error) {
	boards, _ := f.ListBoards(ctx, owner)
	return len(boards), nil
}

func (f *fakeStore) ReorderBoards(_ context.Context, owner store.Owner, updates []store.PositionUpdate) error {
	for _, update := range updates {
		row, ok := f.boards[update.ID]
		if !ok || !ownerMatch(owner, row.user, row.guest) {
			continue
		}
		row.row.Position = update.Position
	}
	return nil
}

// Columns

func (f *fakeStore) ListColumns(_ context.Context, owner store.Owner, boardID string) ([]store.Column, error) {
	out := make([]store.Column, 0)
	for _, row := range f.columns {
		if row.row.BoardID == boardID && ownerMatch(owner, row.user, row.guest) {
			out = append(out, row.row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) InsertColumn(_ context.Context, owner store.Owner, column store.Column) (store.Column, error) {
	var max int64
	for _, row := range f.columns {
		if row.row.BoardID == column.BoardID && row.row.Position > max {
			max = row.row.Position
		}
	}
	column.Position = max + 1000
	user, guest := ownerStrings(owner)
	f.columns[column.ID] = &ownedRow[store.Column]{row: column, user: user, guest: guest}
	return column, nil
}

func (f *fakeStore) UpdateColumn(_ context.Context, owner store.Owner, columnID string, title *string, position *int64) error {
	row, ok := f.columns[columnID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.ErrNotFound
	}
	if title != nil {
		row.row.Title = *title
	}
	if position != nil {
		row.row.Position = *position
	}
	return nil
}

func (f *fakeStore) DeleteColumn(_ context.Context, owner store.Owner, columnID string) error {
	row, ok := f.columns[columnID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.ErrNotFound
	}
	delete(f.columns, columnID)
	for id, task := range f.tasks {
		if task.row.ColumnID == columnID {
			delete(f.tasks, id)
		}
	}
	return nil
}

// Tasks

func (f *fakeStore) ListTasks(_ context.Context, owner store.Owner, boardID string) ([]store.Task, error) {
	out := make([]store.Task, 0)
	for _, row := range f.tasks {
		if !ownerMatch(owner, row.user, row.guest) {
			continue
		}
		if boardID != "" && row.row.BoardID != boardID {
			continue
		}
		out = append(out, row.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) GetTask(_ context.Context, owner store.Owner, taskID string) (store.Task, error) {
	row, ok := f.tasks[taskID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.Task{}, store.ErrNotFound
	}
	return row.row, nil
}

func (f *fakeStore) InsertTask(_ context.Context, owner store.Owner, task store.Task) (store.Task, error) {
	var max int64
	for _, row := range f.tasks {
		if row.row.BoardID == task.BoardID && row.row.Position > max {
			max = row.row.Position
		}
	}
	task.Position = max + 1000
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	user, guest := ownerStrings(owner)
	f.tasks[task.ID] = &ownedRow[store.Task]{row: task, user: user, guest: guest}
	return task, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, owner store.Owner, taskID string, update store.TaskUpdate) error {
	row, ok := f.tasks[taskID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.ErrNotFound
	}
	if update.Title != nil {
		row.row.Title = *update.Title
	}
	if update.Description != nil {
		row.row.Description = *update.Description
	}
	if update.Status != nil {
		row.row.Status = *update.Status
	}
	if update.Points != nil {
		row.row.Points = *update.Points
	}
	if update.ColumnID != nil {
		row.row.ColumnID = *update.ColumnID
	}
	if update.Position != nil {
		row.row.Position = *update.Position
	}
	row.row.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) DeleteTask(_ context.Context, owner store.Owner, taskID string) error {
	row, ok := f.tasks[taskID]
	if !ok || !ownerMatch(owner, row.user, row.guest) {
		return store.ErrNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) CountTasksByBoard(_ context.Context, owner store.Owner, boardID string) (int, error) {
	count := 0
	for _, row := range f.tasks {
		if row.row.BoardID == boardID && ownerMatch(owner, row.user, row.guest) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ReorderTasks(_ context.Context, owner store.Owner, updates []store.PositionUpdate) error {
	for _, update := range updates {
		row, ok := f.tasks[update.ID]
		if !ok || !ownerMatch(owner, row.user, row.guest) {
			continue
		}
		row.row.Position = update.Position
	}
	return nil
}

// Scrum items

func (f *fakeStore) ListScrumItems(_ context.Context, owner store.Owner, kind string) ([]store.ScrumItem, error) {
	out := make([]store.ScrumItem, 0)
	for _, row := range f.items {
		if row.row.Kind == kind && ownerMatch(owner, row.user, row.guest) {
			out = append(out, row.row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) GetScrumItem(_ context.Context, owner store.Owner, kind, itemID string) (store.ScrumItem, error) {
	row, ok := f.items[itemID]
	if !ok || row.row.Kind != kind || !ownerMatch(owner, row.user, row.guest) {
		return store.ScrumItem{}, store.ErrNotFound
	}
	return row.row, nil
}

func (f *fakeStore) InsertScrumItem(_ context.Context, owner store.Owner, item store.ScrumItem) (store.ScrumItem, error) {
	var max int64
	for _, row := range f.items {
		if row.row.Kind == item.Kind && ownerMatch(owner, row.user, row.guest) && row.row.Position > max {
			max = row.row.Position
		}
	}
	item.Position = max + 1000
	if item.Data == nil {
		item.Data = json.RawMessage(`{}`)
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	user, guest := ownerStrings(owner)
	f.items[item.ID] = &ownedRow[store.ScrumItem]{row: item, user: user, guest: guest}
	return item, nil
}

func (f *fakeStore) UpdateScrumItem(_ context.Context, owner store.Owner, kind, itemID string, patch json.RawMessage) (store.ScrumItem, error) {
	row, ok := f.items[itemID]
	if !ok || row.row.Kind != kind || !ownerMatch(owner, row.user, row.guest) {
		return store.ScrumItem{}, store.ErrNotFound
	}
	merged := map[string]any{}
	_ = json.Unmarshal(row.row.Data, &merged)
	incoming := map[string]any{}
	_ = json.Unmarshal(patch, &incoming)
	for k, v := range incoming {
		merged[k] = v
	}
	data, _ := json.Marshal(merged)
	row.row.Data = data
	row.row.UpdatedAt = time.Now()
	return row.row, nil
}

func (f *fakeStore) DeleteScrumItem(_ context.Context, owner store.Owner, kind, itemID string) error {
	row, ok := f.items[itemID]
	if !ok || row.row.Kind != kind || !ownerMatch(owner, row.user, row.guest) {
		return store.ErrNotFound
	}
	delete(f.items, itemID)
	return nil
}

func (f *fakeStore) FindOrCreateScrumItem(ctx context.Context, owner store.Owner, kind, newID string, defaults json.RawMessage) (store.ScrumItem, error) {
	items, _ := f.ListScrumItems(ctx, owner, kind)
	if len(items) > 0 {
		return items[0], nil
	}
	return f.InsertScrumItem(ctx, owner, store.ScrumItem{ID: newID, Kind: kind, Data: defaults})
}

func (f *fakeStore) ReorderScrumItems(_ context.Context, owner store.Owner, updates []store.PositionUpdate) error {
	for _, update := range updates {
		row, ok := f.items[update.ID]
		if !ok || !ownerMatch(owner, row.user, row.guest) {
			continue
		}
		row.row.Position = update.Position
	}
	return nil
}

// Migration

func (f *fakeStore) MigrateGuestTable(_ context.Context, table, userID, guestID string) (int64, error) {
	if f.failKinds[table] {
		return 0, errors.New("simulated failure")
	}
	var moved int64
	switch table {
	case "boards":
		for _, row := range f.boards {
			if row.guest == guestID {
				row.guest = ""
				row.user = userID
				moved++
			}
		}
	case "columns":
		for _, row := range f.columns {
			if row.guest == guestID {
				row.guest = ""
				row.user = userID
				moved++
			}
		}
	case "tasks":
		for _, row := range f.tasks {
			if row.guest == guestID {
				row.guest = ""
				row.user = userID
				moved++
			}
		}
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	return moved, nil
}

func (f *fakeStore) MigrateGuestScrumKind(_ context.Context, kind, userID, guestID string) (int64, error) {
	if f.failKinds[kind] {
		return 0, errors.New("simulated failure")
	}
	if store.IsSingletonKind(kind) {
		userHas := false
		for _, row := range f.items {
			if row.row.Kind == kind && row.user == userID {
				userHas = true
			}
		}
		if userHas {
			for id, row := range f.items {
				if row.row.Kind == kind && row.guest == guestID {
					delete(f.items, id)
				}
			}
			return 0, nil
		}
	}
	var moved int64
	for _, row := range f.items {
		if row.row.Kind == kind && row.guest == guestID {
			row.guest = ""
			row.user = userID
			moved++
		}
	}
	return moved, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		TokenSecret:     "test-secret",
		AccessTTL:       time.Hour,
		RefreshTTL:      24 * time.Hour,
		GuestBoardLimit: 2,
		GuestTaskLimit:  20,
	}
	return &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		pw:       authpw.NewService(fs),
		log:      zap.NewNop().Sugar(),
	}
}

func TestGuestBoardQuota(t *testing.T) {
	svc := newTestService(newFakeStore())
	guest := identity.Guest("guest-1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateBoard(ctx, guest, fmt.Sprintf("Board %d", i+1), ""); err != nil {
			t.Fatalf("board %d: %v", i+1, err)
		}
	}

	_, err := svc.CreateBoard(ctx, guest, "Board 3", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 403 || domainErr.Code != "GUEST_LIMIT" {
		t.Fatalf("expected 403 GUEST_LIMIT, got %d %s", domainErr.Status, domainErr.Code)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok || details["requiresAuth"] != true {
		t.Fatalf("expected requiresAuth detail, got %v", domainErr.Details)
	}
}

func TestAuthenticatedUserExemptFromQuota(t *testing.T) {
	svc := newTestService(newFakeStore())
	user := identity.Authenticated("user-1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.CreateBoard(ctx, user, fmt.Sprintf("Board %d", i+1), ""); err != nil {
			t.Fatalf("board %d: %v", i+1, err)
		}
	}
}

func TestGuestTaskQuotaPerBoard(t *testing.T) {
	svc := newTestService(newFakeStore())
	svc.cfg.GuestTaskLimit = 2
	guest := identity.Guest("guest-1")
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, guest, "Board", "")
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.CreateTask(ctx, guest, store.Task{BoardID: board.ID, Title: fmt.Sprintf("Task %d", i+1)}); err != nil {
			t.Fatalf("task %d: %v", i+1, err)
		}
	}

	_, err = svc.CreateTask(ctx, guest, store.Task{BoardID: board.ID, Title: "Task 3"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "GUEST_LIMIT" {
		t.Fatalf("expected GUEST_LIMIT, got %v", err)
	}

	// A second board gets its own counter.
	other, err := svc.CreateBoard(ctx, guest, "Other", "")
	if err != nil {
		t.Fatalf("second board: %v", err)
	}
	if _, err := svc.CreateTask(ctx, guest, store.Task{BoardID: other.ID, Title: "Fresh"}); err != nil {
		t.Fatalf("task on second board: %v", err)
	}
}

func TestCrossIdentityAccessLooksLikeNotFound(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, identity.Guest("guest-a"), "Private", "")
	if err != nil {
		t.Fatalf("create board: %v", err)
	}

	for _, other := range []identity.Identity{identity.Guest("guest-b"), identity.Authenticated("user-1")} {
		if _, err := svc.GetBoard(ctx, other, board.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for %+v, got %v", other, err)
		}
		title := "stolen"
		if _, err := svc.UpdateBoard(ctx, other, board.ID, store.BoardUpdate{Title: &title}); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on update for %+v, got %v", other, err)
		}
		if err := svc.DeleteBoard(ctx, other, board.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on delete for %+v, got %v", other, err)
		}
	}

	// Owner still sees it untouched.
	got, err := svc.GetBoard(ctx, identity.Guest("guest-a"), board.ID)
	if err != nil || got.Title != "Private" {
		t.Fatalf("owner lost the board: %v %+v", err, got)
	}
}

func TestReorderSkipsForeignIds(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	mine := identity.Guest("guest-a")
	theirs := identity.Guest("guest-b")

	a, _ := svc.CreateBoard(ctx, mine, "A", "")
	b, _ := svc.CreateBoard(ctx, mine, "B", "")
	foreign, _ := svc.CreateBoard(ctx, theirs, "Foreign", "")
	foreignPos := foreign.Position

	err := svc.ReorderBoards(ctx, mine, []store.PositionUpdate{
		{ID: b.ID, Position: 500},
		{ID: foreign.ID, Position: 1},
		{ID: a.ID, Position: 1500},
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}

	boards, _ := svc.ListBoards(ctx, mine)
	if len(boards) != 2 || boards[0].ID != b.ID || boards[1].ID != a.ID {
		t.Fatalf("unexpected order: %+v", boards)
	}
	if fs.boards[foreign.ID].row.Position != foreignPos {
		t.Fatalf("foreign board position changed")
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	guest := identity.Guest("guest-1")

	board, _ := svc.CreateBoard(ctx, guest, "Board", "")
	column, err := svc.CreateColumn(ctx, guest, board.ID, "Todo")
	if err != nil {
		t.Fatalf("create column: %v", err)
	}
	task, err := svc.CreateTask(ctx, guest, store.Task{BoardID: board.ID, ColumnID: column.ID, Title: "Task"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := svc.DeleteBoard(ctx, guest, board.ID); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	if _, ok := fs.columns[column.ID]; ok {
		t.Fatalf("column survived board delete")
	}
	if _, ok := fs.tasks[task.ID]; ok {
		t.Fatalf("task survived board delete")
	}
}

func TestMigrateGuestMovesEverythingAndIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	guest := identity.Guest("guest-1")

	board, _ := svc.CreateBoard(ctx, guest, "Board", "")
	_, _ = svc.CreateColumn(ctx, guest, board.ID, "Todo")
	_, _ = svc.CreateTask(ctx, guest, store.Task{BoardID: board.ID, Title: "Task"})
	_, _ = svc.CreateScrumItem(ctx, guest, store.KindSprints, json.RawMessage(`{"title":"Sprint 1"}`))
	_, _ = svc.CreateScrumItem(ctx, guest, store.KindSettings, json.RawMessage(`{"theme":"dark"}`))

	report, err := svc.MigrateGuest(ctx, "user-1", "guest-1")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !report.Complete {
		t.Fatalf("expected complete migration, failed=%v", report.Failed)
	}
	if report.Moved["boards"] != 1 || report.Moved["tasks"] != 1 || report.Moved["columns"] != 1 {
		t.Fatalf("unexpected counts: %v", report.Moved)
	}
	if report.Moved[store.KindSprints] != 1 || report.Moved[store.KindSettings] != 1 {
		t.Fatalf("scrum kinds not moved: %v", report.Moved)
	}

	user := identity.Authenticated("user-1")
	boards, _ := svc.ListBoards(ctx, user)
	if len(boards) != 1 {
		t.Fatalf("user should own the board, got %d", len(boards))
	}
	if got, _ := svc.ListBoards(ctx, guest); len(got) != 0 {
		t.Fatalf("guest should own nothing after migration")
	}

	// Second run is a no-op and still reports success.
	again, err := svc.MigrateGuest(ctx, "user-1", "guest-1")
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !again.Complete {
		t.Fatalf("expected idempotent success")
	}
	for kind, moved := range again.Moved {
		if moved != 0 {
			t.Fatalf("expected zero moved for %s, got %d", kind, moved)
		}
	}
}

func TestMigrateGuestBestEffortRetries(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	guest := identity.Guest("guest-1")

	board, _ := svc.CreateBoard(ctx, guest, "Board", "")
	_, _ = svc.CreateTask(ctx, guest, store.Task{BoardID: board.ID, Title: "Task"})

	fs.failKinds["tasks"] = true
	report, err := svc.MigrateGuest(ctx, "user-1", "guest-1")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if report.Complete {
		t.Fatalf("expected incomplete migration")
	}
	if len(report.Failed) != 1 || report.Failed[0] != "tasks" {
		t.Fatalf("expected tasks to fail, got %v", report.Failed)
	}
	if report.Moved["boards"] != 1 {
		t.Fatalf("boards should still migrate: %v", report.Moved)
	}

	// Retry picks up the kind that failed.
	fs.failKinds["tasks"] = false
	retry, err := svc.MigrateGuest(ctx, "user-1", "guest-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !retry.Complete || retry.Moved["tasks"] != 1 {
		t.Fatalf("retry should move the task: %+v", retry)
	}
}

func TestMigrateGuestSingletonDuplicateDropped(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	user := identity.Authenticated("user-1")
	guest := identity.Guest("guest-1")

	userSettings, err := svc.CreateScrumItem(ctx, user, store.KindSettings, json.RawMessage(`{"theme":"light"}`))
	if err != nil {
		t.Fatalf("user settings: %v", err)
	}
	if _, err := svc.CreateScrumItem(ctx, guest, store.KindSettings, json.RawMessage(`{"theme":"dark"}`)); err != nil {
		t.Fatalf("guest settings: %v", err)
	}

	report, err := svc.MigrateGuest(ctx, "user-1", "guest-1")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if report.Moved[store.KindSettings] != 0 {
		t.Fatalf("duplicate singleton should be dropped, not moved")
	}

	items, _ := svc.ListScrumItems(ctx, user, store.KindSettings)
	if len(items) != 1 || items[0].ID != userSettings.ID {
		t.Fatalf("user should keep their own settings, got %+v", items)
	}
}

func TestSingletonFindOrCreate(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()
	guest := identity.Guest("guest-1")

	first, err := svc.ListScrumItems(ctx, guest, store.KindSettings)
	if err != nil || len(first) != 1 {
		t.Fatalf("expected one settings item, got %v %v", first, err)
	}
	second, err := svc.ListScrumItems(ctx, guest, store.KindSettings)
	if err != nil || len(second) != 1 {
		t.Fatalf("expected one settings item on second read, got %v %v", second, err)
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("singleton should be stable across reads")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	session, err := svc.Register(ctx, "avery@example.com", "password123", "Avery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatalf("refresh token should rotate")
	}

	// The old token was revoked by the rotation.
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatalf("expected old refresh token to be rejected")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	session, err := svc.Register(ctx, "avery@example.com", "password123", "Avery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err != nil {
		t.Fatalf("token should be valid before logout: %v", err)
	}

	if err := svc.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}
}
