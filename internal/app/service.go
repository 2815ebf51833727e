package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sprintbase/api/internal/auth"
	"sprintbase/api/internal/authpw"
	"sprintbase/api/internal/config"
	"sprintbase/api/internal/identity"
	"sprintbase/api/internal/search"
	"sprintbase/api/internal/store"
	"sprintbase/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

// MigrationReport summarizes a guest-to-user migration attempt. Moved maps
// entity kind to reassigned row count; Failed lists kinds whose transaction
// did not go through. Complete means every kind succeeded.
type MigrationReport struct {
	Moved    map[string]int64 `json:"moved"`
	Failed   []string         `json:"failed,omitempty"`
	Complete bool             `json:"complete"`
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListBoards(context.Context, store.Owner) ([]store.Board, error)
	GetBoard(context.Context, store.Owner, string) (store.Board, error)
	InsertBoard(context.Context, store.Owner, store.Board) (store.Board, error)
	UpdateBoard(context.Context, store.Owner, string, store.BoardUpdate) error
	DeleteBoard(context.Context, store.Owner, string) error
	CountBoards(context.Context, store.Owner) (int, error)
	ReorderBoards(context.Context, store.Owner, []store.PositionUpdate) error

	ListColumns(context.Context, store.Owner, string) ([]store.Column, error)
	InsertColumn(context.Context, store.Owner, store.Column) (store.Column, error)
	UpdateColumn(context.Context, store.Owner, string, *string, *int64) error
	DeleteColumn(context.Context, store.Owner, string) error

	ListTasks(context.Context, store.Owner, string) ([]store.Task, error)
	GetTask(context.Context, store.Owner, string) (store.Task, error)
	InsertTask(context.Context, store.Owner, store.Task) (store.Task, error)
	UpdateTask(context.Context, store.Owner, string, store.TaskUpdate) error
	DeleteTask(context.Context, store.Owner, string) error
	CountTasksByBoard(context.Context, store.Owner, string) (int, error)
	ReorderTasks(context.Context, store.Owner, []store.PositionUpdate) error

	ListScrumItems(context.Context, store.Owner, string) ([]store.ScrumItem, error)
	GetScrumItem(context.Context, store.Owner, string, string) (store.ScrumItem, error)
	InsertScrumItem(context.Context, store.Owner, store.ScrumItem) (store.ScrumItem, error)
	UpdateScrumItem(context.Context, store.Owner, string, string, json.RawMessage) (store.ScrumItem, error)
	DeleteScrumItem(context.Context, store.Owner, string, string) error
	FindOrCreateScrumItem(context.Context, store.Owner, string, string, json.RawMessage) (store.ScrumItem, error)
	ReorderScrumItems(context.Context, store.Owner, []store.PositionUpdate) error

	MigrateGuestTable(context.Context, string, string, string) (int64, error)
	MigrateGuestScrumKind(context.Context, string, string, string) (int64, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Redis when configured, Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type Service struct {
	cfg         config.Config
	store       dataStore
	sessions    sessionStore
	sessionPing func(context.Context) error
	pw          *authpw.Service
	search      *search.Service
	log         *zap.SugaredLogger
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchSvc *search.Service, log *zap.SugaredLogger) *Service {
	var sessionPing func(context.Context) error
	if sessions == nil {
		sessions = dataStore
	} else if pinger, ok := sessions.(interface{ Ping(context.Context) error }); ok {
		sessionPing = pinger.Ping
	}
	return &Service{
		cfg:         cfg,
		store:       dataStore,
		sessions:    sessions,
		sessionPing: sessionPing,
		pw:          authpw.NewService(dataStore),
		search:      searchSvc,
		log:         log,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions reports whether a dedicated session backend is configured and,
// if so, whether it is reachable. With the database fallback the database
// check already covers the session store.
func (s *Service) PingSessions(ctx context.Context) (bool, error) {
	if s.sessionPing == nil {
		return false, nil
	}
	return true, s.sessionPing(ctx)
}

// Auth

func (s *Service) Register(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.pw.Register(ctx, authpw.RegisterRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.pw.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.Email == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Boards

func (s *Service) ListBoards(ctx context.Context, ident identity.Identity) ([]store.Board, error) {
	return s.store.ListBoards(ctx, store.OwnerOf(ident))
}

func (s *Service) GetBoard(ctx context.Context, ident identity.Identity, boardID string) (store.Board, error) {
	return s.store.GetBoard(ctx, store.OwnerOf(ident), boardID)
}

func (s *Service) CreateBoard(ctx context.Context, ident identity.Identity, title, color string) (store.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Board{}, validationError("title is required")
	}

	owner := store.OwnerOf(ident)
	if ident.IsGuest() {
		count, err := s.store.CountBoards(ctx, owner)
		if err != nil {
			return store.Board{}, err
		}
		if count >= s.cfg.GuestBoardLimit {
			return store.Board{}, guestLimitError("board", s.cfg.GuestBoardLimit)
		}
	}

	board, err := s.store.InsertBoard(ctx, owner, store.Board{
		ID:    util.NewID("brd"),
		Title: title,
		Color: color,
	})
	if err != nil {
		return store.Board{}, err
	}
	s.indexBoard(ident, board)
	return board, nil
}

func (s *Service) UpdateBoard(ctx context.Context, ident identity.Identity, boardID string, update store.BoardUpdate) (store.Board, error) {
	owner := store.OwnerOf(ident)
	if err := s.store.UpdateBoard(ctx, owner, boardID, update); err != nil {
		return store.Board{}, err
	}
	board, err := s.store.GetBoard(ctx, owner, boardID)
	if err != nil {
		return store.Board{}, err
	}
	s.indexBoard(ident, board)
	return board, nil
}

func (s *Service) DeleteBoard(ctx context.Context, ident identity.Identity, boardID string) error {
	if err := s.store.DeleteBoard(ctx, store.OwnerOf(ident), boardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteBoard(boardID)
	}
	return nil
}

func (s *Service) ReorderBoards(ctx context.Context, ident identity.Identity, updates []store.PositionUpdate) error {
	return s.store.ReorderBoards(ctx, store.OwnerOf(ident), updates)
}

// Columns

func (s *Service) ListColumns(ctx context.Context, ident identity.Identity, boardID string) ([]store.Column, error) {
	owner := store.OwnerOf(ident)
	if _, err := s.store.GetBoard(ctx, owner, boardID); err != nil {
		return nil, err
	}
	return s.store.ListColumns(ctx, owner, boardID)
}

func (s *Service) CreateColumn(ctx context.Context, ident identity.Identity, boardID, title string) (store.Column, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Column{}, validationError("title is required")
	}

	owner := store.OwnerOf(ident)
	if _, err := s.store.GetBoard(ctx, owner, boardID); err != nil {
		return store.Column{}, err
	}
	return s.store.InsertColumn(ctx, owner, store.Column{
		ID:      util.NewID("col"),
		BoardID: boardID,
		Title:   title,
	})
}

func (s *Service) UpdateColumn(ctx context.Context, ident identity.Identity, columnID string, title *string, position *int64) error {
	return s.store.UpdateColumn(ctx, store.OwnerOf(ident), columnID, title, position)
}

func (s *Service) DeleteColumn(ctx context.Context, ident identity.Identity, columnID string) error {
	return s.store.DeleteColumn(ctx, store.OwnerOf(ident), columnID)
}

// Tasks

func (s *Service) ListTasks(ctx context.Context, ident identity.Identity, boardID string) ([]store.Task, error) {
	return s.store.ListTasks(ctx, store.OwnerOf(ident), boardID)
}

func (s *Service) GetTask(ctx context.Context, ident identity.Identity, taskID string) (store.Task, error) {
	return s.store.GetTask(ctx, store.OwnerOf(ident), taskID)
}

func (s *Service) CreateTask(ctx context.Context, ident identity.Identity, task store.Task) (store.Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return store.Task{}, validationError("title is required")
	}
	if task.BoardID == "" {
		return store.Task{}, validationError("boardId is required")
	}

	owner := store.OwnerOf(ident)
	if _, err := s.store.GetBoard(ctx, owner, task.BoardID); err != nil {
		return store.Task{}, err
	}
	if ident.IsGuest() {
		count, err := s.store.CountTasksByBoard(ctx, owner, task.BoardID)
		if err != nil {
			return store.Task{}, err
		}
		if count >= s.cfg.GuestTaskLimit {
			return store.Task{}, guestLimitError("task", s.cfg.GuestTaskLimit)
		}
	}

	task.ID = util.NewID("tsk")
	if task.Status == "" {
		task.Status = "todo"
	}
	created, err := s.store.InsertTask(ctx, owner, task)
	if err != nil {
		return store.Task{}, err
	}
	s.indexTask(ident, created)
	return created, nil
}

func (s *Service) UpdateTask(ctx context.Context, ident identity.Identity, taskID string, update store.TaskUpdate) (store.Task, error) {
	owner := store.OwnerOf(ident)
	if err := s.store.UpdateTask(ctx, owner, taskID, update); err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, owner, taskID)
	if err != nil {
		return store.Task{}, err
	}
	s.indexTask(ident, task)
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, ident identity.Identity, taskID string) error {
	if err := s.store.DeleteTask(ctx, store.OwnerOf(ident), taskID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	return nil
}

func (s *Service) ReorderTasks(ctx context.Context, ident identity.Identity, updates []store.PositionUpdate) error {
	return s.store.ReorderTasks(ctx, store.OwnerOf(ident), updates)
}

// Scrum collections

func (s *Service) ListScrumItems(ctx context.Context, ident identity.Identity, kind string) ([]store.ScrumItem, error) {
	owner := store.OwnerOf(ident)
	if store.IsSingletonKind(kind) {
		item, err := s.store.FindOrCreateScrumItem(ctx, owner, kind, util.NewID("itm"), json.RawMessage(`{}`))
		if err != nil {
			return nil, err
		}
		return []store.ScrumItem{item}, nil
	}
	return s.store.ListScrumItems(ctx, owner, kind)
}

func (s *Service) GetScrumItem(ctx context.Context, ident identity.Identity, kind, itemID string) (store.ScrumItem, error) {
	return s.store.GetScrumItem(ctx, store.OwnerOf(ident), kind, itemID)
}

func (s *Service) CreateScrumItem(ctx context.Context, ident identity.Identity, kind string, data json.RawMessage) (store.ScrumItem, error) {
	owner := store.OwnerOf(ident)
	if store.IsSingletonKind(kind) {
		return s.store.FindOrCreateScrumItem(ctx, owner, kind, util.NewID("itm"), data)
	}
	item, err := s.store.InsertScrumItem(ctx, owner, store.ScrumItem{
		ID:   util.NewID("itm"),
		Kind: kind,
		Data: data,
	})
	if err != nil {
		return store.ScrumItem{}, err
	}
	s.indexItem(ident, item)
	return item, nil
}

func (s *Service) UpdateScrumItem(ctx context.Context, ident identity.Identity, kind, itemID string, patch json.RawMessage) (store.ScrumItem, error) {
	item, err := s.store.UpdateScrumItem(ctx, store.OwnerOf(ident), kind, itemID, patch)
	if err != nil {
		return store.ScrumItem{}, err
	}
	s.indexItem(ident, item)
	return item, nil
}

func (s *Service) DeleteScrumItem(ctx context.Context, ident identity.Identity, kind, itemID string) error {
	if err := s.store.DeleteScrumItem(ctx, store.OwnerOf(ident), kind, itemID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	return nil
}

func (s *Service) ReorderScrumItems(ctx context.Context, ident identity.Identity, updates []store.PositionUpdate) error {
	return s.store.ReorderScrumItems(ctx, store.OwnerOf(ident), updates)
}

// MigrateGuest reassigns every guest-owned row to the user. Each entity kind
// migrates in its own transaction; a failed kind is recorded and left for a
// later attempt rather than aborting the rest. Running it again after full
// success moves nothing and still reports Complete.
func (s *Service) MigrateGuest(ctx context.Context, userID, guestID string) (MigrationReport, error) {
	if userID == "" || guestID == "" {
		return MigrationReport{}, domainError(http.StatusBadRequest, "INVALID_MIGRATION", "user and guest ids are required", nil)
	}

	report := MigrationReport{Moved: make(map[string]int64), Complete: true}

	for _, table := range store.OwnedTables() {
		moved, err := s.store.MigrateGuestTable(ctx, table, userID, guestID)
		if err != nil {
			s.log.Errorw("guest migration failed", "kind", table, "error", err)
			report.Failed = append(report.Failed, table)
			report.Complete = false
			continue
		}
		report.Moved[table] = moved
	}

	for _, kind := range store.ScrumKinds() {
		moved, err := s.store.MigrateGuestScrumKind(ctx, kind, userID, guestID)
		if err != nil {
			s.log.Errorw("guest migration failed", "kind", kind, "error", err)
			report.Failed = append(report.Failed, kind)
			report.Complete = false
			continue
		}
		report.Moved[kind] = moved
	}

	return report, nil
}

// Search

func (s *Service) Search(ctx context.Context, ident identity.Identity, q, filterType string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q}, nil
	}
	return s.search.Search(search.Query{
		Text:       q,
		OwnerKey:   search.OwnerKey(ident.UserID, ident.GuestID),
		FilterType: search.ResultType(filterType),
		Limit:      limit,
		Offset:     offset,
	}), nil
}

func (s *Service) indexBoard(ident identity.Identity, board store.Board) {
	if s.search == nil {
		return
	}
	s.search.IndexBoard(search.BoardRecord{
		ID:    board.ID,
		Title: board.Title,
		Owner: search.OwnerKey(ident.UserID, ident.GuestID),
	})
}

func (s *Service) indexTask(ident identity.Identity, task store.Task) {
	if s.search == nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		BoardID:     task.BoardID,
		Owner:       search.OwnerKey(ident.UserID, ident.GuestID),
	})
}

func (s *Service) indexItem(ident identity.Identity, item store.ScrumItem) {
	if s.search == nil {
		return
	}
	s.search.IndexItem(search.ItemRecord{
		ID:    item.ID,
		Kind:  item.Kind,
		Text:  scrumItemText(item.Data),
		Owner: search.OwnerKey(ident.UserID, ident.GuestID),
	})
}

func scrumItemText(data json.RawMessage) string {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	var parts []string
	for _, key := range []string{"title", "name", "text", "description", "notes"} {
		if v, ok := doc[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func guestLimitError(kind string, limit int) *DomainError {
	return domainError(http.StatusForbidden, "GUEST_LIMIT", "Guest "+kind+" limit reached, sign up to continue", map[string]any{
		"requiresAuth": true,
		"kind":         kind,
		"limit":        limit,
	})
}
