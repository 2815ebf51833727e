package search

import "go.uber.org/zap"

// Service is the facade that tries Meilisearch first and falls back to
// Postgres. Indexing is fire-and-forget so writes never block on the
// search backend.
type Service struct {
	meili *Meili
	pg    *Pg
	log   *zap.SugaredLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *Pg, log *zap.SugaredLogger) *Service {
	return &Service{meili: meili, pg: pg, log: log}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warnw("meilisearch error, falling back to postgres", "error", err)
	}

	results, total, err := s.pg.Search(q)
	if err != nil {
		s.log.Errorw("postgres search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBoard indexes a board.
func (s *Service) IndexBoard(b BoardRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexBoard(b); err != nil {
			s.log.Warnw("index board", "id", b.ID, "error", err)
		}
	}()
}

// IndexTask indexes a task.
func (s *Service) IndexTask(t TaskRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTask(t); err != nil {
			s.log.Warnw("index task", "id", t.ID, "error", err)
		}
	}()
}

// IndexItem indexes a scrum item.
func (s *Service) IndexItem(it ItemRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexItem(it); err != nil {
			s.log.Warnw("index item", "id", it.ID, "error", err)
		}
	}()
}

// DeleteBoard removes a board from the index.
func (s *Service) DeleteBoard(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBoard(id); err != nil {
			s.log.Warnw("delete board from index", "id", id, "error", err)
		}
	}()
}

// DeleteTask removes a task from the index.
func (s *Service) DeleteTask(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTask(id); err != nil {
			s.log.Warnw("delete task from index", "id", id, "error", err)
		}
	}()
}

// DeleteItem removes a scrum item from the index.
func (s *Service) DeleteItem(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteItem(id); err != nil {
			s.log.Warnw("delete item from index", "id", id, "error", err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
