// Package guest issues and retires the anonymous-visitor cookie. The
// server-set HTTP-only cookie is the sole authority for guest ownership;
// nothing client-derived (fingerprints included) participates in
// authorization.
package guest

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	cookieName string
	ttl        time.Duration
}

func NewStore(cookieName string, ttl time.Duration) *Store {
	return &Store{cookieName: cookieName, ttl: ttl}
}

// Read returns the guest id from the request cookie, or "" when absent or
// malformed. It never mints.
func (s *Store) Read(r *http.Request) string {
	c, err := r.Cookie(s.cookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// GetOrCreate returns the existing guest id or mints a fresh one and sets the
// cookie. Repeated calls within a cookie's lifetime return the same id.
func (s *Store) GetOrCreate(w http.ResponseWriter, r *http.Request) string {
	if id := s.Read(r); id != "" {
		return id
	}
	id := uuid.NewString()
	s.set(w, id)
	return id
}

// Clear deletes the cookie. Rows still owned by the old guest id are
// forfeited unless they were migrated first.
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (s *Store) set(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.ttl),
		MaxAge:   int(s.ttl.Seconds()),
	})
}
