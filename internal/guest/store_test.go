package guest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore("sb_guest_id", 365*24*time.Hour)
}

func TestGetOrCreateMintsUUID(t *testing.T) {
	store := newTestStore()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	id := store.GetOrCreate(rr, req)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "sb_guest_id", c.Name)
	assert.Equal(t, id, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Greater(t, c.MaxAge, 0)
}

func TestGetOrCreateReturnsExistingID(t *testing.T) {
	store := newTestStore()
	existing := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sb_guest_id", Value: existing})
	rr := httptest.NewRecorder()

	assert.Equal(t, existing, store.GetOrCreate(rr, req))
	assert.Empty(t, rr.Result().Cookies(), "no new cookie for a returning guest")
}

func TestReadRejectsMalformedCookie(t *testing.T) {
	store := newTestStore()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sb_guest_id", Value: "not-a-uuid"})
	assert.Empty(t, store.Read(req))

	// GetOrCreate replaces it with a fresh valid id.
	rr := httptest.NewRecorder()
	id := store.GetOrCreate(rr, req)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", id)
}

func TestReadNeverMints(t *testing.T) {
	store := newTestStore()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, store.Read(req))
}

func TestClearExpiresCookie(t *testing.T) {
	store := newTestStore()
	rr := httptest.NewRecorder()
	store.Clear(rr)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sb_guest_id", cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
	assert.Empty(t, cookies[0].Value)
}
