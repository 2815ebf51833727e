package authpw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sprintbase/api/internal/store"
)

type memUserStore struct {
	users map[string]store.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]store.User)}
}

func (m *memUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	user, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUserStore) CreateUser(_ context.Context, user store.User) error {
	m.users[user.ID] = user
	return nil
}

func TestRegisterHashesPasswordAndNormalizesEmail(t *testing.T) {
	svc := NewService(newMemUserStore())

	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "  Avery@Example.COM ",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Equal(t, "avery@example.com", user.Email)
	assert.Equal(t, "avery", user.DisplayName)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := NewService(newMemUserStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "not-an-email", Password: "password123"})
	assert.Error(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Email: "avery@example.com", Password: "short"})
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newMemUserStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "avery@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Email: "AVERY@example.com", Password: "password456"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginVerifiesPassword(t *testing.T) {
	svc := NewService(newMemUserStore())
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{Email: "avery@example.com", Password: "password123", DisplayName: "Avery"})
	require.NoError(t, err)

	user, err := svc.Login(ctx, "avery@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Login(ctx, "avery@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
