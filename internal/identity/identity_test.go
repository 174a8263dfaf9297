package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, "anon-key", "service-key"), srv
}

func TestUserFromToken(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "user-1", "email": "member@example.com"}`))
	})
	defer srv.Close()

	user, err := client.UserFromToken(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "member@example.com", user.Email)
}

func TestUserFromToken_EmptyToken(t *testing.T) {
	client := NewClient("http://unused.invalid", "anon", "service")

	_, err := client.UserFromToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserByID(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/admin/users/user-7", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "user-7", "email": "member@example.com"}`))
	})
	defer srv.Close()

	user, err := client.UserByID(context.Background(), "user-7")
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", user.Email)
}

func TestUserByID_NotFound(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer srv.Close()

	_, err := client.UserByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserByID_ServerError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := client.UserByID(context.Background(), "user-7")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestUserResponseWithoutID(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	_, err := client.UserByID(context.Background(), "user-7")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
