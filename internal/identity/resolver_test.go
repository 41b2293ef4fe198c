package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userInfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer sub-token":
			w.Write([]byte(`{"sub":"user-123","email":"a@b.c"}`))
		case "Bearer id-token":
			w.Write([]byte(`{"id":42}`))
		case "Bearer empty-token":
			w.Write([]byte(`{}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPResolver(t *testing.T) {
	r := NewHTTPResolver(userInfoServer(t).URL)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "sub-token")
	require.NoError(t, err)
	assert.Equal(t, "user-123", id)

	id, err = r.Resolve(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	_, err = r.Resolve(ctx, "empty-token")
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = r.Resolve(ctx, "wrong")
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = r.Resolve(ctx, "")
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = r.Resolve(ctx, "broken")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestHTTPResolver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPResolver(url).Resolve(context.Background(), "tok")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCredentialFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", CredentialFromRequest(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", CredentialFromRequest(r))

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-cred"})
	assert.Equal(t, "cookie-cred", CredentialFromRequest(r))
}

type countingResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingResolver) Resolve(_ context.Context, cred string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "id-" + cred, nil
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCachingResolver(t *testing.T) {
	next := &countingResolver{}
	clock := &mockClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCachingResolverWithClock(next, clock, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := c.Resolve(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "id-a", id)
	}
	assert.Equal(t, 1, next.calls)

	clock.Advance(2 * time.Minute)
	_, err := c.Resolve(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachingResolver_DoesNotCacheFailures(t *testing.T) {
	next := &countingResolver{err: ErrUnauthenticated}
	c := NewCachingResolver(next, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := c.Resolve(context.Background(), "a")
		assert.True(t, errors.Is(err, ErrUnauthenticated))
	}
	assert.Equal(t, 2, next.calls)

	_, err := c.Resolve(context.Background(), "")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Equal(t, 2, next.calls)
}
