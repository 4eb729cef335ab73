package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupabaseValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"user-1","email":"user@example.com","role":"authenticated"}`))
		case "Bearer forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		case "Bearer anonymous":
			_, _ = w.Write([]byte(`{"email":"x@example.com"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
		}
	}))
	defer srv.Close()

	v := NewSupabaseValidator(srv.URL+"/", "anon-key", nil)

	t.Run("valid token", func(t *testing.T) {
		user, err := v.Validate(context.Background(), "good")
		require.NoError(t, err)
		assert.Equal(t, &User{ID: "user-1", Email: "user@example.com", Role: "authenticated"}, user)
	})

	for _, token := range []string{"expired", "forbidden", "anonymous", ""} {
		t.Run("rejected "+token, func(t *testing.T) {
			_, err := v.Validate(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}

	t.Run("upstream failure is not an invalid session", func(t *testing.T) {
		_, err := v.Validate(context.Background(), "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidSession)
		assert.Contains(t, err.Error(), "502")
	})
}

type countingValidator struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingValidator) Validate(ctx context.Context, token string) (*User, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &User{ID: "id-" + token}, nil
}

func TestCachedValidator_CacheHit(t *testing.T) {
	upstream := &countingValidator{}
	v := NewCachedValidator(upstream, time.Minute)

	for range 3 {
		user, err := v.Validate(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "id-tok", user.ID)
	}
	assert.EqualValues(t, 1, upstream.calls.Load())

	_, err := v.Validate(context.Background(), "other")
	require.NoError(t, err)
	assert.EqualValues(t, 2, upstream.calls.Load())
}

func TestCachedValidator_FailuresNotCached(t *testing.T) {
	upstream := &countingValidator{err: ErrInvalidSession}
	v := NewCachedValidator(upstream, time.Minute)

	for range 2 {
		_, err := v.Validate(context.Background(), "bad")
		assert.True(t, errors.Is(err, ErrInvalidSession))
	}
	assert.EqualValues(t, 2, upstream.calls.Load())
}

func TestCachedValidator_Expiry(t *testing.T) {
	upstream := &countingValidator{}
	v := NewCachedValidator(upstream, 20*time.Millisecond)

	_, err := v.Validate(context.Background(), "tok")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = v.Validate(context.Background(), "tok")
	require.NoError(t, err)

	assert.EqualValues(t, 2, upstream.calls.Load())
}

func TestCachedValidator_CollapsesConcurrentMisses(t *testing.T) {
	upstream := &countingValidator{delay: 50 * time.Millisecond}
	v := NewCachedValidator(upstream, time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := v.Validate(context.Background(), "tok")
			assert.NoError(t, err)
			assert.Equal(t, "id-tok", user.ID)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, upstream.calls.Load())
}

func TestUserContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), &User{ID: "u1"})
	user, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)

	_, ok = UserFromContext(WithUser(context.Background(), nil))
	assert.False(t, ok)
}
