package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a validated token is trusted without
// asking the auth service again.
const DefaultCacheTTL = 30 * time.Second

// CachedValidator memoizes successful validations. Concurrent misses for the
// same token share one upstream call. Failures are never cached.
type CachedValidator struct {
	next  Validator
	cache *gocache.Cache
	group singleflight.Group
}

func NewCachedValidator(next Validator, ttl time.Duration) *CachedValidator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedValidator{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (v *CachedValidator) Validate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	key := cacheKey(token)
	if cached, ok := v.cache.Get(key); ok {
		return cached.(*User), nil
	}

	result, err, _ := v.group.Do(key, func() (any, error) {
		// Recheck: another caller may have filled the cache while we waited.
		if cached, ok := v.cache.Get(key); ok {
			return cached, nil
		}
		user, err := v.next.Validate(context.WithoutCancel(ctx), token)
		if err != nil {
			return nil, err
		}
		v.cache.SetDefault(key, user)
		return user, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*User), nil
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
