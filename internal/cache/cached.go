package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Cached is the single cache-aside combinator used by every read path.
// A hit is decoded and returned; a miss, a backend failure or an undecodable
// payload all fall through to compute, whose result is written back.
// Cache errors are logged and never returned; compute errors always are.
func Cached[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	raw, err := c.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal([]byte(raw), &v)
		if uerr == nil {
			return v, nil
		}
		log.Warn().Err(uerr).Str("key", key).Msg("corrupt cache entry, treating as miss")
	case !errors.Is(err, ErrMiss):
		log.Warn().Err(err).Str("key", key).Msg("cache get failed, falling back to store")
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return v, nil
	}
	if err := c.Set(ctx, key, string(payload), ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return v, nil
}

// InvalidateUser drops the unread counter and every cached list page of a user.
// Failures are logged; the entries expire within one TTL regardless.
func InvalidateUser(ctx context.Context, c Cache, userID string) {
	if err := c.Delete(ctx, UnreadKey(userID)); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("cache invalidate unread failed")
	}
	if err := c.DeleteByPrefix(ctx, ListPrefix(userID)); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("cache invalidate list failed")
	}
}

// timeoutCache bounds every call on the wrapped Cache.
type timeoutCache struct {
	next    Cache
	timeout time.Duration
}

// WithTimeout wraps c so each operation is cancelled after d.
// A non-positive d returns c unchanged.
func WithTimeout(c Cache, d time.Duration) Cache {
	if d <= 0 {
		return c
	}
	return &timeoutCache{next: c, timeout: d}
}

func (t *timeoutCache) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Get(ctx, key)
}

func (t *timeoutCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Set(ctx, key, value, ttl)
}

func (t *timeoutCache) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Delete(ctx, keys...)
}

func (t *timeoutCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DeleteByPrefix(ctx, prefix)
}
