// Package cache holds the derived, time-bounded views of a user's
// notifications. Nothing stored here is authoritative: every read has a
// fallback to the repository.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brainwaves/notification/internal/domain"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is the key-value port used by the read and mutation paths.
type Cache interface {
	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error

	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error
}

const (
	unreadKeyFmt     = "notifications:unread:%s"
	listKeyPrefixFmt = "notifications:list:%s:"
)

// UnreadKey is the per-user unread counter key.
func UnreadKey(userID string) string {
	return fmt.Sprintf(unreadKeyFmt, userID)
}

// ListPrefix covers every cached list page of a user.
func ListPrefix(userID string) string {
	return fmt.Sprintf(listKeyPrefixFmt, userID)
}

// ListKey is the snapshot key for one page of a user's feed.
func ListKey(userID string, page, limit int, t domain.NotificationType) string {
	typ := string(t)
	if typ == "" {
		typ = "all"
	}
	return fmt.Sprintf("%spage:%d:limit:%d:type:%s", ListPrefix(userID), page, limit, typ)
}

// Noop is the stub used when no cache backend is configured.
// Every Get misses and every write succeeds without effect.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) (string, error) { return "", ErrMiss }

// Set discards the value.
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }

// Delete is a no-op.
func (Noop) Delete(context.Context, ...string) error { return nil }

// DeleteByPrefix is a no-op.
func (Noop) DeleteByPrefix(context.Context, string) error { return nil }

var _ Cache = Noop{}
