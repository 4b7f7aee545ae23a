package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the port for notification persistence.
// Implementations live in infrastructure/postgres and infrastructure/memory.
//
// Scoped mutations (by id and user) that match nothing are not errors:
// they return nil / zero so callers can treat them as idempotent no-ops.
type Repository interface {
	// FindRecent returns the newest notification matching key created after since,
	// or nil when there is none.
	FindRecent(ctx context.Context, key DedupKey, since time.Time) (*Notification, error)

	// Create stores a new unread notification and returns the saved entity.
	Create(ctx context.Context, input CreateNotificationInput) (*Notification, error)

	// BatchCreate inserts many notifications in one round trip, skipping any
	// input whose dedup tuple already exists after since. Returns the inserted rows.
	BatchCreate(ctx context.Context, inputs []CreateNotificationInput, since time.Time) ([]*Notification, error)

	// List fetches a page of notifications, newest first, with actor and post summaries.
	List(ctx context.Context, filter NotificationFilter) ([]*Notification, error)

	// Count returns the number of notifications matching filter (limit/offset ignored).
	Count(ctx context.Context, filter NotificationFilter) (int64, error)

	// CountUnread returns the number of unread notifications for a user.
	CountUnread(ctx context.Context, userID string) (int64, error)

	// MarkRead marks a single unread notification as read and returns it.
	MarkRead(ctx context.Context, id uuid.UUID, userID string) (*Notification, error)

	// MarkAllRead marks every unread notification of a user as read and returns them.
	MarkAllRead(ctx context.Context, userID string) ([]*Notification, error)

	// Delete removes one notification of a user and returns it.
	Delete(ctx context.Context, id uuid.UUID, userID string) (*Notification, error)

	// DeleteAll removes every notification of a user and returns them.
	DeleteAll(ctx context.Context, userID string) ([]*Notification, error)

	// DeleteMatching removes the notifications covered by key and returns them.
	DeleteMatching(ctx context.Context, key RemovalKey) ([]*Notification, error)

	// PurgeOlderThan deletes notifications older than the given number of days.
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// Directory resolves blog content to the users a notification is addressed to.
type Directory interface {
	// PostAuthor returns the author of a post, or "" when the post does not exist.
	PostAuthor(ctx context.Context, postID string) (string, error)

	// CommentAuthor returns the author and post of a comment.
	// An unknown comment yields empty strings.
	CommentAuthor(ctx context.Context, commentID string) (authorID, postID string, err error)

	// UsersByName returns the ids of every user whose display name equals name.
	UsersByName(ctx context.Context, name string) ([]string, error)
}
