package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidID is returned when a notification id cannot be parsed.
	ErrInvalidID = errors.New("invalid notification id")
	// ErrInvalidInput is returned when a creation request is malformed.
	ErrInvalidInput = errors.New("invalid notification input")
	// ErrUnauthorized is returned when no authenticated actor is present.
	ErrUnauthorized = errors.New("unauthorized")
)

// NotificationType is the closed set of events a user can be notified about.
type NotificationType string

const (
	TypeLike    NotificationType = "LIKE"
	TypeComment NotificationType = "COMMENT"
	TypeReply   NotificationType = "REPLY"
	TypeFollow  NotificationType = "FOLLOW"
	TypeMention NotificationType = "MENTION"
	TypeSystem  NotificationType = "SYSTEM"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeLike, TypeComment, TypeReply, TypeFollow, TypeMention, TypeSystem:
		return true
	}
	return false
}

// ActorSummary is the eager-loaded view of the user who triggered a notification.
type ActorSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// PostSummary is the eager-loaded view of the post a notification refers to.
type PostSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// Notification is the core domain entity.
// IsRead is the only field that changes after creation.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"user_id"`
	ActorID   *string          `json:"actor_id,omitempty"`
	Type      NotificationType `json:"type"`
	Content   *string          `json:"content,omitempty"`
	PostID    *string          `json:"post_id,omitempty"`
	CommentID *string          `json:"comment_id,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`

	Actor *ActorSummary `json:"actor,omitempty"`
	Post  *PostSummary  `json:"post,omitempty"`
}

// NotificationFilter holds query parameters for listing notifications.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Type       NotificationType
	Limit      int
	Offset     int
}

// CreateNotificationInput describes a prospective notification.
type CreateNotificationInput struct {
	UserID    string
	ActorID   *string
	Type      NotificationType
	Content   *string
	PostID    *string
	CommentID *string
	Metadata  map[string]any
}

// Validate checks the fields every creation path requires.
func (in CreateNotificationInput) Validate() error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}
	return nil
}

// SelfTriggered reports whether the recipient caused the event themselves.
func (in CreateNotificationInput) SelfTriggered() bool {
	return in.ActorID != nil && *in.ActorID == in.UserID
}

// DedupKey is the tuple used by the creation engine's time-window check.
// A nil pointer matches only a NULL column.
type DedupKey struct {
	UserID    string
	ActorID   *string
	Type      NotificationType
	PostID    *string
	CommentID *string
}

// Key returns the dedup tuple of the input.
func (in CreateNotificationInput) Key() DedupKey {
	return DedupKey{
		UserID:    in.UserID,
		ActorID:   in.ActorID,
		Type:      in.Type,
		PostID:    in.PostID,
		CommentID: in.CommentID,
	}
}

// Matches reports whether n carries the same dedup tuple.
func (k DedupKey) Matches(n *Notification) bool {
	return n.UserID == k.UserID &&
		n.Type == k.Type &&
		sameRef(n.ActorID, k.ActorID) &&
		sameRef(n.PostID, k.PostID) &&
		sameRef(n.CommentID, k.CommentID)
}

// String renders the tuple by value, distinguishing nil from "".
func (k DedupKey) String() string {
	return strings.Join([]string{k.UserID, refString(k.ActorID), string(k.Type), refString(k.PostID), refString(k.CommentID)}, "\x1f")
}

func refString(s *string) string {
	if s == nil {
		return "\x00"
	}
	return *s
}

// RemovalKey scopes the deletion performed when the cause of a notification
// is undone (unlike, uncomment, unfollow). Nil fields are not filtered on.
type RemovalKey struct {
	UserID    string
	ActorID   string
	Type      NotificationType
	PostID    *string
	CommentID *string
}

// Matches reports whether n is covered by the removal.
func (k RemovalKey) Matches(n *Notification) bool {
	return k.covers(n.UserID, n.ActorID, n.Type, n.PostID, n.CommentID)
}

// MatchesInput reports whether a not yet persisted input is covered by the removal.
func (k RemovalKey) MatchesInput(in CreateNotificationInput) bool {
	return k.covers(in.UserID, in.ActorID, in.Type, in.PostID, in.CommentID)
}

func (k RemovalKey) covers(userID string, actorID *string, t NotificationType, postID, commentID *string) bool {
	if userID != k.UserID || t != k.Type || actorID == nil || *actorID != k.ActorID {
		return false
	}
	if k.PostID != nil && !sameRef(postID, k.PostID) {
		return false
	}
	if k.CommentID != nil && !sameRef(commentID, k.CommentID) {
		return false
	}
	return true
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ref returns a pointer to s, or nil when s is empty.
func Ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
