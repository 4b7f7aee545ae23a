// Package memory is an in-process implementation of the notification store
// and content directory. It backs the "memory" database driver for local
// development and serves as the store in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brainwaves/notification/internal/domain"
)

// Repository implements domain.Repository over a guarded slice.
type Repository struct {
	mu    sync.Mutex
	rows  []*domain.Notification
	now   func() time.Time
	users map[string]domain.ActorSummary
	posts map[string]domain.PostSummary

	calls map[string]int
	err   error
}

// NewRepository creates an empty store using the wall clock.
func NewRepository() *Repository {
	return &Repository{
		now:   time.Now,
		users: make(map[string]domain.ActorSummary),
		posts: make(map[string]domain.PostSummary),
		calls: make(map[string]int),
	}
}

// SetClock replaces the clock used for created_at.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// AddUser registers an actor summary used when listing.
func (r *Repository) AddUser(u domain.ActorSummary) {
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
}

// AddPost registers a post summary used when listing.
func (r *Repository) AddPost(p domain.PostSummary) {
	r.mu.Lock()
	r.posts[p.ID] = p
	r.mu.Unlock()
}

// All returns a copy of every stored row.
func (r *Repository) All() []*domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Notification, len(r.rows))
	for i, n := range r.rows {
		out[i] = clone(n)
	}
	return out
}

// CallCount returns how many times method was invoked.
func (r *Repository) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// Fail makes every subsequent call return err; nil restores normal operation.
func (r *Repository) Fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Repository) enter(method string) error {
	r.calls[method]++
	return r.err
}

func (r *Repository) FindRecent(_ context.Context, key domain.DedupKey, since time.Time) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("FindRecent"); err != nil {
		return nil, err
	}
	var found *domain.Notification
	for _, n := range r.rows {
		if key.Matches(n) && n.CreatedAt.After(since) {
			if found == nil || n.CreatedAt.After(found.CreatedAt) {
				found = n
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	return clone(found), nil
}

func (r *Repository) Create(_ context.Context, in domain.CreateNotificationInput) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Create"); err != nil {
		return nil, err
	}
	n := r.insert(in)
	return clone(n), nil
}

func (r *Repository) BatchCreate(_ context.Context, inputs []domain.CreateNotificationInput, since time.Time) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("BatchCreate"); err != nil {
		return nil, err
	}
	var inserted []*domain.Notification
	for _, in := range inputs {
		if r.existsSince(in.Key(), since) {
			continue
		}
		inserted = append(inserted, clone(r.insert(in)))
	}
	return inserted, nil
}

func (r *Repository) existsSince(key domain.DedupKey, since time.Time) bool {
	for _, n := range r.rows {
		if key.Matches(n) && n.CreatedAt.After(since) {
			return true
		}
	}
	return false
}

func (r *Repository) insert(in domain.CreateNotificationInput) *domain.Notification {
	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    in.UserID,
		ActorID:   in.ActorID,
		Type:      in.Type,
		Content:   in.Content,
		PostID:    in.PostID,
		CommentID: in.CommentID,
		Metadata:  in.Metadata,
		CreatedAt: r.now(),
	}
	r.rows = append(r.rows, n)
	return n
}

func (r *Repository) matching(f domain.NotificationFilter) []*domain.Notification {
	var out []*domain.Notification
	for _, n := range r.rows {
		if n.UserID != f.UserID {
			continue
		}
		if f.UnreadOnly && n.IsRead {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (r *Repository) List(_ context.Context, f domain.NotificationFilter) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("List"); err != nil {
		return nil, err
	}
	all := r.matching(f)
	if f.Offset < 0 || f.Offset >= len(all) {
		return []*domain.Notification{}, nil
	}
	end := len(all)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	out := make([]*domain.Notification, 0, end-f.Offset)
	for _, n := range all[f.Offset:end] {
		c := clone(n)
		if n.ActorID != nil {
			if u, ok := r.users[*n.ActorID]; ok {
				c.Actor = &u
			}
		}
		if n.PostID != nil {
			if p, ok := r.posts[*n.PostID]; ok {
				c.Post = &p
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repository) Count(_ context.Context, f domain.NotificationFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Count"); err != nil {
		return 0, err
	}
	return int64(len(r.matching(f))), nil
}

func (r *Repository) CountUnread(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("CountUnread"); err != nil {
		return 0, err
	}
	return int64(len(r.matching(domain.NotificationFilter{UserID: userID, UnreadOnly: true}))), nil
}

func (r *Repository) MarkRead(_ context.Context, id uuid.UUID, userID string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("MarkRead"); err != nil {
		return nil, err
	}
	for _, n := range r.rows {
		if n.ID == id && n.UserID == userID && !n.IsRead {
			n.IsRead = true
			return clone(n), nil
		}
	}
	return nil, nil
}

func (r *Repository) MarkAllRead(_ context.Context, userID string) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("MarkAllRead"); err != nil {
		return nil, err
	}
	var out []*domain.Notification
	for _, n := range r.rows {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			out = append(out, clone(n))
		}
	}
	return out, nil
}

func (r *Repository) Delete(_ context.Context, id uuid.UUID, userID string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Delete"); err != nil {
		return nil, err
	}
	removed := r.remove(func(n *domain.Notification) bool { return n.ID == id && n.UserID == userID })
	if len(removed) == 0 {
		return nil, nil
	}
	return removed[0], nil
}

func (r *Repository) DeleteAll(_ context.Context, userID string) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteAll"); err != nil {
		return nil, err
	}
	return r.remove(func(n *domain.Notification) bool { return n.UserID == userID }), nil
}

func (r *Repository) DeleteMatching(_ context.Context, key domain.RemovalKey) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteMatching"); err != nil {
		return nil, err
	}
	return r.remove(key.Matches), nil
}

func (r *Repository) PurgeOlderThan(_ context.Context, days int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("PurgeOlderThan"); err != nil {
		return 0, err
	}
	cutoff := r.now().AddDate(0, 0, -days)
	removed := r.remove(func(n *domain.Notification) bool { return n.CreatedAt.Before(cutoff) })
	return int64(len(removed)), nil
}

func (r *Repository) remove(match func(*domain.Notification) bool) []*domain.Notification {
	var removed []*domain.Notification
	kept := r.rows[:0]
	for _, n := range r.rows {
		if match(n) {
			removed = append(removed, clone(n))
			continue
		}
		kept = append(kept, n)
	}
	r.rows = kept
	return removed
}

func clone(n *domain.Notification) *domain.Notification {
	c := *n
	return &c
}

var _ domain.Repository = (*Repository)(nil)
