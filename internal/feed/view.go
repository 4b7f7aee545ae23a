// Package feed is the client side of the realtime contract: a locally cached
// notification list kept current by applying pushed events, optimistic
// mutations with rollback, and an HTTP/SSE client for the service.
package feed

import (
	"sync"

	"github.com/google/uuid"

	"github.com/brainwaves/notification/internal/domain"
)

// View is a client's local copy of its notification list and unread badge.
// It is safe for concurrent use.
type View struct {
	mu     sync.RWMutex
	items  []*domain.Notification // newest first
	unread int64
}

// Snapshot is a point-in-time copy of a View.
type Snapshot struct {
	items  []*domain.Notification
	unread int64
}

// NewView seeds a View from a fetched page and the server's unread count.
func NewView(items []*domain.Notification, unread int64) *View {
	v := &View{unread: unread}
	for _, n := range items {
		v.items = append(v.items, clone(n))
	}
	return v
}

// Apply patches the view with a pushed event:
//   - insert adds the entry at the top and increments the unread count;
//     an insert for an id already present is applied as an update.
//   - update replaces the entry by id and leaves the count alone.
//   - delete removes the entry and decrements the count if it was unread.
//
// Events for ids not in the view are ignored.
func (v *View) Apply(ev domain.Event) {
	if ev.Notification == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	n := ev.Notification
	i := v.indexOf(n.ID)
	switch ev.Kind {
	case domain.EventInsert:
		if i >= 0 {
			v.items[i] = clone(n)
			return
		}
		v.items = append([]*domain.Notification{clone(n)}, v.items...)
		v.unread++
	case domain.EventUpdate:
		if i >= 0 {
			v.items[i] = clone(n)
		}
	case domain.EventDelete:
		if i >= 0 {
			v.removeAt(i)
		}
	}
}

// MarkReadLocal marks one entry read ahead of the server's confirmation.
func (v *View) MarkReadLocal(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexOf(id); i >= 0 && !v.items[i].IsRead {
		c := clone(v.items[i])
		c.IsRead = true
		v.items[i] = c
		v.decUnread()
	}
}

// MarkAllReadLocal marks every entry read and zeroes the badge.
func (v *View) MarkAllReadLocal() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, n := range v.items {
		if !n.IsRead {
			c := clone(n)
			c.IsRead = true
			v.items[i] = c
		}
	}
	v.unread = 0
}

// RemoveLocal drops one entry ahead of the server's confirmation.
func (v *View) RemoveLocal(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexOf(id); i >= 0 {
		v.removeAt(i)
	}
}

// SetUnread replaces the badge with a count fetched from the server.
func (v *View) SetUnread(n int64) {
	v.mu.Lock()
	v.unread = n
	v.mu.Unlock()
}

// Items returns a copy of the entries, newest first.
func (v *View) Items() []*domain.Notification {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*domain.Notification, len(v.items))
	for i, n := range v.items {
		out[i] = clone(n)
	}
	return out
}

// Unread returns the local unread badge.
func (v *View) Unread() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unread
}

// Snapshot captures the current state for a later Restore.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Snapshot{items: append([]*domain.Notification(nil), v.items...), unread: v.unread}
}

// Restore rolls the view back to s.
func (v *View) Restore(s Snapshot) {
	v.mu.Lock()
	v.items = append([]*domain.Notification(nil), s.items...)
	v.unread = s.unread
	v.mu.Unlock()
}

func (v *View) indexOf(id uuid.UUID) int {
	for i, n := range v.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (v *View) removeAt(i int) {
	if !v.items[i].IsRead {
		v.decUnread()
	}
	v.items = append(v.items[:i], v.items[i+1:]...)
}

func (v *View) decUnread() {
	if v.unread > 0 {
		v.unread--
	}
}

// clone copies n so callers never share entries with the view; entries are
// replaced, never mutated in place, which keeps snapshots valid.
func clone(n *domain.Notification) *domain.Notification {
	c := *n
	return &c
}
