package application

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/brainwaves/notification/internal/cache"
	"github.com/brainwaves/notification/internal/domain"
)

// Publisher pushes realtime events to a recipient's connected clients.
// Implementations: transport/http.Hub (in-process) and redisbus.Bus (cross-process).
type Publisher interface {
	Publish(ctx context.Context, userID string, ev domain.Event)
}

// Options tunes the creation and read paths.
type Options struct {
	DedupWindow  time.Duration
	UnreadTTL    time.Duration
	ListTTL      time.Duration
	DefaultLimit int
	MaxLimit     int
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		DedupWindow:  24 * time.Hour,
		UnreadTTL:    60 * time.Second,
		ListTTL:      60 * time.Second,
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// Service holds all notification use-cases.
type Service struct {
	repo  domain.Repository
	cache cache.Cache
	pub   Publisher
	opts  Options
	now   func() time.Time
	locks keyedMutex
}

// NewService creates a new application Service. A nil cache disables caching.
func NewService(repo domain.Repository, c cache.Cache, pub Publisher, opts Options) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{
		repo:  repo,
		cache: c,
		pub:   pub,
		opts:  opts,
		now:   time.Now,
		locks: keyedMutex{locks: make(map[string]*keyedLock)},
	}
}

// SetClock replaces the clock used for the dedup window.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create persists a notification unless it is self-triggered (returns nil)
// or a matching one exists inside the dedup window (returns the existing one).
// A new row is written, then the recipient's cache is invalidated, then the
// insert is published, so a client refetching on the push sees fresh data.
func (s *Service) Create(ctx context.Context, in domain.CreateNotificationInput) (*domain.Notification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.SelfTriggered() {
		return nil, nil
	}

	key := in.Key()
	unlock := s.locks.lock(key.String())
	defer unlock()

	existing, err := s.repo.FindRecent(ctx, key, s.now().Add(-s.opts.DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		log.Debug().
			Str("id", existing.ID.String()).
			Str("user", in.UserID).
			Str("type", string(in.Type)).
			Msg("duplicate notification suppressed")
		return existing, nil
	}

	n, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	cache.InvalidateUser(ctx, s.cache, n.UserID)
	s.publish(ctx, n.UserID, domain.EventInsert, n)

	log.Info().
		Str("id", n.ID.String()).
		Str("user", n.UserID).
		Str("actor", domain.Deref(n.ActorID)).
		Str("type", string(n.Type)).
		Msg("notification created and broadcast")

	return n, nil
}

// CreateMany writes a coalesced batch for one recipient in a single store
// round trip. Used by the Batcher's flush.
func (s *Service) CreateMany(ctx context.Context, userID string, inputs []domain.CreateNotificationInput) ([]*domain.Notification, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	inserted, err := s.repo.BatchCreate(ctx, inputs, s.now().Add(-s.opts.DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("batch create notifications: %w", err)
	}
	if len(inserted) == 0 {
		return nil, nil
	}

	cache.InvalidateUser(ctx, s.cache, userID)
	for _, n := range inserted {
		s.publish(ctx, n.UserID, domain.EventInsert, n)
	}

	log.Info().
		Str("user", userID).
		Int("batch_size", len(inputs)).
		Int("inserted", len(inserted)).
		Msg("notification batch flushed")
	return inserted, nil
}

// RemoveMatching deletes the notifications whose cause was undone.
func (s *Service) RemoveMatching(ctx context.Context, key domain.RemovalKey) (int, error) {
	removed, err := s.repo.DeleteMatching(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("remove notifications: %w", err)
	}
	cache.InvalidateUser(ctx, s.cache, key.UserID)
	for _, n := range removed {
		s.publish(ctx, n.UserID, domain.EventDelete, n)
	}
	return len(removed), nil
}

// --- Read Service ---

// ListQuery selects one page of a user's feed.
type ListQuery struct {
	UserID     string
	Page       int
	Limit      int
	UnreadOnly bool
	Type       domain.NotificationType
}

// Pagination describes the page returned by GetUserNotifications.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// ListResult is the feed page plus the user's overall unread count.
type ListResult struct {
	Notifications []*domain.Notification `json:"notifications"`
	Pagination    Pagination             `json:"pagination"`
	UnreadCount   int64                  `json:"unreadCount"`
}

// GetUnreadCount returns the unread badge count, served from cache when warm.
func (s *Service) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	return cache.Cached(ctx, s.cache, cache.UnreadKey(userID), s.opts.UnreadTTL,
		func(ctx context.Context) (int64, error) {
			return s.repo.CountUnread(ctx, userID)
		})
}

// GetUserNotifications returns a page of the feed. Full feeds are cached per
// page; unread-only views always go to the store.
func (s *Service) GetUserNotifications(ctx context.Context, q ListQuery) (*ListResult, error) {
	q, err := s.normalize(q)
	if err != nil {
		return nil, err
	}
	if q.UnreadOnly {
		return s.loadPage(ctx, q)
	}
	return cache.Cached(ctx, s.cache, cache.ListKey(q.UserID, q.Page, q.Limit, q.Type), s.opts.ListTTL,
		func(ctx context.Context) (*ListResult, error) {
			return s.loadPage(ctx, q)
		})
}

// normalize applies the default and maximum limit and rejects a page whose
// offset does not fit in an int.
func (s *Service) normalize(q ListQuery) (ListQuery, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.DefaultLimit
	}
	if q.Limit <= 0 {
		q.Limit = DefaultOptions().DefaultLimit
	}
	if s.opts.MaxLimit > 0 && q.Limit > s.opts.MaxLimit {
		q.Limit = s.opts.MaxLimit
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return q, fmt.Errorf("%w: page %d out of range", domain.ErrInvalidInput, q.Page)
	}
	return q, nil
}

// loadPage runs the page, total and unread queries in parallel.
func (s *Service) loadPage(ctx context.Context, q ListQuery) (*ListResult, error) {
	filter := domain.NotificationFilter{
		UserID:     q.UserID,
		UnreadOnly: q.UnreadOnly,
		Type:       q.Type,
		Limit:      q.Limit,
		Offset:     (q.Page - 1) * q.Limit,
	}

	var (
		items  []*domain.Notification
		total  int64
		unread int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.repo.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		unread, err = s.repo.CountUnread(gctx, q.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load notifications page: %w", err)
	}
	if items == nil {
		items = []*domain.Notification{}
	}

	totalPages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return &ListResult{
		Notifications: items,
		Pagination: Pagination{
			Total:      total,
			Page:       q.Page,
			Limit:      q.Limit,
			TotalPages: totalPages,
		},
		UnreadCount: unread,
	}, nil
}

// --- Mutation Service ---
//
// Every mutation invalidates the unread counter and all list pages of the
// user, whether or not a row changed: a stale cached value must not outlive
// a mutation call. Zero matched rows is a successful no-op.

// MarkAsRead marks a single notification as read.
func (s *Service) MarkAsRead(ctx context.Context, idStr, userID string) error {
	id, err := parseID(idStr)
	if err != nil {
		return err
	}
	n, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	cache.InvalidateUser(ctx, s.cache, userID)
	if n != nil {
		s.publish(ctx, userID, domain.EventUpdate, n)
	}
	return nil
}

// MarkAllAsRead marks all notifications for a user as read.
func (s *Service) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	cache.InvalidateUser(ctx, s.cache, userID)
	for _, n := range updated {
		s.publish(ctx, userID, domain.EventUpdate, n)
	}
	return int64(len(updated)), nil
}

// Delete removes a notification (must belong to the requesting user).
func (s *Service) Delete(ctx context.Context, idStr, userID string) error {
	id, err := parseID(idStr)
	if err != nil {
		return err
	}
	n, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	cache.InvalidateUser(ctx, s.cache, userID)
	if n != nil {
		s.publish(ctx, userID, domain.EventDelete, n)
	}
	return nil
}

// DeleteAll removes every notification of a user.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int64, error) {
	removed, err := s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all notifications: %w", err)
	}
	cache.InvalidateUser(ctx, s.cache, userID)
	for _, n := range removed {
		s.publish(ctx, userID, domain.EventDelete, n)
	}
	return int64(len(removed)), nil
}

// PurgeTTL deletes old notifications. Called by a background scheduler.
func (s *Service) PurgeTTL(ctx context.Context, days int) {
	count, err := s.repo.PurgeOlderThan(ctx, days)
	if err != nil {
		log.Error().Err(err).Msg("notification TTL purge failed")
		return
	}
	log.Info().Int64("deleted", count).Int("older_than_days", days).Msg("notification TTL purge completed")
}

func (s *Service) publish(ctx context.Context, userID string, kind domain.EventKind, n *domain.Notification) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ctx, userID, domain.Event{Kind: kind, Notification: n})
}

func parseID(idStr string) (uuid.UUID, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrInvalidID, err)
	}
	return id, nil
}

// keyedMutex serialises creation per dedup tuple so concurrent identical
// events inside one process cannot both pass the existence check.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
