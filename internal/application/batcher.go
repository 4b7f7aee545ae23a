package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/domain"
	"github.com/brainwaves/notification/internal/pkg/worker"
)

// BatchWriter persists one recipient's coalesced batch. *Service implements it.
type BatchWriter interface {
	CreateMany(ctx context.Context, userID string, inputs []domain.CreateNotificationInput) ([]*domain.Notification, error)
}

// BatchOptions sets the flush thresholds.
type BatchOptions struct {
	// Size flushes a recipient's queue synchronously once it holds this many entries.
	Size int
	// Delay is how long the first queued entry may wait before the timed flush.
	Delay time.Duration
}

// Batcher accumulates high-volume notifications per recipient and writes them
// in bulk. One instance per process; it owns its queues and its flush timer.
type Batcher struct {
	writer BatchWriter
	pool   *worker.Pool
	opts   BatchOptions

	mu       sync.Mutex
	queues   map[string][]domain.CreateNotificationInput
	writing  map[string]int // recipient -> batches taken from the queue but not yet written
	written  *sync.Cond     // on mu, broadcast whenever a batch write returns
	timer    *time.Timer
	closed   bool
	inflight sync.WaitGroup
}

// NewBatcher creates a Batcher. Timed flushes fan out over pool.
func NewBatcher(writer BatchWriter, pool *worker.Pool, opts BatchOptions) *Batcher {
	if opts.Size <= 0 {
		opts.Size = 50
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	b := &Batcher{
		writer:  writer,
		pool:    pool,
		opts:    opts,
		queues:  make(map[string][]domain.CreateNotificationInput),
		writing: make(map[string]int),
	}
	b.written = sync.NewCond(&b.mu)
	return b
}

// Queue adds in to its recipient's queue. When the queue reaches the size
// threshold it is flushed on the calling goroutine and any store error is
// returned; otherwise the shared timer is armed if it is idle.
// Self-triggered inputs are dropped.
func (b *Batcher) Queue(ctx context.Context, in domain.CreateNotificationInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if in.SelfTriggered() {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.writing[in.UserID]++
		b.mu.Unlock()
		return b.write(ctx, in.UserID, []domain.CreateNotificationInput{in})
	}
	q := append(b.queues[in.UserID], in)
	if len(q) >= b.opts.Size {
		delete(b.queues, in.UserID)
		b.writing[in.UserID]++
		b.mu.Unlock()
		return b.write(ctx, in.UserID, q)
	}
	b.queues[in.UserID] = q
	if b.timer == nil {
		b.timer = time.AfterFunc(b.opts.Delay, b.onTimer)
	}
	b.mu.Unlock()
	return nil
}

// Flush writes userID's pending queue now.
func (b *Batcher) Flush(ctx context.Context, userID string) error {
	b.mu.Lock()
	q := b.queues[userID]
	delete(b.queues, userID)
	b.writing[userID]++
	b.mu.Unlock()
	return b.write(ctx, userID, q)
}

// Discard drops pending entries covered by key, so an action undone before
// the flush never reaches the store. If a batch for the recipient is being
// written, Discard returns only after that write has landed, so a store
// removal issued next sees its rows. Returns the number dropped.
func (b *Batcher) Discard(key domain.RemovalKey) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.writing[key.UserID] > 0 {
		b.written.Wait()
	}

	q, ok := b.queues[key.UserID]
	if !ok {
		return 0
	}
	kept := q[:0]
	for _, in := range q {
		if !key.MatchesInput(in) {
			kept = append(kept, in)
		}
	}
	dropped := len(q) - len(kept)
	if len(kept) == 0 {
		delete(b.queues, key.UserID)
	} else {
		b.queues[key.UserID] = kept
	}
	return dropped
}

// Pending returns the number of queued entries across all recipients.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queues {
		n += len(q)
	}
	return n
}

// Close stops the timer, flushes every queue and waits for in-flight timed
// flushes. Entries queued afterwards are written immediately.
func (b *Batcher) Close(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	pending := b.take()
	b.mu.Unlock()

	b.flushAll(ctx, pending)
	b.inflight.Wait()
}

// onTimer releases the timer handle before flushing, so entries queued while
// the flush runs arm a new timer.
func (b *Batcher) onTimer() {
	b.mu.Lock()
	b.timer = nil
	if len(b.queues) == 0 {
		b.mu.Unlock()
		return
	}
	pending := b.take()
	b.inflight.Add(1)
	b.mu.Unlock()

	defer b.inflight.Done()
	b.flushAll(context.Background(), pending)
}

// take swaps out every queue and marks each recipient as being written.
// Callers hold b.mu.
func (b *Batcher) take() map[string][]domain.CreateNotificationInput {
	pending := b.queues
	b.queues = make(map[string][]domain.CreateNotificationInput)
	for userID := range pending {
		b.writing[userID]++
	}
	return pending
}

type recipientBatch struct {
	userID string
	inputs []domain.CreateNotificationInput
}

func (b *Batcher) flushAll(ctx context.Context, pending map[string][]domain.CreateNotificationInput) {
	if len(pending) == 0 {
		return
	}
	batches := make([]recipientBatch, 0, len(pending))
	for userID, q := range pending {
		batches = append(batches, recipientBatch{userID: userID, inputs: q})
	}
	worker.Each(ctx, b.pool, batches, func(ctx context.Context, rb recipientBatch) {
		if err := b.write(ctx, rb.userID, rb.inputs); err != nil {
			log.Error().Err(err).Str("user", rb.userID).Int("count", len(rb.inputs)).Msg("timed batch flush failed")
		}
	})
}

// write persists q and releases the recipient's in-flight mark taken by the
// caller under b.mu.
func (b *Batcher) write(ctx context.Context, userID string, q []domain.CreateNotificationInput) error {
	defer b.done(userID)
	if len(q) == 0 {
		return nil
	}
	_, err := b.writer.CreateMany(ctx, userID, Coalesce(q))
	return err
}

func (b *Batcher) done(userID string) {
	b.mu.Lock()
	if b.writing[userID]--; b.writing[userID] <= 0 {
		delete(b.writing, userID)
	}
	b.mu.Unlock()
	b.written.Broadcast()
}

// Coalesce keeps the first input for each (user, type, post, actor) key,
// preserving first-seen order.
func Coalesce(q []domain.CreateNotificationInput) []domain.CreateNotificationInput {
	seen := make(map[string]struct{}, len(q))
	out := make([]domain.CreateNotificationInput, 0, len(q))
	for _, in := range q {
		k := batchKey(in)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, in)
	}
	return out
}

func batchKey(in domain.CreateNotificationInput) string {
	return strings.Join([]string{
		in.UserID,
		string(in.Type),
		domain.Deref(in.PostID),
		domain.Deref(in.ActorID),
	}, "\x1f")
}
