package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainwaves/notification/internal/domain"
	"github.com/brainwaves/notification/internal/infrastructure/memory"
	"github.com/brainwaves/notification/internal/pkg/worker"
)

func newTriggers(t *testing.T, f *fixture, batch *Batcher) (*Triggers, *memory.Directory) {
	t.Helper()
	dir := memory.NewDirectory()
	dir.AddUser("u1", "alice")
	dir.AddUser("u2", "bob")
	dir.AddUser("u3", "carol")
	dir.AddPost("p1", "u2")
	dir.AddComment("c1", "u3", "p1")
	return NewTriggers(f.svc, batch, dir, 100), dir
}

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Hello @alice and @bob, great post!", []string{"alice", "bob"}},
		{"@alice first, @alice again", []string{"alice"}},
		{"mail me at bob@example.com", nil},
		{"no mentions here", nil},
		{"@snake_case_name!", []string{"snake_case_name"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMentions(tt.text))
		})
	}
}

func TestNotifyMentions_ResolvedUsersOnly(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	n, err := tr.NotifyMentions(context.Background(), "Hello @alice and @carol, great post! @nonexistent", "u2", "p1", "c9")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := f.repo.All()
	require.Len(t, rows, 2)
	recipients := []string{rows[0].UserID, rows[1].UserID}
	assert.ElementsMatch(t, []string{"u1", "u3"}, recipients)
	for _, r := range rows {
		assert.Equal(t, domain.TypeMention, r.Type)
		assert.Equal(t, "c9", domain.Deref(r.CommentID))
	}
}

func TestNotifyMentions_SharedNameNotifiesEveryMatch(t *testing.T) {
	f := newFixture(t)
	tr, dir := newTriggers(t, f, nil)
	dir.AddUser("u9", "alice")

	n, err := tr.NotifyMentions(context.Background(), "cc @alice", "u2", "p1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCommentEndToEnd(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)
	ctx := context.Background()

	before, err := f.svc.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	require.Zero(t, before)

	require.NoError(t, tr.Dispatch(ctx, domain.Action{
		Kind: domain.ActionComment, ActorID: "u1", PostID: "p1", CommentID: "c2", Content: "nice post",
	}))

	rows := f.repo.All()
	require.Len(t, rows, 1)
	n := rows[0]
	assert.Equal(t, domain.TypeComment, n.Type)
	assert.Equal(t, "u2", n.UserID)
	assert.Equal(t, "u1", domain.Deref(n.ActorID))
	assert.Equal(t, "p1", domain.Deref(n.PostID))
	assert.False(t, n.IsRead)

	after, err := f.svc.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), after)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, "u2", ev.userID)
	assert.Equal(t, domain.EventInsert, ev.ev.Kind)
	assert.Equal(t, n.ID, ev.ev.Notification.ID)
}

func TestCommentContentIsTruncated(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	long := strings.Repeat("é", 150)
	n, err := tr.NotifyOnComment(context.Background(), "p1", "u1", long, "c2")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 100), domain.Deref(n.Content))
}

func TestCommentMentionsAreDispatched(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	require.NoError(t, tr.Dispatch(context.Background(), domain.Action{
		Kind: domain.ActionComment, ActorID: "u1", PostID: "p1", CommentID: "c2", Content: "thanks @carol",
	}))

	var types []domain.NotificationType
	for _, r := range f.repo.All() {
		types = append(types, r.Type)
	}
	assert.ElementsMatch(t, []domain.NotificationType{domain.TypeComment, domain.TypeMention}, types)
}

func TestReplyCarriesParentPost(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	n, err := tr.NotifyOnReply(context.Background(), "c1", "u1", "agreed", "c5")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "u3", n.UserID)
	assert.Equal(t, domain.TypeReply, n.Type)
	assert.Equal(t, "p1", domain.Deref(n.PostID))
	assert.Equal(t, "c5", domain.Deref(n.CommentID))
}

func TestUnknownPostIsIgnored(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	require.NoError(t, tr.NotifyOnLike(context.Background(), "missing", "u1"))
	n, err := tr.NotifyOnComment(context.Background(), "missing", "u1", "hi", "c2")
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Empty(t, f.repo.All())
}

func TestOwnLikeIsNotNotified(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	require.NoError(t, tr.NotifyOnLike(context.Background(), "p1", "u2"))
	assert.Empty(t, f.repo.All())
}

func TestLikeThenUnlike_Flushed(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)
	ctx := context.Background()

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionLike, ActorID: "u1", PostID: "p1"}))
	require.Len(t, f.repo.All(), 1)

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionUnlike, ActorID: "u1", PostID: "p1"}))
	assert.Empty(t, f.repo.All())

	count, err := f.svc.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, []domain.EventKind{domain.EventInsert, domain.EventDelete}, f.pub.kinds())
}

func TestLikeThenUnlike_BeforeBatchFlush(t *testing.T) {
	f := newFixture(t)
	b := newBatcher(t, f, BatchOptions{Size: 50, Delay: 30 * time.Millisecond})
	tr, _ := newTriggers(t, f, b)
	ctx := context.Background()

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionLike, ActorID: "u1", PostID: "p1"}))
	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionUnlike, ActorID: "u1", PostID: "p1"}))
	assert.Zero(t, b.Pending())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, f.repo.All())
	count, err := f.svc.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, count)
}

// gatedWriter holds every batch write until release is closed.
type gatedWriter struct {
	next    BatchWriter
	entered chan struct{}
	release chan struct{}
}

func (g *gatedWriter) CreateMany(ctx context.Context, userID string, inputs []domain.CreateNotificationInput) ([]*domain.Notification, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.next.CreateMany(ctx, userID, inputs)
}

func TestUnlikeDuringTimedFlush(t *testing.T) {
	f := newFixture(t)
	w := &gatedWriter{next: f.svc, entered: make(chan struct{}, 1), release: make(chan struct{})}
	pool, err := worker.New(context.Background(), "batch-test", 4)
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)
	b := NewBatcher(w, pool, BatchOptions{Size: 50, Delay: 10 * time.Millisecond})
	tr, _ := newTriggers(t, f, b)
	ctx := context.Background()

	require.NoError(t, tr.NotifyOnLike(ctx, "p1", "u1"))
	select {
	case <-w.entered:
	case <-time.After(time.Second):
		t.Fatal("timed flush did not start")
	}

	done := make(chan error, 1)
	go func() { done <- tr.RemoveLike(ctx, "p1", "u1") }()
	select {
	case <-done:
		t.Fatal("unlike returned before the running flush landed")
	case <-time.After(30 * time.Millisecond):
	}

	close(w.release)
	require.NoError(t, <-done)
	b.Close(ctx)

	assert.Empty(t, f.repo.All())
	assert.Equal(t, []domain.EventKind{domain.EventInsert, domain.EventDelete}, f.pub.kinds())
}

func TestUncommentRemovesCommentAndReply(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)
	ctx := context.Background()

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionComment, ActorID: "u1", PostID: "p1", CommentID: "c2", Content: "hi"}))
	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionReply, ActorID: "u1", ParentCommentID: "c1", CommentID: "c3", Content: "yo"}))
	require.Len(t, f.repo.All(), 2)

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionUncomment, ActorID: "u1", PostID: "p1", CommentID: "c2"}))
	rows := f.repo.All()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TypeReply, rows[0].Type)

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionUncomment, ActorID: "u1", PostID: "p1", CommentID: "c3", ParentCommentID: "c1"}))
	assert.Empty(t, f.repo.All())
}

func TestFollowThenUnfollow(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)
	ctx := context.Background()

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionFollow, ActorID: "u1", TargetUserID: "u3"}))
	rows := f.repo.All()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TypeFollow, rows[0].Type)
	assert.Nil(t, rows[0].PostID)

	require.NoError(t, tr.Dispatch(ctx, domain.Action{Kind: domain.ActionUnfollow, ActorID: "u1", TargetUserID: "u3"}))
	assert.Empty(t, f.repo.All())
}

func TestDispatchSystem(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	require.NoError(t, tr.Dispatch(context.Background(), domain.Action{
		Kind: domain.ActionSystem, TargetUserID: "u3", Content: "maintenance tonight",
		Metadata: map[string]any{"severity": "info"},
	}))
	rows := f.repo.All()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TypeSystem, rows[0].Type)
	assert.Nil(t, rows[0].ActorID)
	assert.Equal(t, "info", rows[0].Metadata["severity"])
}

func TestDispatchUnknownAction(t *testing.T) {
	f := newFixture(t)
	tr, _ := newTriggers(t, f, nil)

	err := tr.Dispatch(context.Background(), domain.Action{Kind: "POKE"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
