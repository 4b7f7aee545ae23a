package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainwaves/notification/internal/application"
	"github.com/brainwaves/notification/internal/cache"
	"github.com/brainwaves/notification/internal/domain"
	"github.com/brainwaves/notification/internal/infrastructure/memory"
	transport "github.com/brainwaves/notification/internal/transport/http"
)

const secret = "feed-secret"

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestClient_StreamKeepsViewCurrent(t *testing.T) {
	repo := memory.NewRepository()
	hub := transport.NewHub()
	svc := application.NewService(repo, cache.NewMemory(), hub, application.DefaultOptions())
	srv := httptest.NewServer(transport.NewRouter(transport.NewHandler(svc, hub), transport.AuthConfig{JWTSecret: secret}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seed := func(actor string) *domain.Notification {
		n, err := svc.Create(ctx, domain.CreateNotificationInput{
			UserID: "u1", ActorID: domain.Ref(actor), Type: domain.TypeFollow,
		})
		require.NoError(t, err)
		return n
	}
	first := seed("a1")

	c := NewClient(srv.URL, token(t, "u1"), nil, 3, 10*time.Millisecond)
	f, err := Load(ctx, c, 20)
	require.NoError(t, err)
	require.Len(t, f.View.Items(), 1)
	assert.Equal(t, int64(1), f.View.Unread())

	streamCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Stream(streamCtx, f.View) }()
	require.Eventually(t, func() bool { return hub.ConnectedCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := seed("a2")
	require.Eventually(t, func() bool { return len(f.View.Items()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, second.ID, f.View.Items()[0].ID)
	assert.Equal(t, int64(2), f.View.Unread())

	require.NoError(t, f.MarkRead(ctx, first.ID))
	assert.Equal(t, int64(1), f.View.Unread())
	n, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, f.Delete(ctx, second.ID))
	require.Eventually(t, func() bool { return len(f.View.Items()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), f.View.Unread())

	f.View.SetUnread(9)
	require.NoError(t, f.Resync(ctx))
	assert.Equal(t, int64(0), f.View.Unread())

	stop()
	assert.NoError(t, <-done)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", nil, 3, time.Millisecond)
	require.NoError(t, c.MarkRead(context.Background(), uuid.New()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", nil, 3, time.Millisecond)
	err := c.MarkAllRead(context.Background())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFeed_FailedMutationRollsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := note(false)
	f := &Feed{
		View:   NewView([]*domain.Notification{n}, 1),
		Client: NewClient(srv.URL, "t", nil, 2, time.Millisecond),
	}

	require.Error(t, f.MarkRead(context.Background(), n.ID))
	assert.False(t, f.View.Items()[0].IsRead)
	assert.Equal(t, int64(1), f.View.Unread())

	require.Error(t, f.Delete(context.Background(), n.ID))
	assert.Len(t, f.View.Items(), 1)

	require.Error(t, f.MarkAllRead(context.Background()))
	assert.Equal(t, int64(1), f.View.Unread())
}
