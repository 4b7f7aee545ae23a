package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainwaves/notification/internal/application"
	"github.com/brainwaves/notification/internal/cache"
	"github.com/brainwaves/notification/internal/domain"
	"github.com/brainwaves/notification/internal/infrastructure/memory"
	"github.com/brainwaves/notification/internal/transport/mw"
)

const (
	jwtSecret     = "jwt-secret"
	webhookSecret = "hook-secret"
)

type env struct {
	e    *echo.Echo
	repo *memory.Repository
	svc  *application.Service
	hub  *Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo := memory.NewRepository()
	hub := NewHub()
	svc := application.NewService(repo, cache.NewMemory(), hub, application.DefaultOptions())
	h := NewHandler(svc, hub)
	h.AddHealthCheck("store", func() any { return "memory" })
	e := NewRouter(h, AuthConfig{JWTSecret: jwtSecret, WebhookSecret: webhookSecret})
	return &env{e: e, repo: repo, svc: svc, hub: hub}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func (v *env) do(t *testing.T, method, target, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if userID != "" {
		req.Header.Set("Authorization", bearer(t, userID))
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func (v *env) seed(t *testing.T, userID, actorID string, typ domain.NotificationType) *domain.Notification {
	t.Helper()
	n, err := v.svc.Create(context.Background(), domain.CreateNotificationInput{
		UserID:  userID,
		ActorID: domain.Ref(actorID),
		Type:    typ,
		PostID:  domain.Ref("p1"),
	})
	require.NoError(t, err)
	return n
}

func TestRoutes_RequireAuth(t *testing.T) {
	v := newEnv(t)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/notifications"},
		{http.MethodGet, "/notifications/unread-count"},
		{http.MethodPatch, "/notifications/x"},
		{http.MethodDelete, "/notifications/x"},
		{http.MethodDelete, "/notifications"},
		{http.MethodPost, "/notifications/mark-all-read"},
		{http.MethodGet, "/notifications/stream"},
	} {
		rec := v.do(t, r.method, r.path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
	}
}

func TestHealth(t *testing.T) {
	v := newEnv(t)
	rec := v.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "memory", body["store"])
}

func TestListNotifications(t *testing.T) {
	v := newEnv(t)
	v.seed(t, "u2", "a1", domain.TypeLike)
	v.seed(t, "u2", "a2", domain.TypeFollow)
	v.seed(t, "u3", "a1", domain.TypeLike)

	rec := v.do(t, http.MethodGet, "/notifications?page=1&limit=1", "u2")
	require.Equal(t, http.StatusOK, rec.Code)

	var res application.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Notifications, 1)
	assert.Equal(t, application.Pagination{Total: 2, Page: 1, Limit: 1, TotalPages: 2}, res.Pagination)
	assert.Equal(t, int64(2), res.UnreadCount)

	rec = v.do(t, http.MethodGet, "/notifications?type=FOLLOW", "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, domain.TypeFollow, res.Notifications[0].Type)

	rec = v.do(t, http.MethodGet, "/notifications?type=POKE", "u2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.do(t, http.MethodGet, "/notifications?page=9223372036854775807", "u2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "out of range")
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	v := newEnv(t)
	n := v.seed(t, "u2", "a1", domain.TypeLike)
	v.seed(t, "u2", "a2", domain.TypeLike)

	rec := v.do(t, http.MethodGet, "/notifications/unread-count", "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = v.do(t, http.MethodPatch, "/notifications/"+n.ID.String(), "intruder")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = v.do(t, http.MethodPatch, "/notifications/"+n.ID.String(), "u2")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = v.do(t, http.MethodGet, "/notifications/unread-count", "u2")
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = v.do(t, http.MethodPatch, "/notifications/not-a-uuid", "u2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.do(t, http.MethodPost, "/notifications/mark-all-read", "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":1}`, rec.Body.String())

	rec = v.do(t, http.MethodGet, "/notifications/unread-count", "u2")
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestDeleteEndpoints(t *testing.T) {
	v := newEnv(t)
	n := v.seed(t, "u2", "a1", domain.TypeLike)
	v.seed(t, "u2", "a2", domain.TypeLike)

	rec := v.do(t, http.MethodDelete, "/notifications/"+n.ID.String(), "u2")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, v.repo.All(), 1)

	rec = v.do(t, http.MethodDelete, "/notifications", "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())
	assert.Empty(t, v.repo.All())
}

func TestStoreFailureIs500(t *testing.T) {
	v := newEnv(t)
	v.repo.Fail(assert.AnError)

	rec := v.do(t, http.MethodPost, "/notifications/mark-all-read", "u2")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook(t *testing.T) {
	v := newEnv(t)
	post := func(body, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if sig != "" {
			req.Header.Set(mw.SignatureHeader, sig)
		}
		rec := httptest.NewRecorder()
		v.e.ServeHTTP(rec, req)
		return rec
	}
	sign := func(body string) string { return mw.Sign([]byte(webhookSecret), []byte(body)) }

	body := `{"userId":"u2","type":"SYSTEM","content":"welcome"}`
	rec := post(body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, v.repo.All())

	rec = post(body, sign(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	rows := v.repo.All()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TypeSystem, rows[0].Type)

	self := `{"userId":"u2","actorId":"u2","type":"LIKE","postId":"p1"}`
	rec = post(self, sign(self))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"created":false}`, rec.Body.String())

	bad := `{"userId":"u2","type":"POKE"}`
	rec = post(bad, sign(bad))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "type must be one of")

	missing := `{"type":"SYSTEM","content":"hi"}`
	rec = post(missing, sign(missing))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "userId is required")

	long := `{"userId":"u2","type":"SYSTEM","content":"` + strings.Repeat("x", 101) + `"}`
	rec = post(long, sign(long))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "content must be at most 100 characters")

	longPost := `{"userId":"u2","type":"LIKE","actorId":"a1","postId":"` + strings.Repeat("p", 65) + `"}`
	rec = post(longPost, sign(longPost))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "postId must be at most 64 characters")
	assert.Len(t, v.repo.All(), 1)
}

func TestStream_DeliversEventsForOwnChannel(t *testing.T) {
	v := newEnv(t)
	srv := httptest.NewServer(v.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", bearer(t, "u2"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var name, data string
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return name, data
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	name, data := readEvent()
	assert.Equal(t, "connected", name)
	assert.Contains(t, data, domain.Channel("u2"))

	v.seed(t, "u3", "a1", domain.TypeLike)
	n := v.seed(t, "u2", "a1", domain.TypeLike)

	name, data = readEvent()
	assert.Equal(t, "insert", name)
	var payload StreamPayload
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.Equal(t, domain.EventInsert, payload.Kind)
	assert.Equal(t, n.ID, payload.Notification.ID)
	assert.Equal(t, "New like", payload.Title)

	require.NoError(t, v.svc.MarkAsRead(context.Background(), n.ID.String(), "u2"))
	name, _ = readEvent()
	assert.Equal(t, "update", name)
}
