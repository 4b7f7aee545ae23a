package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/application"
	"github.com/brainwaves/notification/internal/domain"
)

// Handler holds all HTTP handler methods.
type Handler struct {
	svc    *application.Service
	hub    *Hub
	checks map[string]func() any
}

// NewHandler creates a new Handler.
func NewHandler(svc *application.Service, hub *Hub) *Handler {
	return &Handler{svc: svc, hub: hub, checks: make(map[string]func() any)}
}

// AddHealthCheck adds a named value to the /health report.
func (h *Handler) AddHealthCheck(name string, fn func() any) {
	h.checks[name] = fn
}

// --- REST Handlers ---

// ListNotifications GET /notifications?page&limit&unreadOnly&type
func (h *Handler) ListNotifications(c echo.Context) error {
	userID, err := actor(c)
	if err != nil {
		return err
	}

	q := application.ListQuery{
		UserID:     userID,
		Page:       parseIntQuery(c, "page", 1),
		Limit:      parseIntQuery(c, "limit", 0),
		UnreadOnly: parseBoolQuery(c, "unreadOnly"),
	}
	if t := c.QueryParam("type"); t != "" {
		q.Type = domain.NotificationType(t)
		if !q.Type.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown type %q", t))
		}
	}

	res, err := h.svc.GetUserNotifications(c.Request().Context(), q)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetUnreadCount GET /notifications/unread-count
func (h *Handler) GetUnreadCount(c echo.Context) error {
	userID, err := actor(c)
	if err != nil {
		return err
	}

	count, err := h.svc.GetUnreadCount(c.Request().Context(), userID)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

// MarkRead PATCH /notifications/:id
func (h *Handler) MarkRead(c echo.Context) error {
	userID, err := actor(c)
	if err != nil {
		return err
	}

	if err := h.svc.MarkAsRead(c.Request().Context(), c.Param("id"), userID); err != nil {
		return failure(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead POST /notifications/mark-all-read
func (h *Handler) MarkAllRead(c echo.Context) error {
	userID, err := actor(c)
	if err != nil {
		return err
	}

	count, err := h.svc.MarkAllAsRead(c.Request().Context(), userID)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"marked": count})
}

// Delete DELETE /notifications/:id
func (h *Handler) Delete(c echo.Context) error {
	userID, err := actor(c)
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), userID); err != nil {
		return failure(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAll DELETE /notifications
func (h *Handler) DeleteAll(c echo.Context) error {
	userID, err := actor(c)
	if err != nil {
		return err
	}

	count, err := h.svc.DeleteAll(c.Request().Context(), userID)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": count})
}

// --- Webhook ---

type webhookRequest struct {
	UserID    string                  `json:"userId" validate:"required,max=64"`
	ActorID   string                  `json:"actorId" validate:"max=64"`
	Type      domain.NotificationType `json:"type" validate:"required,oneof=LIKE COMMENT REPLY FOLLOW MENTION SYSTEM"`
	Content   string                  `json:"content" validate:"max=100"`
	PostID    string                  `json:"postId" validate:"max=64"`
	CommentID string                  `json:"commentId" validate:"max=64"`
	Metadata  map[string]any          `json:"metadata"`
}

// Webhook POST /webhooks/notifications. The signature is checked by
// mw.WebhookSignature before this runs.
func (h *Handler) Webhook(c echo.Context) error {
	var req webhookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	n, err := h.svc.Create(c.Request().Context(), domain.CreateNotificationInput{
		UserID:    req.UserID,
		ActorID:   domain.Ref(req.ActorID),
		Type:      req.Type,
		Content:   domain.Ref(req.Content),
		PostID:    domain.Ref(req.PostID),
		CommentID: domain.Ref(req.CommentID),
		Metadata:  req.Metadata,
	})
	if err != nil {
		return failure(c, err)
	}
	if n == nil {
		return c.JSON(http.StatusOK, map[string]any{"created": false})
	}
	return c.JSON(http.StatusCreated, n)
}

// --- SSE Handler ---

// Stream GET /notifications/stream, an SSE endpoint
func (h *Handler) Stream(c echo.Context) error {
	userID, err := actor(c)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sendCh := make(chan []byte, 32)
	client := h.hub.Register(userID, sendCh)
	defer h.hub.Unregister(client)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"ok\",\"channel\":%q}\n\n", domain.Channel(userID))
	w.Flush()

	log.Info().Str("user", userID).Msg("SSE stream opened")

	ctx := c.Request().Context()
	for {
		select {
		case msg := <-sendCh:
			if _, err := w.Write(msg); err != nil {
				return nil
			}
			w.Flush()

		case <-ctx.Done():
			log.Info().Str("user", userID).Msg("SSE stream closed by client")
			return nil
		}
	}
}

// --- Healthcheck ---

// Health GET /health
func (h *Handler) Health(c echo.Context) error {
	report := map[string]any{
		"status":      "ok",
		"sse_clients": h.hub.ConnectedCount(),
	}
	for name, fn := range h.checks {
		report[name] = fn()
	}
	return c.JSON(http.StatusOK, report)
}

// --- Helpers ---

func actor(c echo.Context) (string, error) {
	userID, _ := c.Get("userID").(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, domain.ErrUnauthorized.Error())
	}
	return userID, nil
}

// failure maps a service error to an HTTP error.
func failure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("notification request failed")
	return echo.ErrInternalServerError
}

func parseIntQuery(c echo.Context, key string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func parseBoolQuery(c echo.Context, key string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(key))
	return v
}
