package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/brainwaves/notification/internal/transport/mw"
)

// AuthConfig holds the secrets the router's middleware verifies against.
type AuthConfig struct {
	JWTSecret     string
	JWTIssuer     string
	WebhookSecret string
}

// NewRouter sets up all Echo routes and middleware.
func NewRouter(h *Handler, auth AuthConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = newRequestValidator()

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Authorization", "Content-Type", mw.SignatureHeader},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
	}))

	// Health (no auth required)
	e.GET("/health", h.Health)

	// Inbound creation, authenticated by body signature
	e.POST("/webhooks/notifications", h.Webhook, mw.WebhookSignature(auth.WebhookSecret))

	// API, requires an authenticated actor
	v1 := e.Group("")
	v1.Use(mw.JWTAuth(auth.JWTSecret, auth.JWTIssuer))

	v1.GET("/notifications", h.ListNotifications)
	v1.GET("/notifications/unread-count", h.GetUnreadCount)
	v1.POST("/notifications/mark-all-read", h.MarkAllRead)
	v1.PATCH("/notifications/:id", h.MarkRead)
	v1.DELETE("/notifications/:id", h.Delete)
	v1.DELETE("/notifications", h.DeleteAll)

	// SSE endpoint
	v1.GET("/notifications/stream", h.Stream)

	return e
}
