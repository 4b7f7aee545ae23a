package mw

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// SignatureHeader carries the webhook body signature as "sha256=<hex>".
const SignatureHeader = "X-Signature"

// maxWebhookBody bounds the body read for signature verification.
const maxWebhookBody = 1 << 20

// JWTAuth validates the HS256 Bearer token issued by the blog's auth service.
// The "sub" claim becomes the authenticated actor, stored as "userID" in the
// echo.Context. A non-empty issuer is enforced against "iss".
func JWTAuth(secret, issuer string) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims := jwt.MapClaims{}
			_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil {
				log.Warn().Err(err).Msg("JWT verification failed")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			userID, err := claims.GetSubject()
			if err != nil || userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			c.Set("userID", userID)
			return next(c)
		}
	}
}

// WebhookSignature rejects requests whose body does not carry a valid
// HMAC-SHA256 signature under secret. The body is restored for the handler.
func WebhookSignature(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(key) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "webhook disabled")
			}
			req := c.Request()
			body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			if !ValidSignature(key, body, req.Header.Get(SignatureHeader)) {
				log.Warn().Str("remote", c.RealIP()).Msg("webhook signature rejected")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
			}
			return next(c)
		}
	}
}

// Sign returns the header value for body under key.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares header against the expected signature in constant time.
func ValidSignature(key, body []byte, header string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(header), []byte(Sign(key, body)))
}
