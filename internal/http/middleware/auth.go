package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const (
	HeaderGatewayToken = "X-Gateway-Token"
	HeaderUserID       = "X-User-ID"
	HeaderServerID     = "X-Server-ID"
	HeaderChannelID    = "X-Channel-ID"

	ctxInvocation = "invocation"
)

// Invocation is who ran an interaction and where. ServerID and ChannelID are
// nil for interactions coming from direct messages.
type Invocation struct {
	UserID    uint64
	ServerID  *uint64
	ChannelID *uint64
}

// InvocationFromCtx extracts the invocation set by GatewayAuthMiddleware.
func InvocationFromCtx(c echo.Context) (Invocation, bool) {
	inv, ok := c.Get(ctxInvocation).(Invocation)
	return inv, ok
}

// GatewayAuthMiddleware authenticates the gateway host by its shared token
// and stores the invocation headers in the context.
func GatewayAuthMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			got := strings.TrimSpace(h.Get(HeaderGatewayToken))
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing gateway token"})
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid gateway token"})
			}

			userID, err := strconv.ParseUint(strings.TrimSpace(h.Get(HeaderUserID)), 10, 64)
			if err != nil || userID == 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			}
			serverID, ok := optionalID(h.Get(HeaderServerID))
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid server id"})
			}
			channelID, ok := optionalID(h.Get(HeaderChannelID))
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
			}

			c.Set(ctxInvocation, Invocation{UserID: userID, ServerID: serverID, ChannelID: channelID})
			return next(c)
		}
	}
}

func optionalID(raw string) (*uint64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return nil, false
	}
	return &v, true
}
