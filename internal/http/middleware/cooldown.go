package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Counter increments a fixed-window counter and returns its new value.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisCounter is a Counter backed by INCR + EXPIRE.
type RedisCounter struct {
	Client *redis.Client
}

func (r RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.Client.Pipeline()
	cnt := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return cnt.Val(), nil
}

// CooldownConfig limits how often one user may run a command.
type CooldownConfig struct {
	Counter   Counter
	KeyPrefix string // e.g. "cd:"
	Command   string
	Uses      int
	Window    time.Duration
	now       func() time.Time
}

// CooldownMiddleware applies a fixed-window per user and command limit.
// It expects the invocation in echo.Context (set by GatewayAuthMiddleware).
func CooldownMiddleware(cfg CooldownConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "cd:"
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			inv, ok := InvocationFromCtx(c)
			if !ok || cfg.Uses <= 0 || cfg.Counter == nil {
				// no limit configured or redis missing (dev): allow
				return next(c)
			}

			// fixed-window key: cd:{command}:{user}:{window_index}
			now := cfg.now()
			window := now.UnixNano() / int64(cfg.Window)
			key := cfg.KeyPrefix + cfg.Command + ":" + strconv.FormatUint(inv.UserID, 10) + ":" + strconv.FormatInt(window, 10)

			cnt, err := cfg.Counter.Incr(c.Request().Context(), key, cfg.Window*2)
			if err != nil {
				return next(c)
			}

			if cnt > int64(cfg.Uses) {
				remain := cfg.Window - time.Duration(now.UnixNano()%int64(cfg.Window))
				secs := int((remain + time.Second - 1) / time.Second)
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "cooldown",
					"command":     cfg.Command,
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}
