package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmehdipour/holo/internal/config"
	"github.com/jmehdipour/holo/internal/http/middleware"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	gommonLog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ShutdownTimeout bounds graceful shutdown of in-flight interactions.
const ShutdownTimeout = 5 * time.Second

// Deps are the services behind the interaction endpoint. Cooldown may be nil
// to disable cooldowns.
type Deps struct {
	Reminders   ReminderService
	Maintenance MaintenanceService
	Cooldown    middleware.Counter
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	cooldown := func(command string, rule config.CooldownRule) echo.MiddlewareFunc {
		return middleware.CooldownMiddleware(middleware.CooldownConfig{
			Counter:   deps.Cooldown,
			KeyPrefix: cfg.Cooldown.KeyPrefix,
			Command:   command,
			Uses:      rule.Uses,
			Window:    rule.Window,
		})
	}

	developers := make(map[uint64]struct{}, len(cfg.Dev.UserIDs))
	for _, id := range cfg.Dev.UserIDs {
		developers[id] = struct{}{}
	}

	// routes
	v1 := e.Group("/v1/interactions", middleware.GatewayAuthMiddleware(cfg.HTTP.GatewayToken))

	dev := v1.Group("/dev")
	dev.PUT("/maintenance", setMaintenanceHandler(deps.Maintenance, developers))

	rem := v1.Group("/reminders", middleware.MaintenanceMiddleware(deps.Maintenance))
	rem.POST("/single", addSingleHandler(deps.Reminders), cooldown("reminder_add", cfg.Cooldown.ReminderAdd))
	rem.POST("/recurring", addRecurringHandler(deps.Reminders), cooldown("reminder_add", cfg.Cooldown.ReminderAdd))
	rem.GET("", listRemindersHandler(deps.Reminders), cooldown("reminder_view", cfg.Cooldown.ReminderView))
	rem.DELETE("/:id", removeReminderHandler(deps.Reminders), cooldown("reminder_remove", cfg.Cooldown.ReminderRemove))

	return &Server{e: e}
}

func echoLogLevel(level string) gommonLog.Lvl {
	switch level {
	case "debug":
		return gommonLog.DEBUG
	case "warn":
		return gommonLog.WARN
	case "error":
		return gommonLog.ERROR
	default:
		return gommonLog.INFO
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	err := s.e.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
