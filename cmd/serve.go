package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/holo/cmd/worker"
	"github.com/jmehdipour/holo/internal/config"
	"github.com/jmehdipour/holo/internal/db"
	httpSrv "github.com/jmehdipour/holo/internal/http"
	"github.com/jmehdipour/holo/internal/http/middleware"
	"github.com/jmehdipour/holo/internal/logger"
	"github.com/jmehdipour/holo/internal/metrics"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmehdipour/holo/internal/service/maintenance"
	"github.com/jmehdipour/holo/internal/service/reminders"
	"github.com/jmehdipour/holo/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interaction endpoint and the background monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		zl := logger.Init(cfg.Log.Level, cfg.Log.Encoding)
		defer func() { _ = zl.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL, false)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		deps := httpSrv.Deps{}
		if redisClient != nil {
			defer func() { _ = redisClient.Close() }()
			deps.Cooldown = middleware.RedisCounter{Client: redisClient}
		}

		// repos + services
		tx := repository.NewTransactor(mysqlDB)
		hilo := repository.NewHiLoGenerator(mysqlDB, cfg.HiLo.DefaultWindowSize, map[string]uint64{
			reminders.SequenceName: cfg.HiLo.WindowFor(reminders.SequenceName),
		})
		deps.Reminders = reminders.NewService(repository.NewRemindersRepository(mysqlDB), tx, hilo,
			util.SystemClock{}, worker.ReminderOptions(cfg.Reminders))
		deps.Maintenance = maintenance.NewManager(repository.NewFeatureStatesRepository(mysqlDB), tx)

		bg, err := worker.NewBackground(cfg, mysqlDB, worker.NewGateway(cfg.Gateway, zl), zl)
		if err != nil {
			return err
		}

		server := httpSrv.NewServer(cfg, deps)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Printf("starting http on %s", cfg.HTTP.Addr)
			return server.Start(cfg.HTTP.Addr)
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Printf("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpSrv.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			return bg.Run(gctx)
		})

		return g.Wait()
	},
}
