package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/holo/internal/config"
	"github.com/jmehdipour/holo/internal/db"
	"github.com/jmehdipour/holo/internal/logger"
	"github.com/jmehdipour/holo/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	// attach subcommands
	cmd.AddCommand(monitorCmd)

	return cmd
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the background item polling monitor without the interaction endpoint",
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zl := logger.Init(cfg.Log.Level, cfg.Log.Encoding)
	defer func() { _ = zl.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL, false)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) gateway -> background
	bg, err := NewBackground(cfg, dbx, NewGateway(cfg.Gateway, zl), zl)
	if err != nil {
		return err
	}

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> monitor started interval=%s concurrency=%d timeout=%s",
		cfg.BackgroundProcessing.PollingInterval(),
		cfg.BackgroundProcessing.MaxConcurrency,
		cfg.BackgroundProcessing.ProcessingTimeout())

	return bg.Run(ctx)
}
