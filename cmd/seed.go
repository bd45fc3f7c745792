package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/jmehdipour/holo/internal/config"
	"github.com/jmehdipour/holo/internal/db"
	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmehdipour/holo/internal/service/reminders"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed hi/lo sequences and feature states",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL, false)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding sequences and feature states...")

		err = repository.NewTransactor(sqlDB).InTx(cmd.Context(), func(tx *sqlx.Tx) error {
			if err := seedSequences(cmd.Context(), tx); err != nil {
				return err
			}
			return seedFeatureStates(cmd.Context(), tx)
		})
		if err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

// seedSequences creates the hi/lo rows that do not exist yet (idempotent).
func seedSequences(ctx context.Context, tx *sqlx.Tx) error {
	const q = `INSERT IGNORE INTO hilo_sequences (id, current_hi) VALUES (?, 0)`
	for _, name := range []string{reminders.SequenceName} {
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return fmt.Errorf("seed sequence %q: %w", name, err)
		}
	}
	return nil
}

// seedFeatureStates creates disabled feature rows, keeping existing values.
func seedFeatureStates(ctx context.Context, tx *sqlx.Tx) error {
	const q = `INSERT IGNORE INTO feature_states (id, is_enabled) VALUES (?, FALSE)`
	for _, id := range []string{model.FeatureMaintenanceMode} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("seed feature state %q: %w", id, err)
		}
	}
	return nil
}
