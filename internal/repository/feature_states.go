package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmoiron/sqlx"
)

// FeatureStatesRepository defines persistence for feature_states.
type FeatureStatesRepository interface {
	// Get returns ErrNotFound when the feature was never set.
	Get(ctx context.Context, tx *sqlx.Tx, id string) (model.FeatureState, error)
	Upsert(ctx context.Context, tx *sqlx.Tx, fs model.FeatureState) error
}

type FeatureStatesRepositoryImpl struct {
	db *sqlx.DB
}

func NewFeatureStatesRepository(db *sqlx.DB) *FeatureStatesRepositoryImpl {
	return &FeatureStatesRepositoryImpl{db: db}
}

func (r *FeatureStatesRepositoryImpl) Get(ctx context.Context, tx *sqlx.Tx, id string) (model.FeatureState, error) {
	const q = `SELECT id, is_enabled FROM feature_states WHERE id = ?`
	var fs model.FeatureState
	err := sqlx.GetContext(ctx, reader(r.db, tx), &fs, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FeatureState{}, ErrNotFound
	}
	if err != nil {
		return model.FeatureState{}, err
	}
	return fs, nil
}

func (r *FeatureStatesRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, fs model.FeatureState) error {
	const q = `
		INSERT INTO feature_states (id, is_enabled)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE is_enabled = VALUES(is_enabled)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, fs.ID, fs.IsEnabled)
		return err
	})
}
