package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmoiron/sqlx"
)

type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// Manager toggles maintenance mode. While it is on, only developer
// interactions are served.
type Manager struct {
	states repository.FeatureStatesRepository
	uow    UnitOfWork
}

func NewManager(states repository.FeatureStatesRepository, uow UnitOfWork) *Manager {
	return &Manager{states: states, uow: uow}
}

// IsEnabled reports whether maintenance mode is on. A feature that was never
// set counts as off.
func (m *Manager) IsEnabled(ctx context.Context) (bool, error) {
	fs, err := m.states.Get(ctx, nil, model.FeatureMaintenanceMode)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get maintenance state: %w", err)
	}
	return fs.IsEnabled, nil
}

// SetMode switches maintenance mode and reports whether the state changed.
func (m *Manager) SetMode(ctx context.Context, enabled bool) (bool, error) {
	changed := false
	err := m.uow.InTx(ctx, func(tx *sqlx.Tx) error {
		fs, err := m.states.Get(ctx, tx, model.FeatureMaintenanceMode)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return fmt.Errorf("get maintenance state: %w", err)
		case fs.IsEnabled == enabled:
			return nil
		}

		changed = true
		return m.states.Upsert(ctx, tx, model.FeatureState{ID: model.FeatureMaintenanceMode, IsEnabled: enabled})
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
