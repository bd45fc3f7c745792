package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStates struct {
	rows    map[string]model.FeatureState
	getErr  error
	upserts int
}

func (m *memStates) Get(_ context.Context, _ *sqlx.Tx, id string) (model.FeatureState, error) {
	if m.getErr != nil {
		return model.FeatureState{}, m.getErr
	}
	fs, ok := m.rows[id]
	if !ok {
		return model.FeatureState{}, repository.ErrNotFound
	}
	return fs, nil
}

func (m *memStates) Upsert(_ context.Context, _ *sqlx.Tx, fs model.FeatureState) error {
	m.upserts++
	m.rows[fs.ID] = fs
	return nil
}

type txRunner struct{}

func (txRunner) InTx(_ context.Context, fn func(*sqlx.Tx) error) error { return fn(nil) }

func TestManager_DefaultsToOff(t *testing.T) {
	m := NewManager(&memStates{rows: map[string]model.FeatureState{}}, txRunner{})

	on, err := m.IsEnabled(context.Background())
	require.NoError(t, err)
	assert.False(t, on)
}

func TestManager_SetMode(t *testing.T) {
	states := &memStates{rows: map[string]model.FeatureState{}}
	m := NewManager(states, txRunner{})
	ctx := context.Background()

	changed, err := m.SetMode(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)

	on, err := m.IsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	changed, err = m.SetMode(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, states.upserts)

	changed, err = m.SetMode(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)

	on, err = m.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestManager_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	m := NewManager(&memStates{rows: map[string]model.FeatureState{}, getErr: boom}, txRunner{})

	_, err := m.IsEnabled(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = m.SetMode(context.Background(), true)
	assert.ErrorIs(t, err, boom)
}
