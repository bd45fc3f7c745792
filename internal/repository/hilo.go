package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

const DefaultHiLoWindow = 100

// HiLoGenerator hands out numeric ids in blocks of window size. A block is
// reserved by incrementing the sequence row in hilo_sequences, so a round
// trip happens once per window ids.
type HiLoGenerator struct {
	db            *sqlx.DB
	defaultWindow uint64
	windows       map[string]uint64

	mu     sync.Mutex
	blocks map[string]*hiloBlock

	// nextHi reserves the next hi value for a sequence.
	nextHi func(ctx context.Context, name string) (uint64, error)
}

type hiloBlock struct {
	hi     uint64
	lo     uint64
	window uint64
}

func NewHiLoGenerator(db *sqlx.DB, defaultWindow uint64, windows map[string]uint64) *HiLoGenerator {
	if defaultWindow == 0 {
		defaultWindow = DefaultHiLoWindow
	}
	g := &HiLoGenerator{
		db:            db,
		defaultWindow: defaultWindow,
		windows:       windows,
		blocks:        make(map[string]*hiloBlock),
	}
	g.nextHi = g.reserveHi
	return g
}

func (g *HiLoGenerator) windowOf(name string) uint64 {
	if w, ok := g.windows[name]; ok && w > 0 {
		return w
	}
	return g.defaultWindow
}

// NextID returns the next id of the named sequence. A refill holds the
// generator lock while it takes a pooled connection, so callers must not
// hold another connection of the same pool while calling it.
func (g *HiLoGenerator) NextID(ctx context.Context, name string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.blocks[name]
	if !ok {
		w := g.windowOf(name)
		b = &hiloBlock{lo: w, window: w}
		g.blocks[name] = b
	}

	b.lo++
	if b.lo < b.window {
		return b.hi*b.window + b.lo, nil
	}

	hi, err := g.nextHi(ctx, name)
	if err != nil {
		// Keep the block exhausted so the next call retries the reservation.
		b.lo = b.window
		return 0, fmt.Errorf("reserve hilo block %s: %w", name, err)
	}
	b.hi = hi
	b.lo = 0
	return b.hi * b.window, nil
}

func (g *HiLoGenerator) reserveHi(ctx context.Context, name string) (uint64, error) {
	var hi uint64
	err := withTx(ctx, g.db, nil, func(tx *sqlx.Tx) error {
		var cur uint64
		err := tx.GetContext(ctx, &cur, `SELECT current_hi FROM hilo_sequences WHERE id = ? FOR UPDATE`, name)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := tx.ExecContext(ctx, `INSERT INTO hilo_sequences (id, current_hi) VALUES (?, 0)`, name); err != nil {
				return err
			}
			cur = 0
		} else if err != nil {
			return err
		}

		hi = cur + 1
		_, err = tx.ExecContext(ctx, `UPDATE hilo_sequences SET current_hi = ? WHERE id = ?`, hi, name)
		return err
	})
	return hi, err
}
