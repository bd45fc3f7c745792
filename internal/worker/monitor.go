package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/holo/internal/metrics"
	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrMonitorRunning = errors.New("monitor already started")

// ItemStore is the part of the item repository the monitor needs.
type ItemStore interface {
	// DequeueBatch returns the oldest item of at most maxGroups correlation groups.
	DequeueBatch(ctx context.Context, tx *sqlx.Tx, maxGroups int) ([]model.Item, error)
	DeleteBatch(ctx context.Context, tx *sqlx.Tx, ids []string) error
}

type Options struct {
	PollingInterval   time.Duration
	MaxConcurrency    int
	ProcessingTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollingInterval:   time.Minute,
		MaxConcurrency:    4,
		ProcessingTimeout: 60 * time.Second,
	}
}

type State int

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Monitor polls the item table and runs ready items through the registry.
// At most one item per correlation id is in flight at any time.
type Monitor struct {
	store    ItemStore
	registry *Registry
	codec    *Codec
	opts     Options
	log      *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewMonitor(store ItemStore, registry *Registry, codec *Codec, opts Options, log *zap.Logger) *Monitor {
	def := DefaultOptions()
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = def.PollingInterval
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = def.ProcessingTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		store:    store,
		registry: registry,
		codec:    codec,
		opts:     opts,
		log:      log.Named("monitor"),
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start spawns the polling loop. The loop is cancelled by Stop or by ctx.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStopped {
		return ErrMonitorRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.state = StateRunning
	m.cancel = cancel
	m.done = done
	m.err = nil

	go func() {
		defer close(done)
		err := m.loop(loopCtx)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.err = err
		// Stop finishes the transition itself once it moved to stopping.
		if m.state == StateRunning {
			m.state = StateStopped
			m.cancel = nil
			cancel()
			m.log.Info("stopped", zap.Error(err))
		}
	}()

	m.log.Info("started",
		zap.Strings("item_types", m.registry.ItemTypes()),
		zap.Duration("polling_interval", m.opts.PollingInterval),
		zap.Int("max_concurrency", m.opts.MaxConcurrency),
		zap.Duration("processing_timeout", m.opts.ProcessingTimeout),
	)
	return nil
}

// Stop cancels the loop and waits for the current cycle to finish.
// It returns the error that terminated the loop, if any.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state == StateStopped {
		err := m.err
		m.err = nil
		m.mu.Unlock()
		return err
	}
	if m.state == StateStopping {
		done := m.done
		m.mu.Unlock()
		<-done
		return nil
	}
	m.state = StateStopping
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.err
	m.state = StateStopped
	m.cancel = nil
	m.err = nil
	m.log.Info("stopped")
	return err
}

// Run starts the monitor and blocks until ctx is done or the loop fails.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-done:
	}
	return m.Stop()
}

func (m *Monitor) loop(ctx context.Context) error {
	timer := time.NewTimer(m.opts.PollingInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		// Drain while cycles keep resolving items.
		for {
			removed, err := m.RunCycle(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.log.Error("poll cycle failed", zap.Error(err))
				return err
			}
			if removed == 0 || ctx.Err() != nil {
				break
			}
		}

		timer.Reset(m.opts.PollingInterval)
	}
}

type cycleResult struct {
	item   model.Item
	result Result
}

// RunCycle runs a single poll cycle and returns how many items were removed.
func (m *Monitor) RunCycle(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() { metrics.CycleSeconds.Observe(time.Since(started).Seconds()) }()

	items, err := m.store.DequeueBatch(ctx, nil, m.opts.MaxConcurrency)
	if err != nil {
		return 0, fmt.Errorf("dequeue: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	results := m.processAll(ctx, items)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		metrics.ItemsTotal.WithLabelValues(r.item.ItemType, r.result.String()).Inc()
		if r.result.Terminal() {
			ids = append(ids, r.item.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Finish the delete even if Stop was requested mid-cycle.
	if err := m.store.DeleteBatch(context.WithoutCancel(ctx), nil, ids); err != nil {
		return 0, fmt.Errorf("delete processed items: %w", err)
	}
	return len(ids), nil
}

func (m *Monitor) processAll(ctx context.Context, items []model.Item) []cycleResult {
	procCtx, cancel := context.WithTimeout(ctx, m.opts.ProcessingTimeout)
	defer cancel()

	results := make([]cycleResult, len(items))
	var g errgroup.Group
	g.SetLimit(m.opts.MaxConcurrency)
	for i := range items {
		g.Go(func() error {
			results[i] = cycleResult{item: items[i], result: m.processOne(procCtx, items[i])}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Monitor) processOne(ctx context.Context, item model.Item) (res Result) {
	log := m.log.With(zap.String("item_id", item.ID), zap.String("item_type", item.ItemType))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("processor panicked", zap.Any("panic", rec))
			res = Failure
		}
	}()

	payload, err := m.codec.Decode(item.SerializedItemData)
	if err != nil {
		log.Error("failed to decode item data", zap.Error(err))
		return Failure
	}

	started := time.Now()
	log.Debug("executing item")
	res, err = m.registry.ProcessItem(ctx, item.ItemType, payload)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownItemType):
			log.Error("no processor registered for item type")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			log.Warn("item cancelled", zap.Error(err))
		default:
			log.Error("item failed", zap.Error(err))
		}
		return Failure
	}

	log.Debug("executed item", zap.Stringer("result", res), zap.Duration("elapsed", time.Since(started)))
	return res
}
