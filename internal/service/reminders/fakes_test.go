package reminders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmehdipour/holo/internal/util"
	"github.com/jmehdipour/holo/internal/worker"
	"github.com/jmoiron/sqlx"
)

type memReminders struct {
	mu        sync.Mutex
	rows      map[uint64]model.Reminder
	fetches   int
	updateErr error
}

func newMemReminders(rs ...model.Reminder) *memReminders {
	m := &memReminders{rows: make(map[uint64]model.Reminder)}
	for _, r := range rs {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memReminders) Insert(_ context.Context, _ *sqlx.Tx, r model.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return nil
}

func (m *memReminders) CountByUser(_ context.Context, _ *sqlx.Tx, userID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memReminders) sorted(keep func(model.Reminder) bool, less func(a, b model.Reminder) bool) []model.Reminder {
	var out []model.Reminder
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (m *memReminders) ListByUser(_ context.Context, userID uint64, offset, limit int) ([]model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(
		func(r model.Reminder) bool { return r.UserID == userID },
		func(a, b model.Reminder) bool { return a.ID < b.ID },
	)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func triggerLess(at time.Time, id uint64, b model.Reminder) bool {
	if at.Equal(b.NextTrigger) {
		return id < b.ID
	}
	return at.Before(b.NextTrigger)
}

func (m *memReminders) GetTriggerable(_ context.Context, _ *sqlx.Tx, now time.Time, after *repository.TriggerCursor, limit int) ([]model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	all := m.sorted(
		func(r model.Reminder) bool {
			if r.NextTrigger.After(now) {
				return false
			}
			return after == nil || triggerLess(after.NextTrigger, after.ID, r)
		},
		func(a, b model.Reminder) bool { return triggerLess(a.NextTrigger, a.ID, b) },
	)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memReminders) UpdateTriggers(_ context.Context, _ *sqlx.Tx, r model.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cur := m.rows[r.ID]
	cur.LastTrigger = r.LastTrigger
	cur.NextTrigger = r.NextTrigger
	m.rows[r.ID] = cur
	return nil
}

func (m *memReminders) Delete(_ context.Context, _ *sqlx.Tx, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memReminders) DeleteByUser(_ context.Context, _ *sqlx.Tx, userID, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memReminders) get(id uint64) (model.Reminder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r, ok
}

func (m *memReminders) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memItems struct {
	codec *worker.Codec
	items []model.Item
}

func (m *memItems) HasItemOfType(_ context.Context, _ *sqlx.Tx, itemType string) (bool, error) {
	for _, it := range m.items {
		if it.ItemType == itemType {
			return true, nil
		}
	}
	return false, nil
}

func (m *memItems) Enqueue(_ context.Context, _ *sqlx.Tx, p worker.Payload, itemType, correlationID string) (string, error) {
	data, err := m.codec.Encode(p)
	if err != nil {
		return "", err
	}
	id := util.NewID()
	m.items = append(m.items, model.Item{ID: id, ItemType: itemType, CorrelationID: correlationID, SerializedItemData: data})
	return id, nil
}

func (m *memItems) DequeueBatch(context.Context, *sqlx.Tx, int) ([]model.Item, error) {
	return m.items, nil
}

func (m *memItems) Delete(context.Context, *sqlx.Tx, string) error { return nil }

func (m *memItems) DeleteBatch(context.Context, *sqlx.Tx, []string) error { return nil }

type txRunner struct {
	calls  int
	active bool
}

func (r *txRunner) InTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	r.calls++
	r.active = true
	defer func() { r.active = false }()
	return fn(nil)
}

type seqIDs struct {
	next   uint64
	onNext func()
}

func (s *seqIDs) NextID(context.Context, string) (uint64, error) {
	s.next++
	if s.onNext != nil {
		s.onNext()
	}
	return s.next, nil
}

type sent struct {
	target  uint64
	content string
}

type fakeDelivery struct {
	mu         sync.Mutex
	dmErr      error
	channelErr error
	notMember  bool
	memberErr  error
	notText    bool
	dms        []sent
	channels   []sent
}

func (f *fakeDelivery) SendDirectMessage(_ context.Context, userID uint64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dmErr != nil {
		return f.dmErr
	}
	f.dms = append(f.dms, sent{userID, content})
	return nil
}

func (f *fakeDelivery) SendChannelMessage(_ context.Context, channelID uint64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelErr != nil {
		return f.channelErr
	}
	f.channels = append(f.channels, sent{channelID, content})
	return nil
}

func (f *fakeDelivery) IsMember(context.Context, uint64, uint64) (bool, error) {
	return !f.notMember, f.memberErr
}

func (f *fakeDelivery) IsTextChannel(context.Context, uint64, uint64) (bool, error) {
	return !f.notText, nil
}

func ptr[T any](v T) *T { return &v }
