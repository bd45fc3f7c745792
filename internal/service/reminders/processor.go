package reminders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/holo/internal/gateway"
	"github.com/jmehdipour/holo/internal/metrics"
	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmehdipour/holo/internal/util"
	"github.com/jmehdipour/holo/internal/worker"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	ItemType      = "ReminderProcessingItem"
	CorrelationID = "1"
	BatchSize     = 50
)

// ProcessingItem is the singleton background item driving reminder delivery.
type ProcessingItem struct{}

func (ProcessingItem) PayloadType() string { return "reminders.processing_item" }

// Delivery sends notifications to the chat platform. Implementations report
// gateway.ErrForbidden when the target cannot be messaged and
// gateway.ErrNotFound when the user, server or channel no longer exists.
type Delivery interface {
	SendDirectMessage(ctx context.Context, userID uint64, content string) error
	SendChannelMessage(ctx context.Context, channelID uint64, content string) error
	IsMember(ctx context.Context, serverID, userID uint64) (bool, error)
	IsTextChannel(ctx context.Context, serverID, channelID uint64) (bool, error)
}

// UnitOfWork groups repository calls into one transaction.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// Processor fires due reminders. It never finishes while reminders are
// enabled, so its item stays queued and is picked up every poll cycle.
type Processor struct {
	reminders repository.RemindersRepository
	items     repository.ItemsRepository
	uow       UnitOfWork
	delivery  Delivery
	clock     util.Clock
	opts      Options
	log       *zap.Logger
}

func NewProcessor(
	remindersRepo repository.RemindersRepository,
	itemsRepo repository.ItemsRepository,
	uow UnitOfWork,
	delivery Delivery,
	clock util.Clock,
	opts Options,
	log *zap.Logger,
) *Processor {
	if clock == nil {
		clock = util.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		reminders: remindersRepo,
		items:     itemsRepo,
		uow:       uow,
		delivery:  delivery,
		clock:     clock,
		opts:      opts,
		log:       log.Named("reminders"),
	}
}

// RegisterPayloads makes ProcessingItem decodable by codec.
func RegisterPayloads(codec *worker.Codec) error {
	return worker.RegisterPayload[ProcessingItem](codec)
}

// Worker adapts p to the background processor registry.
func (p *Processor) Worker() worker.Processor {
	return worker.NewTypedProcessor(ItemType, p.Process)
}

// Bootstrap enqueues the processing item unless one already exists.
func (p *Processor) Bootstrap(ctx context.Context) error {
	return p.uow.InTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := p.items.HasItemOfType(ctx, tx, ItemType)
		if err != nil {
			return fmt.Errorf("check reminder item: %w", err)
		}
		if exists {
			return nil
		}
		id, err := p.items.Enqueue(ctx, tx, ProcessingItem{}, ItemType, CorrelationID)
		if err != nil {
			return fmt.Errorf("enqueue reminder item: %w", err)
		}
		p.log.Info("enqueued reminder processing item", zap.String("item_id", id))
		return nil
	})
}

// Process delivers all due reminders, batch by batch, until none are left
// or ctx is done.
func (p *Processor) Process(ctx context.Context, _ ProcessingItem) (worker.Result, error) {
	if !p.opts.Enabled {
		return worker.Success, nil
	}

	processed := 0
	defer func() {
		if processed > 0 {
			p.log.Debug("processed reminders", zap.Int("count", processed))
		}
	}()

	// Rows that fail stay due, so the pass pages past them instead of
	// fetching the same head of the queue again.
	var after *repository.TriggerCursor
	for {
		if ctx.Err() != nil {
			return worker.RetryLater, nil
		}

		batch, err := p.reminders.GetTriggerable(ctx, nil, p.clock.Now(), after, BatchSize)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error("failed to fetch triggerable reminders", zap.Error(err))
			}
			return worker.RetryLater, nil
		}

		for _, r := range batch {
			if ctx.Err() != nil {
				return worker.RetryLater, nil
			}
			if err := p.trigger(ctx, r); err != nil {
				metrics.RemindersTotal.WithLabelValues("failed").Inc()
				p.log.Error("unexpected failure while processing reminder",
					zap.Uint64("reminder_id", r.ID), zap.Error(err))
				continue
			}
			processed++
		}

		if len(batch) < BatchSize {
			return worker.RetryLater, nil
		}
		after = repository.CursorOf(batch[len(batch)-1])
	}
}

func (p *Processor) trigger(ctx context.Context, r model.Reminder) error {
	delivered, err := p.notify(ctx, r)
	if errors.Is(err, gateway.ErrForbidden) {
		p.log.Debug("reminder target is unreachable, will not retry",
			zap.Uint64("reminder_id", r.ID), zap.Uint64("user_id", r.UserID), zap.Error(err))
		metrics.RemindersTotal.WithLabelValues("forbidden").Inc()
		return p.reminders.Delete(ctx, nil, r.ID)
	}
	if err != nil {
		return err
	}

	if delivered {
		metrics.RemindersTotal.WithLabelValues("delivered").Inc()
	}
	if !delivered || !r.IsRepeating {
		metrics.RemindersTotal.WithLabelValues("deleted").Inc()
		return p.reminders.Delete(ctx, nil, r.ID)
	}

	now := p.clock.Now()
	r.LastTrigger = now
	if err := r.UpdateNextTrigger(now); err != nil {
		return err
	}
	if r.IsExpired() {
		metrics.RemindersTotal.WithLabelValues("deleted").Inc()
		return p.reminders.Delete(ctx, nil, r.ID)
	}
	if err := p.reminders.UpdateTriggers(ctx, nil, r); err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}

	metrics.RemindersTotal.WithLabelValues("rescheduled").Inc()
	p.log.Debug("rescheduled reminder",
		zap.Uint64("reminder_id", r.ID), zap.Int64("next_trigger", r.NextTrigger.Unix()))
	return nil
}

// notify reports whether the notification reached the user.
func (p *Processor) notify(ctx context.Context, r model.Reminder) (bool, error) {
	content := NotificationText(r, r.IsBelated(p.clock.Now(), p.opts.BelatedAfter))

	if r.Location == model.LocationDirectMessage {
		err := p.delivery.SendDirectMessage(ctx, r.UserID, content)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, gateway.ErrNotFound):
			return false, nil
		case !errors.Is(err, gateway.ErrForbidden):
			return false, err
		case r.ServerID == nil || r.ChannelID == nil:
			return false, err
		}
		// DMs are closed; fall back to the channel the reminder was created in.
	}

	return p.sendToChannel(ctx, r, content)
}

func (p *Processor) sendToChannel(ctx context.Context, r model.Reminder, content string) (bool, error) {
	if r.ServerID == nil || r.ChannelID == nil {
		return false, nil
	}

	member, err := p.delivery.IsMember(ctx, *r.ServerID, r.UserID)
	if errors.Is(err, gateway.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !member {
		return false, nil
	}

	text, err := p.delivery.IsTextChannel(ctx, *r.ServerID, *r.ChannelID)
	if errors.Is(err, gateway.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !text {
		return false, nil
	}

	if err := p.delivery.SendChannelMessage(ctx, *r.ChannelID, content); err != nil {
		return false, err
	}
	return true, nil
}
