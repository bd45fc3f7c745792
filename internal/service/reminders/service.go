package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmehdipour/holo/internal/util"
	"github.com/jmoiron/sqlx"
)

// SequenceName is the hi/lo sequence reminder ids are drawn from.
const SequenceName = "ReminderId"

var ErrReminderNotFound = errors.New("reminder not found")

const (
	CodeMessageLength      = "message_length"
	CodeTooManyReminders   = "too_many_reminders"
	CodeInvalidTimeInput   = "invalid_time_input"
	CodeDueTimeOutOfRange  = "due_time_out_of_range"
	CodeIntervalOutOfRange = "interval_out_of_range"
	CodeInvalidUntilDate   = "invalid_until_date"
)

// ValidationError rejects a reminder before anything is written.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

type IDGenerator interface {
	NextID(ctx context.Context, name string) (uint64, error)
}

// Invocation identifies who created a reminder and where.
// ServerID and ChannelID are nil for direct messages.
type Invocation struct {
	UserID    uint64
	ServerID  *uint64
	ChannelID *uint64
}

type Page struct {
	Items     []model.Reminder
	PageIndex int
	PageCount int
	Total     int
}

type Service struct {
	reminders repository.RemindersRepository
	uow       UnitOfWork
	ids       IDGenerator
	clock     util.Clock
	opts      Options
}

func NewService(remindersRepo repository.RemindersRepository, uow UnitOfWork, ids IDGenerator, clock util.Clock, opts Options) *Service {
	if clock == nil {
		clock = util.SystemClock{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultOptions().PageSize
	}
	return &Service{reminders: remindersRepo, uow: uow, ids: ids, clock: clock, opts: opts}
}

// AddSingle creates a one-shot reminder firing after the NdNhNm duration when.
func (s *Service) AddSingle(ctx context.Context, inv Invocation, when string, message *string, loc model.Location) (model.Reminder, error) {
	message, err := s.validateMessage(message)
	if err != nil {
		return model.Reminder{}, err
	}
	due, err := ParseDuration(when)
	if err != nil {
		return model.Reminder{}, invalid(CodeInvalidTimeInput, "Invalid time, use the format NdNhNm (e.g. 1d2h30m).")
	}
	if due < 0 || due > s.opts.MaxDueTime {
		return model.Reminder{}, invalid(CodeDueTimeOutOfRange,
			"The reminder must be due within %d minutes.", int64(s.opts.MaxDueTime/time.Minute))
	}

	return s.create(ctx, inv, loc, func(now time.Time) model.Reminder {
		return model.Reminder{
			CreatedAt:   now,
			Message:     message,
			BaseTrigger: now,
			LastTrigger: now,
			NextTrigger: now.Add(due),
		}
	})
}

// AddRecurring creates a reminder repeating every interval, optionally until
// the given date.
func (s *Service) AddRecurring(ctx context.Context, inv Invocation, interval string, message *string, loc model.Location, until *time.Time) (model.Reminder, error) {
	message, err := s.validateMessage(message)
	if err != nil {
		return model.Reminder{}, err
	}
	freq, err := ParseDuration(interval)
	if err != nil {
		return model.Reminder{}, invalid(CodeInvalidTimeInput, "Invalid time, use the format NdNhNm (e.g. 1d2h30m).")
	}
	if freq < time.Minute || freq > s.opts.MaxInterval {
		return model.Reminder{}, invalid(CodeIntervalOutOfRange,
			"The interval must be between 1 and %d minutes.", int64(s.opts.MaxInterval/time.Minute))
	}
	if until != nil {
		today := s.clock.Now().UTC().Truncate(24 * time.Hour)
		if !until.After(today) {
			return model.Reminder{}, invalid(CodeInvalidUntilDate, "The end date must be in the future.")
		}
	}
	secs := int64(freq / time.Second)

	return s.create(ctx, inv, loc, func(now time.Time) model.Reminder {
		return model.Reminder{
			CreatedAt:        now,
			Message:          message,
			IsRepeating:      true,
			FrequencySeconds: &secs,
			UntilDate:        until,
			BaseTrigger:      now,
			LastTrigger:      now,
			NextTrigger:      now.Add(freq),
		}
	})
}

func (s *Service) create(ctx context.Context, inv Invocation, loc model.Location, build func(now time.Time) model.Reminder) (model.Reminder, error) {
	if err := s.checkCap(ctx, nil, inv.UserID); err != nil {
		return model.Reminder{}, err
	}

	// The id is reserved outside the transaction: a block reservation takes
	// its own connection and must not wait on one held by this insert.
	id, err := s.ids.NextID(ctx, SequenceName)
	if err != nil {
		return model.Reminder{}, err
	}

	var rem model.Reminder
	err = s.uow.InTx(ctx, func(tx *sqlx.Tx) error {
		// Recount under the user's range lock so concurrent adds cannot pass the cap together.
		if err := s.checkCap(ctx, tx, inv.UserID); err != nil {
			return err
		}

		rem = build(s.clock.Now())
		rem.ID = id
		rem.UserID = inv.UserID
		rem.Location = model.LocationDirectMessage
		if inv.ServerID != nil && inv.ChannelID != nil {
			rem.ServerID = inv.ServerID
			rem.ChannelID = inv.ChannelID
			rem.Location = loc
		}

		if err := s.reminders.Insert(ctx, tx, rem); err != nil {
			return fmt.Errorf("insert reminder: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Reminder{}, err
	}
	return rem, nil
}

func (s *Service) checkCap(ctx context.Context, tx *sqlx.Tx, userID uint64) error {
	n, err := s.reminders.CountByUser(ctx, tx, userID)
	if err != nil {
		return fmt.Errorf("count reminders: %w", err)
	}
	if n >= s.opts.PerUserMax {
		return invalid(CodeTooManyReminders,
			"You already have %d reminders. Remove one before adding another.", n)
	}
	return nil
}

func (s *Service) validateMessage(message *string) (*string, error) {
	if message == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*message)
	n := utf8.RuneCountInString(trimmed)
	if n < s.opts.MessageLengthMin || n > s.opts.MessageLengthMax {
		return nil, invalid(CodeMessageLength,
			"The message must be between %d and %d characters long.", s.opts.MessageLengthMin, s.opts.MessageLengthMax)
	}
	return &trimmed, nil
}

// List returns one page of the user's reminders ordered by id. Out of range
// pages fall back to the first page.
func (s *Service) List(ctx context.Context, userID uint64, pageIndex int) (Page, error) {
	total, err := s.reminders.CountByUser(ctx, nil, userID)
	if err != nil {
		return Page{}, fmt.Errorf("count reminders: %w", err)
	}
	pageCount := (total + s.opts.PageSize - 1) / s.opts.PageSize
	if pageIndex < 0 || pageIndex >= pageCount {
		pageIndex = 0
	}
	if total == 0 {
		return Page{Total: 0}, nil
	}

	items, err := s.reminders.ListByUser(ctx, userID, pageIndex*s.opts.PageSize, s.opts.PageSize)
	if err != nil {
		return Page{}, fmt.Errorf("list reminders: %w", err)
	}
	return Page{Items: items, PageIndex: pageIndex, PageCount: pageCount, Total: total}, nil
}

// Remove deletes one of the user's reminders.
func (s *Service) Remove(ctx context.Context, userID, reminderID uint64) error {
	deleted, err := s.reminders.DeleteByUser(ctx, nil, userID, reminderID)
	if err != nil {
		return fmt.Errorf("remove reminder: %w", err)
	}
	if !deleted {
		return ErrReminderNotFound
	}
	return nil
}
