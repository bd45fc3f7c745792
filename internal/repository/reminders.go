package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmoiron/sqlx"
)

// RemindersRepository defines persistence for the reminders table.
type RemindersRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, r model.Reminder) error
	CountByUser(ctx context.Context, tx *sqlx.Tx, userID uint64) (int, error)
	ListByUser(ctx context.Context, userID uint64, offset, limit int) ([]model.Reminder, error)
	// GetTriggerable returns reminders due at or before now, earliest first.
	// A non-nil after skips every row ordered at or before it.
	GetTriggerable(ctx context.Context, tx *sqlx.Tx, now time.Time, after *TriggerCursor, limit int) ([]model.Reminder, error)
	UpdateTriggers(ctx context.Context, tx *sqlx.Tx, r model.Reminder) error
	Delete(ctx context.Context, tx *sqlx.Tx, id uint64) error
	// DeleteByUser removes the reminder only if it belongs to userID.
	DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID, id uint64) (bool, error)
}

// TriggerCursor is a position in the (next_trigger, id) order.
type TriggerCursor struct {
	NextTrigger time.Time
	ID          uint64
}

// CursorOf returns the position of r.
func CursorOf(r model.Reminder) *TriggerCursor {
	return &TriggerCursor{NextTrigger: r.NextTrigger, ID: r.ID}
}

type RemindersRepositoryImpl struct {
	db *sqlx.DB
}

func NewRemindersRepository(db *sqlx.DB) *RemindersRepositoryImpl {
	return &RemindersRepositoryImpl{db: db}
}

const reminderColumns = `id, user_id, created_at, message, is_repeating, frequency_time, day_of_week,
	until_date, base_trigger, last_trigger, next_trigger, location, server_id, channel_id`

func (r *RemindersRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, rem model.Reminder) error {
	const q = `
		INSERT INTO reminders (` + reminderColumns + `)
		VALUES
		    (:id, :user_id, :created_at, :message, :is_repeating, :frequency_time, :day_of_week,
		     :until_date, :base_trigger, :last_trigger, :next_trigger, :location, :server_id, :channel_id)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, rem)
		return err
	})
}

// CountByUser counts the user's reminders. Inside a transaction the user's
// index range is locked so a concurrent insert for the same user waits.
func (r *RemindersRepositoryImpl) CountByUser(ctx context.Context, tx *sqlx.Tx, userID uint64) (int, error) {
	q := `SELECT COUNT(*) FROM reminders WHERE user_id = ?`
	if tx != nil {
		q += ` FOR UPDATE`
	}
	var n int
	if err := sqlx.GetContext(ctx, reader(r.db, tx), &n, q, userID); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *RemindersRepositoryImpl) ListByUser(ctx context.Context, userID uint64, offset, limit int) ([]model.Reminder, error) {
	const q = `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = ? ORDER BY id LIMIT ? OFFSET ?`
	var out []model.Reminder
	if err := r.db.SelectContext(ctx, &out, q, userID, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemindersRepositoryImpl) GetTriggerable(ctx context.Context, tx *sqlx.Tx, now time.Time, after *TriggerCursor, limit int) ([]model.Reminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM reminders WHERE next_trigger <= ?`
	args := []interface{}{now}
	if after != nil {
		q += ` AND (next_trigger > ? OR (next_trigger = ? AND id > ?))`
		args = append(args, after.NextTrigger, after.NextTrigger, after.ID)
	}
	q += ` ORDER BY next_trigger, id LIMIT ?`
	args = append(args, limit)

	var out []model.Reminder
	if err := sqlx.SelectContext(ctx, reader(r.db, tx), &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemindersRepositoryImpl) UpdateTriggers(ctx context.Context, tx *sqlx.Tx, rem model.Reminder) error {
	const q = `UPDATE reminders SET last_trigger = ?, next_trigger = ? WHERE id = ?`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, rem.LastTrigger, rem.NextTrigger, rem.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *RemindersRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, id uint64) error {
	const q = `DELETE FROM reminders WHERE id = ?`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}

func (r *RemindersRepositoryImpl) DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID, id uint64) (bool, error) {
	const q = `DELETE FROM reminders WHERE id = ? AND user_id = ?`
	var deleted bool
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, id, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}
