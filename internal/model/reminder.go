package model

import (
	"errors"
	"time"
)

var ErrNotRepeating = errors.New("reminder is not repeating")

type Location int16

const (
	LocationDirectMessage Location = 0
	LocationChannel       Location = 1
)

func (l Location) String() string {
	switch l {
	case LocationDirectMessage:
		return "direct_message"
	case LocationChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// ParseLocation accepts the String form of a Location. Empty means direct message.
func ParseLocation(s string) (Location, bool) {
	switch s {
	case "", "direct_message":
		return LocationDirectMessage, true
	case "channel":
		return LocationChannel, true
	default:
		return 0, false
	}
}

func (l Location) Valid() bool {
	return l == LocationDirectMessage || l == LocationChannel
}

// Reminder is the DB entity persisted in reminders.
// FrequencySeconds is set iff IsRepeating.
type Reminder struct {
	ID               uint64     `db:"id"`
	UserID           uint64     `db:"user_id"`
	CreatedAt        time.Time  `db:"created_at"`
	Message          *string    `db:"message"`
	IsRepeating      bool       `db:"is_repeating"`
	FrequencySeconds *int64     `db:"frequency_time"`
	DayOfWeek        int16      `db:"day_of_week"`
	UntilDate        *time.Time `db:"until_date"`
	BaseTrigger      time.Time  `db:"base_trigger"`
	LastTrigger      time.Time  `db:"last_trigger"`
	NextTrigger      time.Time  `db:"next_trigger"`
	Location         Location   `db:"location"`
	ServerID         *uint64    `db:"server_id"`
	ChannelID        *uint64    `db:"channel_id"`
}

// Frequency returns the repeat interval, or 0 for one-shot reminders.
func (r *Reminder) Frequency() time.Duration {
	if r.FrequencySeconds == nil {
		return 0
	}
	return time.Duration(*r.FrequencySeconds) * time.Second
}

// MessageText returns the message or "" when none was given.
func (r *Reminder) MessageText() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}

// UpdateNextTrigger moves NextTrigger to the first base+k*freq boundary
// strictly after now. Missed intervals are skipped, not replayed.
func (r *Reminder) UpdateNextTrigger(now time.Time) error {
	freq := r.Frequency()
	if !r.IsRepeating || freq <= 0 {
		return ErrNotRepeating
	}

	repeatCount := int64(now.Sub(r.BaseTrigger) / freq)
	r.NextTrigger = r.BaseTrigger.Add(time.Duration(repeatCount+1) * freq)
	return nil
}

// IsBelated reports whether the reminder fires more than threshold after it was due.
func (r *Reminder) IsBelated(now time.Time, threshold time.Duration) bool {
	return now.Sub(r.NextTrigger) > threshold
}

// IsExpired reports whether the next trigger date reached the until date.
func (r *Reminder) IsExpired() bool {
	if r.UntilDate == nil {
		return false
	}
	return !truncateDay(r.NextTrigger).Before(truncateDay(*r.UntilDate))
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
