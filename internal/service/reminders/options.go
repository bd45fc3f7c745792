package reminders

import "time"

type Options struct {
	Enabled          bool
	PerUserMax       int
	MessageLengthMin int
	MessageLengthMax int
	BelatedAfter     time.Duration
	MaxDueTime       time.Duration
	MaxInterval      time.Duration
	PageSize         int
}

func DefaultOptions() Options {
	return Options{
		Enabled:          true,
		PerUserMax:       5,
		MessageLengthMin: 10,
		MessageLengthMax: 120,
		BelatedAfter:     300 * time.Second,
		MaxDueTime:       525960 * time.Minute,
		MaxInterval:      525960 * time.Minute,
		PageSize:         3,
	}
}
