package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"10m":       10 * time.Minute,
		"1h":        time.Hour,
		"2d":        48 * time.Hour,
		"1d2h30m":   26*time.Hour + 30*time.Minute,
		"1D 2H 3M":  26*time.Hour + 3*time.Minute,
		" 90m ":     90 * time.Minute,
		"0m":        0,
		"365d":      365 * 24 * time.Hour,
		"1d 30m":    24*time.Hour + 30*time.Minute,
		"3 h 15 m":  3*time.Hour + 15*time.Minute,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "10", "m", "1m2h", "1.5h", "-1h", "10s", "99999999999999999999d"} {
		_, err := ParseDuration(in)
		assert.ErrorIs(t, err, ErrInvalidDuration, in)
	}
}
