package reminders

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration, expected NdNhNm")

var durationPattern = regexp.MustCompile(`(?i)^(?:(\d+)\s*d)?\s*(?:(\d+)\s*h)?\s*(?:(\d+)\s*m)?$`)

// ParseDuration parses inputs such as "1d2h30m", "90m" or "2h 5m".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidDuration
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrInvalidDuration
	}

	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil || n > int64(maxDuration/unit) {
			return 0, ErrInvalidDuration
		}
		total += time.Duration(n) * unit
		if total < 0 {
			return 0, ErrInvalidDuration
		}
	}
	return total, nil
}

const maxDuration = time.Duration(1<<63 - 1)
