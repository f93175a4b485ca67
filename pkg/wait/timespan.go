package wait

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var timespanRe = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)\s*$`)

var timespanUnits = map[string]time.Duration{
	"":        time.Second,
	"ms":      time.Millisecond,
	"millis":  time.Millisecond,
	"s":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
}

// ParseTimespan parses step durations such as "20 seconds", "1 minute", "500 ms" or "2m30s".
// A bare number is read as seconds.
func ParseTimespan(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return d, nil
	}

	m := timespanRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid timespan %q", s)
	}
	unit, ok := timespanUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("invalid timespan unit %q", m[2])
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timespan %q: %w", s, err)
	}
	return time.Duration(value * float64(unit)), nil
}
