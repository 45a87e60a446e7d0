package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidTimeFormat = errors.New("model: time must be HH:MM")

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Clock is a wall-clock time of day with no zone attached.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock reads "HH:MM". Out-of-range components are clamped rather than
// rejected, so "25:61" yields 23:59.
func ParseClock(raw string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	return Clock{Hour: clamp(hour, 0, 23), Minute: clamp(minute, 0, 59)}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Seconds is the offset from midnight with the seconds component fixed at 0.
func (c Clock) Seconds() int {
	return c.Hour*3600 + c.Minute*60
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
