package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the number of minutes in one simulated day.
const MinutesPerDay = 24 * 60

// Clock is a wall-clock-of-day value expressed in minutes since midnight.
// 24:00 (MinutesPerDay) is accepted as an end-of-day bound.
type Clock int

// ParseClock parses "HH:MM" (optionally "HH:MM:SS"; seconds are ignored).
// It reports false for anything it cannot read instead of returning an error,
// because plan text comes from collaborators that get the format wrong.
func ParseClock(s string) (Clock, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	if hour == 24 && minute != 0 {
		return 0, false
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, false
		}
	}

	return Clock(hour*60 + minute), true
}

// MustParseClock is like ParseClock but panics on malformed input.
// Intended for literals in tests and defaults.
func MustParseClock(s string) Clock {
	c, ok := ParseClock(s)
	if !ok {
		panic(fmt.Sprintf("plan: invalid clock %q", s))
	}
	return c
}

// String formats the clock as "HH:MM".
func (c Clock) String() string {
	if c < 0 {
		c = 0
	}
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock shifted by the given number of minutes, clamped to [0, 24:00].
func (c Clock) Add(minutes int) Clock {
	v := int(c) + minutes
	if v < 0 {
		return 0
	}
	if v > MinutesPerDay {
		return MinutesPerDay
	}
	return Clock(v)
}

// ToMinutes converts "HH:MM" to minutes since midnight.
func ToMinutes(s string) (int, bool) {
	c, ok := ParseClock(s)
	return int(c), ok
}

// Duration returns end-start in minutes. Unparsable bounds and inverted
// ranges yield 0.
func Duration(start, end string) int {
	s, ok := ParseClock(start)
	if !ok {
		return 0
	}
	e, ok := ParseClock(end)
	if !ok || e <= s {
		return 0
	}
	return int(e - s)
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) intersect. Any unparsable bound means no overlap.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	as, ok1 := ParseClock(aStart)
	ae, ok2 := ParseClock(aEnd)
	bs, ok3 := ParseClock(bStart)
	be, ok4 := ParseClock(bEnd)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	return as < be && bs < ae
}

// contains reports whether now lies in [start, end).
func contains(start, end string, now Clock) bool {
	s, ok := ParseClock(start)
	if !ok {
		return false
	}
	e, ok := ParseClock(end)
	if !ok {
		return false
	}
	return s <= now && now < e
}
