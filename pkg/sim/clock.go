// Package sim is the small simulated world actors live in: a game clock
// that advances in ticks, movement with bounded arrival waits, and the
// handlers that carry out each action kind against per-actor state.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/plan"
)

// Clock is the shared game clock. Time only moves when Tick or NextDay is
// called; within a day it runs from dayStart and stops at dayEnd.
type Clock struct {
	mu       sync.Mutex
	date     time.Time
	minute   plan.Clock
	dayStart plan.Clock
	dayEnd   plan.Clock
	step     int
	ended    bool
	changed  chan struct{}
}

// NewClock creates a clock at dayStart on date. step is the number of game
// minutes per tick; values below 1 mean 1.
func NewClock(date time.Time, dayStart, dayEnd plan.Clock, step int) *Clock {
	if step < 1 {
		step = 1
	}
	if dayEnd <= dayStart {
		dayEnd = plan.MinutesPerDay
	}
	y, m, d := date.Date()
	return &Clock{
		date:     time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		minute:   dayStart,
		dayStart: dayStart,
		dayEnd:   dayEnd,
		step:     step,
		changed:  make(chan struct{}),
	}
}

// Now returns the time of day.
func (c *Clock) Now() plan.Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minute
}

// Date returns the current game date at midnight UTC.
func (c *Clock) Date() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

// Time returns the current game instant.
func (c *Clock) Time() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date.Add(time.Duration(c.minute) * time.Minute)
}

// DayStart is when every simulated day begins.
func (c *Clock) DayStart() plan.Clock { return c.dayStart }

// DayEnd is the time of day at which the clock stops.
func (c *Clock) DayEnd() plan.Clock { return c.dayEnd }

// MinutesPerTick is the game time one Tick advances.
func (c *Clock) MinutesPerTick() int { return c.step }

// DayOver reports whether the clock has reached the end of the day.
func (c *Clock) DayOver() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Tick advances the clock by one step, stopping at dayEnd. dayEnded is true
// only for the tick that reaches dayEnd.
func (c *Clock) Tick() (now plan.Clock, dayEnded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return c.minute, false
	}
	c.minute = c.minute.Add(c.step)
	if c.minute >= c.dayEnd {
		c.minute = c.dayEnd
		c.ended = true
		dayEnded = true
	}
	c.notifyLocked()
	return c.minute, dayEnded
}

// NextDay moves the clock to dayStart of the following date.
func (c *Clock) NextDay() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date = c.date.AddDate(0, 0, 1)
	c.minute = c.dayStart
	c.ended = false
	c.notifyLocked()
	return c.date
}

// Set jumps to a time of day on the current date.
func (c *Clock) Set(now plan.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now > c.dayEnd {
		now = c.dayEnd
	}
	c.minute = now
	c.ended = now >= c.dayEnd
	c.notifyLocked()
}

func (c *Clock) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// elapsedLocked counts game minutes since the zero date, so delays survive
// day changes.
func (c *Clock) elapsedLocked() int64 {
	days := c.date.Unix() / 86400
	return days*plan.MinutesPerDay + int64(c.minute)
}

// Delay blocks until the clock has advanced by minutes or ctx ends.
func (c *Clock) Delay(ctx context.Context, minutes int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if minutes <= 0 {
		return nil
	}

	c.mu.Lock()
	target := c.elapsedLocked() + int64(minutes)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if c.elapsedLocked() >= target {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
