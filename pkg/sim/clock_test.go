package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/plan"
)

var testDate = time.Date(2025, 3, 1, 15, 4, 5, 0, time.UTC)

func TestClock_Tick(t *testing.T) {
	c := NewClock(testDate, plan.MustParseClock("08:00"), plan.MustParseClock("09:00"), 30)

	if got := c.Date(); !got.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date should be truncated to midnight, got %v", got)
	}
	if got := c.Time(); !got.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start instant %v", got)
	}

	steps := []struct {
		want  string
		ended bool
	}{
		{"08:30", false},
		{"09:00", true},
		{"09:00", false},
	}
	for i, s := range steps {
		now, ended := c.Tick()
		if now.String() != s.want || ended != s.ended {
			t.Errorf("tick %d: expected %s/%v, got %s/%v", i, s.want, s.ended, now, ended)
		}
	}
	if !c.DayOver() {
		t.Error("expected the day to be over")
	}

	next := c.NextDay()
	if !next.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected next date %v", next)
	}
	if c.Now().String() != "08:00" || c.DayOver() {
		t.Errorf("expected a fresh day at 08:00, got %s (over=%v)", c.Now(), c.DayOver())
	}
}

func TestClock_Defaults(t *testing.T) {
	c := NewClock(testDate, plan.MustParseClock("10:00"), plan.MustParseClock("09:00"), 0)
	if c.MinutesPerTick() != 1 {
		t.Errorf("expected step 1, got %d", c.MinutesPerTick())
	}
	if c.DayEnd() != plan.MinutesPerDay {
		t.Errorf("expected day end at midnight, got %s", c.DayEnd())
	}

	c.Set(plan.MinutesPerDay + 30)
	if c.Now() != plan.MinutesPerDay || !c.DayOver() {
		t.Errorf("Set should clamp to the day end, got %s", c.Now())
	}
}

// driveUntil keeps advancing the clock until the delay result arrives.
func driveUntil(t *testing.T, advance func(), done <-chan error) error {
	t.Helper()
	for i := 0; i < 500; i++ {
		select {
		case err := <-done:
			return err
		default:
		}
		advance()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("delay never returned")
	return nil
}

func TestClock_Delay(t *testing.T) {
	t.Run("waits for game minutes", func(t *testing.T) {
		c := NewClock(testDate, plan.MustParseClock("08:00"), plan.MustParseClock("23:00"), 10)
		start := c.Now()

		done := make(chan error, 1)
		go func() { done <- c.Delay(context.Background(), 20) }()

		if err := driveUntil(t, func() { c.Tick() }, done); err != nil {
			t.Fatalf("Delay: %v", err)
		}
		if elapsed := int(c.Now() - start); elapsed < 20 {
			t.Errorf("delay returned after only %d minutes", elapsed)
		}
	})

	t.Run("survives day changes", func(t *testing.T) {
		c := NewClock(testDate, plan.MustParseClock("08:00"), plan.MustParseClock("09:00"), 60)
		c.Tick()

		done := make(chan error, 1)
		go func() { done <- c.Delay(context.Background(), 5) }()

		if err := driveUntil(t, func() { c.NextDay() }, done); err != nil {
			t.Fatalf("Delay: %v", err)
		}
	})

	t.Run("zero minutes", func(t *testing.T) {
		c := NewClock(testDate, 0, 0, 1)
		if err := c.Delay(context.Background(), 0); err != nil {
			t.Fatalf("expected immediate return, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		c := NewClock(testDate, 0, 0, 1)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Delay(ctx, 30) }()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("cancelled delay did not return")
		}
	})
}
