package shell

import (
	"context"
	"fmt"
	"time"
)

// ClockInterval is the top-bar clock refresh period.
const ClockInterval = time.Second

var dayNames = [7]string{"일", "월", "화", "수", "목", "금", "토"}

// FormatClock renders t as "YYYY.MM.DD (요일) HH.MM.SS".
func FormatClock(t time.Time) string {
	return fmt.Sprintf("%04d.%02d.%02d (%s) %02d.%02d.%02d",
		t.Year(), int(t.Month()), t.Day(), dayNames[t.Weekday()],
		t.Hour(), t.Minute(), t.Second())
}

// Clock emits formatted wall-clock readings on a fixed interval.
type Clock struct {
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
}

// NewClock returns a one-second clock in loc (nil means local time).
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{Interval: ClockInterval, Location: loc, Now: time.Now}
}

// Read formats the current time.
func (c *Clock) Read() string {
	return FormatClock(c.Now().In(c.Location))
}

// Run calls emit immediately and then on every tick until ctx is done or emit returns an
// error, which Run returns. The ticker is stopped before Run returns.
func (c *Clock) Run(ctx context.Context, emit func(string) error) error {
	if err := emit(c.Read()); err != nil {
		return err
	}
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := emit(c.Read()); err != nil {
				return err
			}
		}
	}
}
