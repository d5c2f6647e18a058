// Package clock provides the injectable time source used by the maturity
// gate and the expiry sweeper. Components never read the wall clock
// directly; they receive a Clock so tests can pin "today".
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Test use only.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time { return f.Instant }

// FixedAt pins the clock to the given instant.
func FixedAt(t time.Time) Fixed { return Fixed{Instant: t} }

// Today truncates the clock's current instant to a UTC calendar date
// (midnight UTC). Maturity comparisons and the sweeper's cutoff both use
// this so they agree on what "today" means.
func Today(c Clock) time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// DateOf truncates an arbitrary instant to a UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
