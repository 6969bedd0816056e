package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze "now" via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for request date ranges. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current UTC time of the package clock.
func Now() time.Time { return clock.Now().UTC() }

// LookbackMonths is how far back a request's date range reaches.
const LookbackMonths = 6

// DateRange is the half-open acquisition window [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange returns the window ending now and starting LookbackMonths earlier.
func NewDateRange() DateRange {
	end := Now()
	return DateRange{Start: end.AddDate(0, -LookbackMonths, 0), End: end}
}

// StartMillis is Start as epoch milliseconds.
func (d DateRange) StartMillis() float64 { return float64(d.Start.UnixMilli()) }

// EndMillis is End as epoch milliseconds.
func (d DateRange) EndMillis() float64 { return float64(d.End.UnixMilli()) }
