// Package quiet implements the quiet-hours predicate: a daily window during
// which the main playback lane is drained and nothing new plays. Weeknights
// and weekends use different start times; the weekend rule is indexed by the
// day nine hours ahead so that the small hours of Saturday still count as
// Friday night.
package quiet

import (
	"math"
	"time"
)

// Schedule holds the quiet-hours window in fractional hours of local time.
type Schedule struct {
	// NormalStart is the weeknight start hour.
	NormalStart float64

	// WeekendStart is the weekend-night start hour.
	WeekendStart float64

	// End is the end hour for both schedules.
	End float64

	// Now overrides the clock for tests. Nil means time.Now.
	Now func() time.Time
}

// Active reports whether the current local time falls inside the window.
func (s Schedule) Active() bool {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	t := now()

	wd := t.Add(9 * time.Hour).Weekday()
	weekend := wd == time.Saturday || wd == time.Sunday

	start := s.NormalStart
	if weekend {
		start = s.WeekendStart
	}

	hour := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	elapsed := mod24(hour - start)
	return elapsed <= mod24(s.End-start)
}

// mod24 wraps v into [0, 24).
func mod24(v float64) float64 {
	m := math.Mod(v, 24)
	if m < 0 {
		m += 24
	}
	return m
}
