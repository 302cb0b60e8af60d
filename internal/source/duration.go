package source

import (
	"fmt"
	"math"
	"time"
)

// Duration is a track or queue length that may be unbounded (a looping
// element) or unknown (metadata missing). Arithmetic saturates: anything
// plus Infinite is Infinite, anything involving Unknown is Unknown.
type Duration struct {
	seconds float64
}

// Finite returns a known, bounded duration.
func Finite(d time.Duration) Duration {
	return Duration{seconds: d.Seconds()}
}

// Seconds returns a known, bounded duration from fractional seconds.
func Seconds(s float64) Duration {
	return Duration{seconds: s}
}

// Infinite returns the unbounded duration.
func Infinite() Duration {
	return Duration{seconds: math.Inf(1)}
}

// Unknown returns the missing-metadata duration.
func Unknown() Duration {
	return Duration{seconds: math.NaN()}
}

// IsInfinite reports whether d is unbounded.
func (d Duration) IsInfinite() bool { return math.IsInf(d.seconds, 1) }

// IsUnknown reports whether d is missing.
func (d Duration) IsUnknown() bool { return math.IsNaN(d.seconds) }

// Seconds returns the length in fractional seconds. Infinite and unknown
// values return +Inf and NaN respectively.
func (d Duration) Seconds() float64 { return d.seconds }

// Add sums two durations with saturation.
func (d Duration) Add(other Duration) Duration {
	return Duration{seconds: d.seconds + other.seconds}
}

// Scale divides the duration by a playback rate: a track played at rate 2
// takes half as long. A non-positive rate yields Unknown.
func (d Duration) Scale(rate float64) Duration {
	if rate <= 0 {
		return Unknown()
	}
	return Duration{seconds: d.seconds / rate}
}

// String renders h:mm:ss, or m:ss under an hour. Infinite renders as the
// infinity sign, unknown as a question mark.
func (d Duration) String() string {
	switch {
	case d.IsInfinite():
		return "∞"
	case d.IsUnknown():
		return "?"
	}
	total := int(math.Round(d.seconds))
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
