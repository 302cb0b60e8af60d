package quiet

import (
	"testing"
	"time"
)

// clockAt returns a Now func pinned to the given weekday and fractional hour.
// The reference week starts Monday 2026-01-05.
func clockAt(day time.Weekday, hour float64) func() time.Time {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.Local) // a Monday
	offset := (int(day) - int(time.Monday) + 7) % 7
	t := base.AddDate(0, 0, offset).Add(time.Duration(hour * float64(time.Hour)))
	return func() time.Time { return t }
}

func TestActiveWeeknight(t *testing.T) {
	s := Schedule{NormalStart: 23, WeekendStart: 1, End: 8}

	tests := []struct {
		name string
		day  time.Weekday
		hour float64
		want bool
	}{
		{"before start", time.Tuesday, 22.5, false},
		{"at start", time.Tuesday, 23, true},
		{"after midnight", time.Wednesday, 3, true},
		{"at end", time.Wednesday, 8, true},
		{"after end", time.Wednesday, 8.5, false},
		{"midday", time.Tuesday, 13, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Now = clockAt(tt.day, tt.hour)
			if got := s.Active(); got != tt.want {
				t.Errorf("Active() on %v at %.1fh = %v, want %v", tt.day, tt.hour, got, tt.want)
			}
		})
	}
}

func TestActiveWeekendIndexedNineHoursAhead(t *testing.T) {
	s := Schedule{NormalStart: 23, WeekendStart: 1, End: 8}

	// Friday 23:30 + 9h lands on Saturday, so the weekend start (01:00)
	// applies and Friday 23:30 is not yet quiet.
	s.Now = clockAt(time.Friday, 23.5)
	if s.Active() {
		t.Error("Friday 23:30 should use the weekend schedule and not be quiet")
	}

	// Saturday 01:30 is past the weekend start.
	s.Now = clockAt(time.Saturday, 1.5)
	if !s.Active() {
		t.Error("Saturday 01:30 should be quiet")
	}

	// Sunday 23:30 + 9h lands on Monday: weeknight schedule, already quiet.
	s.Now = clockAt(time.Sunday, 23.5)
	if !s.Active() {
		t.Error("Sunday 23:30 should use the weeknight schedule and be quiet")
	}
}
