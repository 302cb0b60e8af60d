// Package dsp holds the audio post-processing settings attached to a queue
// request and translates them into an ffmpeg filter chain. Transforms that
// the playback engine can apply on its own (a plain positive tempo change)
// are deferred to playback via [PlayerSettings] instead of re-encoding.
package dsp

import (
	"fmt"
	"math"
	"strings"
)

// Settings is the flat post-processing record produced by the request parser.
// The zero value is not valid; use [DefaultSettings].
type Settings struct {
	// PitchShift is the pitch adjustment in semitones, in [-24, 24].
	PitchShift float64

	// TempoScale is the playback speed multiplier. Its absolute value is in
	// [1/4, 4]; a negative value plays the track reversed.
	TempoScale float64

	// Echo, Metal and Reverb select canned aecho presets.
	Echo   bool
	Metal  bool
	Reverb bool

	// Loop repeats the track until skipped.
	Loop bool
}

// PlayerSettings carries the transforms applied by the playback engine
// rather than by ffmpeg. Currently that is only the playback rate.
type PlayerSettings struct {
	TempoScale float64
}

// DefaultSettings returns the identity transform.
func DefaultSettings() Settings {
	return Settings{TempoScale: 1}
}

// DefaultPlayerSettings returns the identity playback settings.
func DefaultPlayerSettings() PlayerSettings {
	return PlayerSettings{TempoScale: 1}
}

// PitchScale returns the frequency ratio corresponding to PitchShift
// semitones.
func (s Settings) PitchScale() float64 {
	return math.Exp2(s.PitchShift / 12)
}

// Transforms reports whether any audio transform is requested. Loop is not a
// transform.
func (s Settings) Transforms() bool {
	return s.PitchShift != 0 || s.TempoScale != 1 || s.Echo || s.Metal || s.Reverb
}

// Active reports whether the settings request anything at all, looping
// included. Inactive settings are omitted from status messages.
func (s Settings) Active() bool {
	return s.Transforms() || s.Loop
}

// RequiresFFmpeg reports whether the track must pass through ffmpeg before
// playback. A plain positive tempo change is handled by the player's rate
// control and does not require re-encoding; everything else does.
func (s Settings) RequiresFFmpeg() bool {
	return s.PitchShift != 0 || s.TempoScale < 0 || s.Echo || s.Metal || s.Reverb
}

// PlayerFallback returns the playback-engine settings for a track that did
// not go through an atempo filter: the tempo (absolute value, since reversal
// is handled by areverse) is applied at play time.
func (s Settings) PlayerFallback() PlayerSettings {
	return PlayerSettings{TempoScale: math.Abs(s.TempoScale)}
}

// String renders the settings as a transform chain, e.g.
// "In → Pitch-Shift = 2.00 → Speed = 1.50 → Out". Inactive settings render
// as "In → Out".
func (s Settings) String() string {
	var b strings.Builder
	b.WriteString("In")
	if s.PitchShift != 0 {
		fmt.Fprintf(&b, " → Pitch-Shift = %.2f", s.PitchShift)
	}
	if s.TempoScale != 1 {
		fmt.Fprintf(&b, " → Speed = %.2f", s.TempoScale)
	}
	if s.Echo {
		b.WriteString(" → Echo")
	}
	if s.Metal {
		b.WriteString(" → Metal")
	}
	if s.Reverb {
		b.WriteString(" → Reverb")
	}
	if s.Loop {
		b.WriteString(" → Loop")
	}
	b.WriteString(" → Out")
	return b.String()
}
