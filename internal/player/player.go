// Package player abstracts the audio playback engine behind a small
// polling-friendly interface. The queue engine never blocks on the player:
// it loads a file, starts playback, and polls [Player.State] at its refresh
// period.
package player

import "time"

// State is the player engine's coarse playback state.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateBuffering
	StatePlaying
	StatePaused
	StateStopped
	StateEnded
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Live reports whether the state is one where media is loaded and playback
// has neither finished nor failed.
func (s State) Live() bool {
	switch s {
	case StateOpening, StateBuffering, StatePlaying, StatePaused:
		return true
	}
	return false
}

// Player is one playback lane. Implementations are safe for concurrent use.
type Player interface {
	// Load replaces the current media with the file at path. Rate scales
	// playback speed; 1 is natural speed.
	Load(path string, rate float64) error

	// Play starts or restarts playback of the loaded media.
	Play() error

	// Stop halts playback and discards position.
	Stop() error

	// SetPause pauses (true) or resumes (false) playback.
	SetPause(paused bool) error

	// State returns the current playback state.
	State() State

	// Time returns the elapsed media time of the loaded playback.
	Time() (time.Duration, error)

	// SetVolume sets the absolute engine volume in percent units
	// (100 = nominal full volume, >100 = software amplification).
	SetVolume(absolute int) error

	// Volume returns the absolute engine volume.
	Volume() (int, error)

	// Close releases the underlying engine resources.
	Close() error
}
