package player

import (
	"fmt"
	"sync"
	"time"

	vlc "github.com/adrg/libvlc-go/v3"
)

// Engine owns the process-wide libvlc instance. Create one per process and
// claim a lane per playback channel.
type Engine struct {
	mu     sync.Mutex
	closed bool
}

// NewEngine initialises libvlc without video output.
func NewEngine() (*Engine, error) {
	if err := vlc.Init("--no-video", "--quiet"); err != nil {
		return nil, fmt.Errorf("player: init libvlc: %w", err)
	}
	return &Engine{}, nil
}

// NewLane creates an independent playback channel.
func (e *Engine) NewLane() (Player, error) {
	p, err := vlc.NewPlayer()
	if err != nil {
		return nil, fmt.Errorf("player: create lane: %w", err)
	}
	return &vlcLane{player: p}, nil
}

// Close releases libvlc. All lanes must be closed first.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := vlc.Release(); err != nil {
		return fmt.Errorf("player: release libvlc: %w", err)
	}
	return nil
}

// vlcLane adapts one libvlc media player to the [Player] interface.
type vlcLane struct {
	mu     sync.Mutex
	player *vlc.Player
	media  *vlc.Media
}

func (l *vlcLane) Load(path string, rate float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.media != nil {
		l.media.Release()
		l.media = nil
	}
	media, err := l.player.LoadMediaFromPath(path)
	if err != nil {
		return fmt.Errorf("player: load %s: %w", path, err)
	}
	if rate != 1 {
		// Per-media option so the rate resets naturally on the next load.
		if err := media.AddOptions(fmt.Sprintf(":rate=%g", rate)); err != nil {
			media.Release()
			return fmt.Errorf("player: set rate %g: %w", rate, err)
		}
	}
	l.media = media
	return nil
}

func (l *vlcLane) Play() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.player.Play(); err != nil {
		return fmt.Errorf("player: play: %w", err)
	}
	return nil
}

func (l *vlcLane) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.player.Stop(); err != nil {
		return fmt.Errorf("player: stop: %w", err)
	}
	return nil
}

func (l *vlcLane) SetPause(paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.player.SetPause(paused); err != nil {
		return fmt.Errorf("player: set pause: %w", err)
	}
	return nil
}

func (l *vlcLane) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	ms, err := l.player.MediaState()
	if err != nil {
		return StateError
	}
	switch ms {
	case vlc.MediaNothingSpecial:
		return StateIdle
	case vlc.MediaOpening:
		return StateOpening
	case vlc.MediaBuffering:
		return StateBuffering
	case vlc.MediaPlaying:
		return StatePlaying
	case vlc.MediaPaused:
		return StatePaused
	case vlc.MediaStopped:
		return StateStopped
	case vlc.MediaEnded:
		return StateEnded
	default:
		return StateError
	}
}

func (l *vlcLane) Time() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ms, err := l.player.MediaTime()
	if err != nil {
		return 0, fmt.Errorf("player: media time: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (l *vlcLane) SetVolume(absolute int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.player.SetVolume(absolute); err != nil {
		return fmt.Errorf("player: set volume %d: %w", absolute, err)
	}
	return nil
}

func (l *vlcLane) Volume() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, err := l.player.Volume()
	if err != nil {
		return 0, fmt.Errorf("player: volume: %w", err)
	}
	return v, nil
}

func (l *vlcLane) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.media != nil {
		l.media.Release()
		l.media = nil
	}
	if err := l.player.Release(); err != nil {
		return fmt.Errorf("player: release lane: %w", err)
	}
	return nil
}
