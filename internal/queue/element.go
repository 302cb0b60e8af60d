package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dabneyhovse/further/internal/dsp"
	"github.com/dabneyhovse/further/internal/resource"
	"github.com/dabneyhovse/further/internal/source"
)

// Stage is the element lifecycle position reported to status callbacks.
type Stage int

const (
	StageDownloading Stage = iota
	StageProcessing
	StageQueued
	StagePlaying
	StageFinished
	StageSkipped
	StageFailed
)

// String returns the human-readable name of the stage.
func (s Stage) String() string {
	switch s {
	case StageDownloading:
		return "Downloading"
	case StageProcessing:
		return "Processing"
	case StageQueued:
		return "Queued"
	case StagePlaying:
		return "Playing"
	case StageFinished:
		return "Finished"
	case StageSkipped:
		return "Skipped"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the stage ends the element's life.
func (s Stage) Terminal() bool {
	return s == StageFinished || s == StageSkipped || s == StageFailed
}

// Status is one lifecycle notification.
type Status struct {
	Stage Stage

	// Detail carries extra context, e.g. who skipped the element or why a
	// download failed.
	Detail string

	// Skippable reports whether a skip control should be offered alongside
	// this status.
	Skippable bool
}

// StatusFunc receives every status change of one element. It runs on the
// queue's goroutines and must not block indefinitely.
type StatusFunc func(e *Element, st Status)

// Element is one unit of queued work: a source, its transform settings, and
// the scratch directory the download lands in.
type Element struct {
	id     int64
	src    source.Source
	dsp    dsp.Settings
	res    *resource.Resource
	status StatusFunc

	// path promise: resolved exactly once, to a playable path or to nothing
	// when the download was cancelled or failed.
	resolved chan struct{}
	resolve  sync.Once
	path     string
	pathOK   bool

	cancelDownload context.CancelFunc
	downloadDone   chan struct{}

	mu       sync.Mutex
	player   dsp.PlayerSettings
	skipped  bool
	active   bool
	terminal bool
}

func newElement(id int64, src source.Source, settings dsp.Settings, res *resource.Resource, status StatusFunc) *Element {
	if status == nil {
		status = func(*Element, Status) {}
	}
	return &Element{
		id:           id,
		src:          src,
		dsp:          settings,
		res:          res,
		status:       status,
		resolved:     make(chan struct{}),
		downloadDone: make(chan struct{}),
		player:       dsp.DefaultPlayerSettings(),
	}
}

// ID is the queue-assigned monotonic identifier, used as the skip-control
// callback payload.
func (e *Element) ID() int64 { return e.id }

// Source returns the element's audio source.
func (e *Element) Source() source.Source { return e.src }

// DSP returns the element's transform settings.
func (e *Element) DSP() dsp.Settings { return e.dsp }

// Skipped reports whether the element has been skipped. The flag is
// monotonic.
func (e *Element) Skipped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skipped
}

// Active reports whether the element is currently feeding a player lane.
func (e *Element) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Element) setActive(v bool) {
	e.mu.Lock()
	e.active = v
	e.mu.Unlock()
}

// PlayerSettings returns the playback-engine transforms recorded by the
// download task.
func (e *Element) PlayerSettings() dsp.PlayerSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player
}

// Length is the element's playing time: the source duration scaled by the
// playback rate, or unbounded for a looping element.
func (e *Element) Length() source.Duration {
	if e.dsp.Loop {
		return source.Infinite()
	}
	rate := e.dsp.TempoScale
	if rate < 0 {
		rate = -rate
	}
	return e.src.Duration().Scale(rate)
}

// resolvePath fulfils the path promise. Only the first call wins.
func (e *Element) resolvePath(path string, ok bool) {
	e.resolve.Do(func() {
		e.path = path
		e.pathOK = ok
		close(e.resolved)
	})
}

// AwaitPath blocks until the path promise resolves. ok is false when the
// download was cancelled or failed, or ctx ended first.
func (e *Element) AwaitPath(ctx context.Context) (path string, ok bool) {
	select {
	case <-ctx.Done():
		return "", false
	case <-e.resolved:
		return e.path, e.pathOK
	}
}

// markTerminal flips the element into its terminal state. It returns false
// if the element was already terminal, guaranteeing exactly one terminal
// status per element.
func (e *Element) markTerminal(skip bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return false
	}
	e.terminal = true
	if skip {
		e.skipped = true
	}
	e.active = false
	return true
}

// Skip marks the element skipped, cancels its download, releases its
// resource, and emits the terminal status. It returns false if the element
// had already reached a terminal state.
func (e *Element) Skip(by string) bool {
	if !e.markTerminal(true) {
		return false
	}
	if e.cancelDownload != nil {
		e.cancelDownload()
		<-e.downloadDone
	}
	e.closeResource()
	e.status(e, Status{Stage: StageSkipped, Detail: by})
	return true
}

// finish releases the resource and emits the Finished status. A skipped
// element is left alone: Skip already emitted its terminal status.
func (e *Element) finish() {
	if !e.markTerminal(false) {
		return
	}
	e.closeResource()
	e.status(e, Status{Stage: StageFinished})
}

// fail releases the resource and emits the Failed status.
func (e *Element) fail(err error) {
	if !e.markTerminal(true) {
		return
	}
	e.closeResource()
	e.status(e, Status{Stage: StageFailed, Detail: err.Error()})
}

func (e *Element) closeResource() {
	if e.res == nil {
		return
	}
	if err := e.res.Close(); err != nil && !errors.Is(err, resource.ErrClosed) {
		// Nothing useful to do; the scratch root is wiped on restart anyway.
		_ = err
	}
}

// download runs the element's download pipeline: fetch the source, run the
// filter pass when needed, then resolve the path promise and report Queued.
// ffmpegBin locates the filter executable.
func (e *Element) download(ctx context.Context, ffmpegBin string) {
	defer close(e.downloadDone)

	e.status(e, Status{Stage: StageDownloading, Skippable: true})

	path, err := e.src.Download(ctx, e.res)
	if err != nil {
		e.resolvePath("", false)
		if ctx.Err() == nil {
			e.fail(fmt.Errorf("download: %w", err))
		}
		return
	}

	if e.dsp.RequiresFFmpeg() {
		e.status(e, Status{Stage: StageProcessing, Skippable: true})
		dest := filepath.Join(e.res.Path(), "processed"+filepath.Ext(path))
		player, err := dsp.Process(ctx, ffmpegBin, path, dest, e.dsp)
		if err != nil {
			e.resolvePath("", false)
			if ctx.Err() == nil {
				e.fail(fmt.Errorf("filter pass: %w", err))
			}
			return
		}
		e.mu.Lock()
		e.player = player
		e.mu.Unlock()
		path = dest
	} else {
		e.mu.Lock()
		e.player = e.dsp.PlayerFallback()
		e.mu.Unlock()
	}

	if ctx.Err() != nil {
		e.resolvePath("", false)
		return
	}
	e.status(e, Status{Stage: StageQueued, Skippable: true})
	e.resolvePath(path, true)
}
