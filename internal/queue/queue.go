// Package queue implements the audio queue engine: a main playback lane fed
// by a FIFO of downloaded elements, a parallel lane for short sound effects,
// and the skip / volume / quiet-hours operations on top. All exported
// operations are safe to call concurrently.
package queue

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dabneyhovse/further/internal/dsp"
	"github.com/dabneyhovse/further/internal/player"
	"github.com/dabneyhovse/further/internal/resource"
	"github.com/dabneyhovse/further/internal/source"
)

// State is the queue's user-facing condition, derived on demand from the
// player state and the queue contents.
type State int

const (
	StateLoading State = iota
	StateEmpty
	StatePaused
	StatePlaying
	StateUnknownError
	StatePlayerError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StatePlayerError:
		return "player error"
	default:
		return "unknown error"
	}
}

// Config wires a Queue to its players and tunables. The funcs re-read live
// settings on every use.
type Config struct {
	MainPlayer player.Player
	SFXPlayer  player.Player

	// Refresh is the playback-loop poll interval.
	Refresh func() time.Duration

	// Quiet reports whether quiet hours are in effect.
	Quiet func() bool

	// MaxAbsoluteVolume and HundredPercentValue mirror the settings knobs
	// bounding and scaling the logical volume.
	MaxAbsoluteVolume   func() float64
	HundredPercentValue func() float64

	// FFmpegBin locates the filter executable for download processing.
	FFmpegBin string
}

// Queue is the audio queue engine. Create with New, then run the playback
// loops with Run.
type Queue struct {
	cfg Config

	mu         sync.Mutex
	pending    []*Element
	sfxPending []*Element
	current    *Element
	sfxCurrent *Element
	nextID     int64
	volumePct  float64

	wake    chan struct{}
	sfxWake chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New returns a stopped queue. The download tasks of added elements run
// until Close even if Run was never started.
func New(cfg Config) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:        cfg,
		wake:       make(chan struct{}, 1),
		sfxWake:    make(chan struct{}, 1),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Run drives both playback lanes until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return q.playMain(ctx) })
	g.Go(func() error { return q.playSFX(ctx) })
	return g.Wait()
}

// Close cancels every in-flight download.
func (q *Queue) Close() {
	q.baseCancel()
}

// Add enqueues a new element for src with the given transform settings and
// scratch directory, assigns its id, and starts its download task. status
// receives every lifecycle change.
func (q *Queue) Add(src source.Source, settings dsp.Settings, res *resource.Resource, status StatusFunc) *Element {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	e := newElement(id, src, settings, res, status)
	dlCtx, cancel := context.WithCancel(q.baseCtx)
	e.cancelDownload = cancel
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	go e.download(dlCtx, q.cfg.FFmpegBin)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return e
}

// Skip skips the element the main lane is on. It returns false if nothing is
// current.
func (q *Queue) Skip(by string) bool {
	q.mu.Lock()
	e := q.current
	q.mu.Unlock()
	if e == nil {
		return false
	}
	return e.Skip(by)
}

// SkipAll skips every unskipped element, walking the pending queue in
// reverse before taking out the current element so parallel skips never race
// on the queue front.
func (q *Queue) SkipAll(by string) {
	q.mu.Lock()
	targets := make([]*Element, 0, len(q.pending)+1)
	for i := len(q.pending) - 1; i >= 0; i-- {
		targets = append(targets, q.pending[i])
	}
	if q.current != nil {
		targets = append(targets, q.current)
	}
	q.mu.Unlock()

	var g errgroup.Group
	for _, e := range targets {
		g.Go(func() error {
			e.Skip(by)
			return nil
		})
	}
	_ = g.Wait()
}

// SkipSpecific skips the element with the given id, whether it is current or
// still pending. It returns false if no live element has that id.
func (q *Queue) SkipSpecific(by string, id int64) bool {
	q.mu.Lock()
	var target *Element
	if q.current != nil && q.current.id == id {
		target = q.current
	} else {
		for _, e := range q.pending {
			if e.id == id {
				target = e
				break
			}
		}
	}
	q.mu.Unlock()
	if target == nil {
		return false
	}
	return target.Skip(by)
}

// Pause pauses the main lane.
func (q *Queue) Pause() error {
	return q.cfg.MainPlayer.SetPause(true)
}

// Resume resumes the main lane.
func (q *Queue) Resume() error {
	return q.cfg.MainPlayer.SetPause(false)
}

// ErrVolumeOutOfRange rejects a set_volume outside the absolute bound.
type ErrVolumeOutOfRange struct {
	Percent float64
	MaxPct  float64
}

func (e *ErrVolumeOutOfRange) Error() string {
	return fmt.Sprintf("queue: volume %.0f%% outside [0, %.0f%%]", e.Percent, e.MaxPct)
}

// maxPercent is the largest settable logical volume under the current
// settings.
func (q *Queue) maxPercent() float64 {
	ratio := q.cfg.HundredPercentValue()
	if ratio <= 0 {
		return 0
	}
	return q.cfg.MaxAbsoluteVolume() * 100 / ratio
}

// SetVolume sets the logical volume in percent on both lanes. Values outside
// [0, max] are rejected and leave both players unchanged.
func (q *Queue) SetVolume(percent float64) error {
	maxPct := q.maxPercent()
	if percent < 0 || percent > maxPct || math.IsNaN(percent) {
		return &ErrVolumeOutOfRange{Percent: percent, MaxPct: maxPct}
	}
	absolute := int(math.Round(percent * q.cfg.HundredPercentValue()))
	if err := q.cfg.MainPlayer.SetVolume(absolute); err != nil {
		return err
	}
	if err := q.cfg.SFXPlayer.SetVolume(absolute); err != nil {
		return err
	}
	q.mu.Lock()
	q.volumePct = percent
	q.mu.Unlock()
	return nil
}

// SetClampedVolume clamps percent into the settable range and applies it,
// returning the volume actually set. Used to restore the persisted volume at
// startup after the bound may have tightened.
func (q *Queue) SetClampedVolume(percent float64) (float64, error) {
	if maxPct := q.maxPercent(); percent > maxPct {
		percent = maxPct
	}
	if percent < 0 || math.IsNaN(percent) {
		percent = 0
	}
	return percent, q.SetVolume(percent)
}

// Volume returns the logical volume in percent.
func (q *Queue) Volume() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.volumePct
}

// EnqueueSFX appends a sound effect to the SFX lane. The source must be
// local: its download is performed inline and must not block.
func (q *Queue) EnqueueSFX(src source.Source) error {
	path, err := src.Download(q.baseCtx, nil)
	if err != nil {
		return fmt.Errorf("queue: sfx: %w", err)
	}

	q.mu.Lock()
	id := q.nextID
	q.nextID++
	e := newElement(id, src, dsp.DefaultSettings(), nil, nil)
	e.resolvePath(path, true)
	close(e.downloadDone)
	q.sfxPending = append(q.sfxPending, e)
	q.mu.Unlock()

	select {
	case q.sfxWake <- struct{}{}:
	default:
	}
	return nil
}

// State derives the queue's user-facing condition.
func (q *Queue) State() State {
	ps := q.cfg.MainPlayer.State()

	q.mu.Lock()
	queued := len(q.pending) > 0
	currentLive := q.current != nil && !q.current.Skipped()
	q.mu.Unlock()

	settled := ps == player.StateEnded || ps == player.StateStopped || ps == player.StateIdle

	switch {
	case ps == player.StateError:
		return StatePlayerError
	case ps == player.StatePlaying && currentLive:
		return StatePlaying
	case ps == player.StatePaused && currentLive:
		return StatePaused
	case settled && !queued && !currentLive:
		return StateEmpty
	case queued && !currentLive:
		return StateLoading
	case settled && currentLive:
		return StateLoading
	case (ps == player.StateOpening || ps == player.StateBuffering) && currentLive:
		return StateLoading
	default:
		return StateUnknownError
	}
}

// Entry is one row of a queue snapshot.
type Entry struct {
	ID      int64
	Title   string
	URL     string
	Length  source.Duration
	Current bool

	// Elapsed is the wall-clock play time already consumed. Zero for
	// pending entries.
	Elapsed source.Duration
}

// Snapshot lists the unskipped elements in play order: the current element
// first, then the pending queue.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]Entry, 0, len(q.pending)+1)
	if q.current != nil && !q.current.Skipped() {
		entry := entryFor(q.current, true)
		if q.current.Active() {
			if t, err := q.cfg.MainPlayer.Time(); err == nil {
				rate := q.current.PlayerSettings().TempoScale
				if rate <= 0 {
					rate = 1
				}
				entry.Elapsed = source.Seconds(t.Seconds() / rate)
			}
		}
		entries = append(entries, entry)
	}
	for _, e := range q.pending {
		if e.Skipped() {
			continue
		}
		entries = append(entries, entryFor(e, false))
	}
	return entries
}

func entryFor(e *Element, current bool) Entry {
	return Entry{
		ID:      e.id,
		Title:   e.src.Title(),
		URL:     e.src.URL(),
		Length:  e.Length(),
		Current: current,
	}
}

// dequeue pops the next pending element, blocking until one arrives or ctx
// ends. Skipped elements are returned too; the caller drops them. A non-nil
// claim runs under the queue lock while the element is popped, so the element
// is never in neither the pending list nor the claimed slot; SkipAll relies
// on that to see every live element.
func (q *Queue) dequeue(ctx context.Context, pendingOf func() *[]*Element, wake chan struct{}, claim func(*Element)) *Element {
	for {
		q.mu.Lock()
		pending := pendingOf()
		if len(*pending) > 0 {
			e := (*pending)[0]
			*pending = (*pending)[1:]
			if claim != nil {
				claim(e)
			}
			q.mu.Unlock()
			return e
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		}
	}
}

func (q *Queue) setCurrent(e *Element) {
	q.mu.Lock()
	q.current = e
	q.mu.Unlock()
}

// sleep waits one refresh period or until ctx ends.
func (q *Queue) sleep(ctx context.Context) bool {
	t := time.NewTimer(q.cfg.Refresh())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// playMain is the main-lane playback loop: dequeue, await the download,
// play, poll until done, repeat on loop elements, finish.
func (q *Queue) playMain(ctx context.Context) error {
	p := q.cfg.MainPlayer
	for {
		e := q.dequeue(ctx, func() *[]*Element { return &q.pending }, q.wake,
			func(e *Element) { q.current = e })
		if e == nil {
			return ctx.Err()
		}
		if e.Skipped() {
			q.setCurrent(nil)
			continue
		}

		path, ok := e.AwaitPath(ctx)
		if !ok {
			if ctx.Err() != nil {
				q.setCurrent(nil)
				return ctx.Err()
			}
			q.setCurrent(nil)
			continue
		}
		if q.cfg.Quiet() {
			q.SkipAll("quiet hours")
			q.setCurrent(nil)
			continue
		}

		for {
			if err := p.Load(path, e.PlayerSettings().TempoScale); err != nil {
				e.fail(err)
				break
			}
			e.status(e, Status{Stage: StagePlaying, Skippable: true})
			if err := p.Play(); err != nil {
				e.fail(err)
				break
			}
			e.setActive(true)

			// A player error does not halt the loop: the element drains and
			// the next one plays.
			for s := p.State(); !playbackSettled(s) && s != player.StateError &&
				!e.Skipped() && !q.cfg.Quiet(); s = p.State() {
				if !q.sleep(ctx) {
					q.setCurrent(nil)
					return ctx.Err()
				}
			}
			e.setActive(false)

			if q.cfg.Quiet() {
				q.SkipAll("quiet hours")
			}
			if !playbackSettled(p.State()) {
				_ = p.Stop()
			}
			if !e.DSP().Loop || e.Skipped() {
				break
			}
		}

		e.finish()
		q.setCurrent(nil)
	}
}

// playSFX is the effects-lane loop. It never skips the queue; during quiet
// hours effects are silently dropped.
func (q *Queue) playSFX(ctx context.Context) error {
	p := q.cfg.SFXPlayer
	for {
		e := q.dequeue(ctx, func() *[]*Element { return &q.sfxPending }, q.sfxWake, nil)
		if e == nil {
			return ctx.Err()
		}
		if e.Skipped() || q.cfg.Quiet() {
			continue
		}

		path, ok := e.AwaitPath(ctx)
		if !ok {
			continue
		}

		q.mu.Lock()
		q.sfxCurrent = e
		q.mu.Unlock()

		if err := p.Load(path, 1); err == nil && p.Play() == nil {
			e.setActive(true)
			for s := p.State(); !playbackSettled(s) && s != player.StateError &&
				!e.Skipped() && !q.cfg.Quiet(); s = p.State() {
				if !q.sleep(ctx) {
					return ctx.Err()
				}
			}
			e.setActive(false)
			if !playbackSettled(p.State()) {
				_ = p.Stop()
			}
		}

		q.mu.Lock()
		q.sfxCurrent = nil
		q.mu.Unlock()
	}
}

// playbackSettled reports whether the lane has nothing left to play.
func playbackSettled(s player.State) bool {
	return s == player.StateEnded || s == player.StateStopped
}
