// Package worker is the playback process: it owns the jukebox bot, the queue
// engine, and the VLC players, and reports its fate to the supervisor over
// the pipe pair it was spawned with.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/dabneyhovse/further/internal/config"
	"github.com/dabneyhovse/further/internal/health"
	"github.com/dabneyhovse/further/internal/ipc"
	"github.com/dabneyhovse/further/internal/observe"
	"github.com/dabneyhovse/further/internal/player"
	"github.com/dabneyhovse/further/internal/queue"
	"github.com/dabneyhovse/further/internal/resource"
	"github.com/dabneyhovse/further/internal/retry"
	"github.com/dabneyhovse/further/internal/settings"
	"github.com/dabneyhovse/further/internal/source"
	"github.com/dabneyhovse/further/internal/telegram"
)

// statusTimeout bounds one status-message send or edit.
const statusTimeout = 30 * time.Second

// drain tuning for a graceful shutdown: the worker polls for outstanding
// handlers drainPolls times before giving up and reporting a threading
// failure.
const (
	drainPolls    = 10
	drainInterval = 500 * time.Millisecond
)

// ErrForced is returned by Run after a forced shutdown order; main exits
// non-zero so the supervisor sees an abnormal death.
var ErrForced = errors.New("worker: forced shutdown")

// App is the assembled worker process.
type App struct {
	cfg       *config.Config
	store     *settings.Store
	bot       *telegram.Bot
	q         *queue.Queue
	engine    *player.Engine
	resources *resource.Handler
	fetcher   *source.Fetcher
	endpoint  *ipc.WorkerEndpoint
	metrics   *observe.Metrics
	router    *telegram.Router

	// inFlight counts dispatched update handlers still running, for the
	// shutdown drain.
	inFlight atomic.Int64
}

// New assembles the worker from config and the supervisor pipe endpoint.
// endpoint may be nil when running without a supervisor.
func New(cfg *config.Config, endpoint *ipc.WorkerEndpoint) (*App, error) {
	store, err := settings.Open(cfg.Paths.WorkerSettings)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		store:    store,
		endpoint: endpoint,
		metrics:  observe.DefaultMetrics(),
		router:   telegram.NewRouter(),
		fetcher:  source.NewFetcher(cfg.Tools.YtDlp),
	}

	token, err := readToken(store.Get().FurtherBotTokenPath)
	if err != nil {
		return nil, err
	}
	a.bot, err = telegram.Connect(token, a.retryPolicy)
	if err != nil {
		return nil, err
	}
	slog.Info("jukebox bot connected", "username", a.bot.UserName)

	a.resources, err = resource.NewHandler(cfg.Paths.ResourceDir)
	if err != nil {
		return nil, err
	}

	a.engine, err = player.NewEngine()
	if err != nil {
		return nil, err
	}
	main, err := a.engine.NewLane()
	if err != nil {
		return nil, err
	}
	sfx, err := a.engine.NewLane()
	if err != nil {
		return nil, err
	}

	a.q = queue.New(queue.Config{
		MainPlayer: main,
		SFXPlayer:  sfx,
		Refresh: func() time.Duration {
			return time.Duration(store.Get().AsyncSleepRefreshRate * float64(time.Second))
		},
		Quiet:               a.quietNow,
		MaxAbsoluteVolume:   func() float64 { return store.Get().MaxAbsoluteVolume },
		HundredPercentValue: func() float64 { return store.Get().HundredPercentVolumeValue },
		FFmpegBin:           cfg.Tools.FFmpeg,
	})
	if restored, err := a.q.SetClampedVolume(store.Get().DigitalVolume); err != nil {
		slog.Warn("volume restore failed", "err", err)
	} else {
		slog.Info("volume restored", "percent", restored)
	}

	a.registerCommands()
	return a, nil
}

// retryPolicy builds the outbound retry policy from live settings. Flood
// control events are counted and forwarded to the supervisor so it can pin a
// notice in the chat.
func (a *App) retryPolicy() retry.Policy {
	v := a.store.Get()
	return retry.Policy{
		MaxFloodRetries:   v.MaxTelegramFloodControlRetries,
		MaxTimeoutRetries: v.MaxTelegramTimeOutRetries,
		FloodBuffer:       time.Duration(v.FloodControlBufferTime * float64(time.Second)),
		TimeoutBuffer:     time.Duration(v.TelegramTimeOutBufferTime * float64(time.Second)),
		Classify:          telegram.Classify,
		OnRetry: func(kind retry.Kind) {
			a.metrics.OutboundRetries.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("kind", kind.String())))
		},
		OnFloodControl: func(delay time.Duration) {
			a.metrics.FloodControlEvents.Add(context.Background(), 1)
			if a.endpoint == nil {
				return
			}
			if err := a.endpoint.Send(ipc.FloodControlIssues{DelaySeconds: delay.Seconds()}); err != nil {
				slog.Warn("flood control report failed", "err", err)
			}
		},
	}
}

// Run drives the worker until ctx is cancelled or the supervisor orders a
// shutdown. A clean unwind sends CleanShutdown up the pipe; a top-level
// failure sends ExceptionShutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.engine.Close()
	defer a.q.Close()

	var forced atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.q.Run(gctx) })
	g.Go(func() error {
		return observe.Serve(gctx, a.cfg.Server.MetricsAddr, health.New(
			health.Checker{Name: "settings", Check: func(context.Context) error {
				_, err := os.Stat(a.cfg.Paths.WorkerSettings)
				return err
			}},
		))
	})
	if a.endpoint != nil {
		g.Go(func() error {
			err := a.endpoint.Listen(gctx, func(msg ipc.Downward) {
				order, ok := msg.(ipc.ShutDown)
				if !ok {
					return
				}
				if order.Force != 0 {
					slog.Warn("forced shutdown ordered")
					forced.Store(true)
					cancel()
					return
				}
				slog.Info("shutdown ordered")
				go a.unwind(cancel)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error { return a.pumpUpdates(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if forced.Load() {
		return ErrForced
	}
	if err != nil && a.endpoint != nil {
		if sendErr := a.endpoint.Send(ipc.ExceptionShutdown{Err: err.Error()}); sendErr != nil {
			slog.Error("exception report failed", "err", sendErr)
		}
	}
	return err
}

// unwind performs the graceful half of the shutdown protocol: stop consuming
// updates, let in-flight handlers drain, then report the outcome upward and
// release the run group.
func (a *App) unwind(cancel context.CancelFunc) {
	a.bot.StopUpdates()

	drained := false
	for i := 0; i < drainPolls; i++ {
		if a.inFlight.Load() == 0 {
			drained = true
			break
		}
		time.Sleep(drainInterval)
	}

	var msg ipc.Upward = ipc.CleanShutdown{}
	if !drained {
		slog.Warn("handlers still running at shutdown", "count", a.inFlight.Load())
		msg = ipc.ThreadingFailedShutdown{}
	}
	if err := a.endpoint.Send(msg); err != nil {
		slog.Error("shutdown report failed", "err", err)
	}
	cancel()
}

// pumpUpdates dispatches the bot's update stream. Each update runs in its own
// goroutine; handler panics become an ExceptionShutdown rather than a silent
// crash.
func (a *App) pumpUpdates(ctx context.Context) error {
	updates := a.bot.Updates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			a.inFlight.Add(1)
			go func() {
				defer a.inFlight.Add(-1)
				defer func() {
					if r := recover(); r != nil {
						slog.Error("handler panic", "panic", r)
						if a.endpoint != nil {
							_ = a.endpoint.Send(ipc.ExceptionShutdown{Err: fmt.Sprint(r)})
						}
					}
				}()
				a.dispatch(ctx, update)
			}()
		}
	}
}

// dispatch routes one update and turns routing failures into chat replies
// where the sender can see them.
func (a *App) dispatch(ctx context.Context, update tgbotapi.Update) {
	err := a.router.Dispatch(ctx, update)
	switch {
	case err == nil, errors.Is(err, telegram.ErrUnhandled):
		return
	case errors.Is(err, telegram.ErrUnknownCommand):
		a.replyToUpdate(ctx, update, "I don't understand that. Try /help.")
	case errors.Is(err, telegram.ErrDenied):
		a.replyToUpdate(ctx, update, "You're not allowed to do that here.")
	default:
		slog.Error("update failed", "err", err)
	}
}

func (a *App) replyToUpdate(ctx context.Context, update tgbotapi.Update, text string) {
	msg := update.Message
	if msg == nil {
		return
	}
	_, err := a.bot.ReplyHTML(ctx, msg.Chat.ID, msg.MessageID, telegram.Render(telegram.Text(text)))
	if err != nil {
		slog.Warn("reply failed", "err", err)
	}
}

// readToken loads a bot token from a one-line file.
func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("worker: read token %s: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("worker: token file %s is empty", path)
	}
	return token, nil
}
