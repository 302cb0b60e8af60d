package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dabneyhovse/further/internal/config"
	"github.com/dabneyhovse/further/internal/ipc"
	"github.com/dabneyhovse/further/internal/retry"
	"github.com/dabneyhovse/further/internal/settings"
	"github.com/dabneyhovse/further/internal/telegram"
)

// comptroller admits the owner and the configured comptrollers.
type comptroller struct{ store *settings.Store }

func (s comptroller) Matches(_ context.Context, env telegram.SelectorEnv) (bool, error) {
	v := s.store.Get()
	if v.OwnerID != 0 && env.UserID == v.OwnerID {
		return true, nil
	}
	for _, id := range v.ComptrollerIDs {
		if env.UserID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s comptroller) Describe() string { return "by the owner or a comptroller" }

// App is the assembled supervisor process.
type App struct {
	cfg        *config.Config
	configPath string
	store      *settings.Store
	bot        *telegram.Bot
	router     *telegram.Router
	notice     *floodNotice

	// spawn is swappable for tests.
	spawn func() (*Process, error)

	mu       sync.Mutex
	proc     *Process
	watching sync.WaitGroup
}

// New assembles the supervisor from config. configPath is passed through to
// spawned workers.
func New(cfg *config.Config, configPath string) (*App, error) {
	store, err := settings.Open(cfg.Paths.SupervisorSettings)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		router:     telegram.NewRouter(),
	}
	a.spawn = func() (*Process, error) { return Spawn(configPath) }

	token, err := readToken(store.Get().SupervisorBotTokenPath)
	if err != nil {
		return nil, err
	}
	a.bot, err = telegram.Connect(token, a.retryPolicy)
	if err != nil {
		return nil, err
	}
	slog.Info("supervisor bot connected", "username", a.bot.UserName)

	a.notice = newFloodNotice(a.bot, store.Get().RegisteredPrimaryChatID)
	a.registerCommands()
	return a, nil
}

func (a *App) retryPolicy() retry.Policy {
	v := a.store.Get()
	return retry.Policy{
		MaxFloodRetries:   v.MaxTelegramFloodControlRetries,
		MaxTimeoutRetries: v.MaxTelegramTimeOutRetries,
		FloodBuffer:       time.Duration(v.FloodControlBufferTime * float64(time.Second)),
		TimeoutBuffer:     time.Duration(v.TelegramTimeOutBufferTime * float64(time.Second)),
		Classify:          telegram.Classify,
	}
}

func (a *App) registerCommands() {
	gate := comptroller{store: a.store}

	a.router.Register(&telegram.Command{
		Names:   []string{"start"},
		Help:    "start the jukebox worker",
		Args:    telegram.ArgsNone,
		Allowed: gate,
		Handler: a.handleStart,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"stop"},
		Help:    "stop the worker; /stop force kills it",
		Args:    telegram.ArgsUpTo(1),
		Allowed: gate,
		Handler: a.handleStop,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"restart"},
		Help:    "restart the worker",
		Args:    telegram.ArgsNone,
		Allowed: gate,
		Handler: a.handleRestart,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"status"},
		Help:    "report whether the worker is running",
		Args:    telegram.ArgsNone,
		Allowed: gate,
		Handler: a.handleStatus,
	})
	a.router.Membership = a.bot.Membership
}

// Run starts the worker and serves supervisor commands until ctx is
// cancelled. Stale pinned notices from a previous run are cleared first.
func (a *App) Run(ctx context.Context) error {
	if chatID := a.store.Get().RegisteredPrimaryChatID; chatID != 0 {
		if err := a.bot.UnpinAll(ctx, chatID); err != nil {
			slog.Warn("stale notice cleanup failed", "err", err)
		}
	}

	if err := a.startWorker(ctx); err != nil {
		return err
	}

	updates := a.bot.Updates()
	for {
		select {
		case <-ctx.Done():
			a.shutdownWorker(context.Background())
			a.watching.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			a.dispatch(ctx, update)
		}
	}
}

func (a *App) dispatch(ctx context.Context, update tgbotapi.Update) {
	err := a.router.Dispatch(ctx, update)
	switch {
	case err == nil, errors.Is(err, telegram.ErrUnhandled):
	case errors.Is(err, telegram.ErrDenied):
		if msg := update.Message; msg != nil {
			_, _ = a.bot.ReplyHTML(ctx, msg.Chat.ID, msg.MessageID,
				telegram.Render(telegram.Text("You're not allowed to control the jukebox.")))
		}
	case errors.Is(err, telegram.ErrUnknownCommand):
	default:
		slog.Error("supervisor command failed", "err", err)
	}
}

// startWorker spawns a worker and begins relaying its reports.
func (a *App) startWorker(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.proc != nil {
		return errors.New("supervise: worker already running")
	}

	proc, err := a.spawn()
	if err != nil {
		return err
	}
	a.proc = proc
	slog.Info("worker started", "pid", proc.PID())

	a.watching.Add(1)
	go a.watch(ctx, proc)
	return nil
}

// watch relays one worker's fate reports and cleans up after its exit.
func (a *App) watch(ctx context.Context, proc *Process) {
	defer a.watching.Done()

	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		err := proc.Listen(ctx, func(msg ipc.Upward) { a.report(ctx, msg) })
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("worker pipe closed", "err", err)
		}
	}()

	err := <-proc.Done()
	<-listenDone
	proc.Close()

	a.mu.Lock()
	if a.proc == proc {
		a.proc = nil
	}
	a.mu.Unlock()

	if err != nil {
		slog.Error("worker exited abnormally", "err", err)
		a.announce(ctx, fmt.Sprintf("The jukebox worker died: %v", err))
	} else {
		slog.Info("worker exited")
	}
}

// report relays one upward message into the chat.
func (a *App) report(ctx context.Context, msg ipc.Upward) {
	switch m := msg.(type) {
	case ipc.CleanShutdown:
		a.announce(ctx, "The jukebox shut down cleanly.")
	case ipc.ExceptionShutdown:
		slog.Error("worker reported exception", "err", m.Err)
		a.announce(ctx, "The jukebox hit an error and shut down: "+m.Err)
	case ipc.FloodControlIssues:
		a.notice.Extend(ctx, time.Duration(m.DelaySeconds*float64(time.Second)))
	case ipc.ThreadingFailedShutdown:
		a.announce(ctx, "The jukebox stopped, but some of its background tasks would not. Use /stop force if it hangs.")
	}
}

func (a *App) announce(ctx context.Context, text string) {
	chatID := a.store.Get().RegisteredPrimaryChatID
	if chatID == 0 {
		return
	}
	if _, err := a.bot.SendHTML(ctx, chatID, telegram.Render(telegram.Text(text))); err != nil {
		slog.Warn("announcement failed", "err", err)
	}
}

func (a *App) handleStart(ctx context.Context, inv *telegram.Invocation) error {
	if err := a.startWorker(ctx); err != nil {
		_, replyErr := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
			telegram.Render(telegram.Text(fmt.Sprintf("Can't start the worker: %v", err))))
		return replyErr
	}
	_, err := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
		telegram.Render(telegram.Text("Worker started.")))
	return err
}

func (a *App) handleStop(ctx context.Context, inv *telegram.Invocation) error {
	force := len(inv.Args) == 1 && strings.EqualFold(inv.Args[0], "force")
	if len(inv.Args) == 1 && !force {
		_, err := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
			telegram.Render(telegram.Text("Usage: /stop or /stop force")))
		return err
	}

	if !a.orderStop(force) {
		_, err := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
			telegram.Render(telegram.Text("The worker is not running.")))
		return err
	}
	return nil
}

func (a *App) handleRestart(ctx context.Context, inv *telegram.Invocation) error {
	if a.orderStop(false) {
		a.waitStopped(ctx)
	}
	return a.handleStart(ctx, inv)
}

func (a *App) handleStatus(ctx context.Context, inv *telegram.Invocation) error {
	a.mu.Lock()
	proc := a.proc
	a.mu.Unlock()

	text := "The worker is not running."
	if proc != nil {
		text = fmt.Sprintf("The worker is running (pid %d).", proc.PID())
	}
	_, err := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
		telegram.Render(telegram.Text(text)))
	return err
}

// orderStop sends a shutdown order to the current worker, if any.
func (a *App) orderStop(force bool) bool {
	a.mu.Lock()
	proc := a.proc
	a.mu.Unlock()
	if proc == nil {
		return false
	}

	f := 0
	if force {
		f = 1
	}
	if err := proc.Order(f); err != nil {
		slog.Error("shutdown order failed", "err", err)
		if force {
			_ = proc.Kill()
		}
	}
	return true
}

// waitStopped blocks until the current worker slot is free or ctx expires.
func (a *App) waitStopped(ctx context.Context) {
	for {
		a.mu.Lock()
		stopped := a.proc == nil
		a.mu.Unlock()
		if stopped {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// shutdownWorker asks the worker to unwind during supervisor shutdown.
func (a *App) shutdownWorker(ctx context.Context) {
	if a.orderStop(false) {
		waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		a.waitStopped(waitCtx)
		cancel()
	}
	a.notice.Clear(ctx)
}

// readToken loads a bot token from a one-line file.
func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("supervise: read token %s: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("supervise: token file %s is empty", path)
	}
	return token, nil
}
