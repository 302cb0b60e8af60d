// Command further is the Telegram jukebox. It runs as a supervisor by
// default and re-executes itself with -worker for the playback process; the
// pair talks over the pipe fds the supervisor passes down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dabneyhovse/further/internal/config"
	"github.com/dabneyhovse/further/internal/ipc"
	"github.com/dabneyhovse/further/internal/observe"
	"github.com/dabneyhovse/further/internal/supervise"
	"github.com/dabneyhovse/further/internal/worker"
)

// The worker inherits these fds from the supervisor's ExtraFiles.
const (
	downwardFD = 3
	upwardFD   = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	workerMode := flag.Bool("worker", false, "run as the playback worker (internal)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "further: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *workerMode {
		return runWorker(ctx, cfg)
	}
	return runSupervisor(ctx, cfg, *configPath)
}

func runWorker(ctx context.Context, cfg *config.Config) int {
	slog.Info("worker starting", "pid", os.Getpid())

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("metrics init failed", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("metrics shutdown failed", "err", err)
		}
	}()

	endpoint := workerEndpoint(downwardFD, upwardFD)
	if endpoint == nil {
		slog.Warn("no supervisor pipes, running standalone")
	}

	app, err := worker.New(cfg, endpoint)
	if err != nil {
		slog.Error("worker init failed", "err", err)
		if endpoint != nil {
			_ = endpoint.Send(ipc.ExceptionShutdown{Err: err.Error()})
		}
		return 1
	}

	err = app.Run(ctx)
	switch {
	case err == nil:
		slog.Info("worker done")
		return 0
	case errors.Is(err, worker.ErrForced):
		slog.Warn("worker exiting on forced shutdown")
		return 2
	default:
		slog.Error("worker failed", "err", err)
		return 1
	}
}

// workerEndpoint builds the IPC endpoint from the pipe fds inherited through
// the supervisor's ExtraFiles. A worker launched by hand has neither fd and
// runs standalone.
func workerEndpoint(downFD, upFD uintptr) *ipc.WorkerEndpoint {
	down := inheritedFile(downFD, "supervisor-down")
	up := inheritedFile(upFD, "supervisor-up")
	if down == nil || up == nil {
		if down != nil {
			_ = down.Close()
		}
		if up != nil {
			_ = up.Close()
		}
		return nil
	}
	return ipc.NewWorkerEndpoint(down, up)
}

// inheritedFile wraps an inherited fd. os.NewFile returns non-nil even for an
// fd that was never opened, so the fd is stat-checked before use.
func inheritedFile(fd uintptr, name string) *os.File {
	f := os.NewFile(fd, name)
	if _, err := f.Stat(); err != nil {
		_ = f.Close()
		return nil
	}
	return f
}

func runSupervisor(ctx context.Context, cfg *config.Config, configPath string) int {
	slog.Info("supervisor starting", "pid", os.Getpid(), "config", configPath)

	app, err := supervise.New(cfg, configPath)
	if err != nil {
		slog.Error("supervisor init failed", "err", err)
		return 1
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("supervisor failed", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
