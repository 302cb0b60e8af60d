package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dabneyhovse/further/internal/parse"
	"github.com/dabneyhovse/further/internal/queue"
	"github.com/dabneyhovse/further/internal/quiet"
	"github.com/dabneyhovse/further/internal/settings"
	"github.com/dabneyhovse/further/internal/source"
	"github.com/dabneyhovse/further/internal/telegram"
)

const skipCallbackPrefix = "skip"

func skipCallbackData(elementID int64) string {
	return fmt.Sprintf("%s:%d", skipCallbackPrefix, elementID)
}

// primaryChat restricts a command to the registered jukebox chat. An
// unregistered bot accepts commands anywhere so it can be set up.
type primaryChat struct{ app *App }

func (s primaryChat) Matches(_ context.Context, env telegram.SelectorEnv) (bool, error) {
	id := s.app.store.Get().RegisteredPrimaryChatID
	return id == 0 || env.ChatID == id, nil
}

func (s primaryChat) Describe() string { return "in the registered chat" }

// owner restricts a command to the configured owner id.
type owner struct{ app *App }

func (s owner) Matches(_ context.Context, env telegram.SelectorEnv) (bool, error) {
	id := s.app.store.Get().OwnerID
	return id != 0 && env.UserID == id, nil
}

func (s owner) Describe() string { return "by the owner" }

// registerCommands wires the full chat command surface onto the router.
// Registration order matters for the dual /q entries: the snapshot form
// answers a bare /q, the enqueue form takes everything else.
func (a *App) registerCommands() {
	inChat := primaryChat{app: a}

	a.router.Register(&telegram.Command{
		Names:   []string{"q", "queue", "queued"},
		Help:    "show the queue",
		Args:    telegram.ArgsNone,
		Allowed: inChat,
		Handler: a.handleSnapshot,
	})
	a.router.Register(&telegram.Command{
		Names:      []string{"q", "queue", "add", "enqueue"},
		Help:       "queue a track by link, search, or attached audio",
		Args:       telegram.ArgsAtLeast(1),
		AllowAudio: true,
		Allowed:    inChat,
		Handler:    a.handleEnqueue,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"skip"},
		Help:    "skip the current track",
		Args:    telegram.ArgsNone,
		Allowed: inChat,
		Handler: a.handleSkip,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"skip_all", "clear", "skipall"},
		Help:    "skip everything",
		Args:    telegram.ArgsNone,
		Allowed: inChat,
		Handler: a.handleSkipAll,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"pause", "stop"},
		Help:    "pause playback",
		Args:    telegram.ArgsNone,
		Allowed: inChat,
		Handler: func(ctx context.Context, inv *telegram.Invocation) error {
			return a.q.Pause()
		},
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"play", "resume", "unpause"},
		Help:    "resume playback",
		Args:    telegram.ArgsNone,
		Allowed: inChat,
		Handler: func(ctx context.Context, inv *telegram.Invocation) error {
			return a.q.Resume()
		},
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"volume", "vol", "v"},
		Help:    "get or set the volume in percent",
		Args:    telegram.ArgsUpTo(1),
		Allowed: inChat,
		Handler: a.handleVolume,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"quiet_hours", "qh"},
		Help:    "show the quiet-hours schedule",
		Args:    telegram.ArgsNone,
		Allowed: inChat,
		Handler: a.handleQuietHours,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"hampter"},
		Help:    "hampter",
		Args:    telegram.ArgsNone,
		Allowed: inChat,
		Handler: a.handleHampter,
	})
	a.router.Register(&telegram.Command{
		Names: []string{"help"},
		Help:  "show this table",
		Args:  telegram.ArgsNone,
		Allowed: telegram.Or(
			telegram.ChatTypeIn("private"),
			telegram.MembershipIn(telegram.StatusOwner, telegram.StatusAdministrator),
		),
		Handler: a.handleHelp,
	})
	a.router.Register(&telegram.Command{
		Names:   []string{"send_registration_information"},
		Hidden:  true,
		Args:    telegram.ArgsNone,
		Allowed: owner{app: a},
		Handler: a.handleRegister,
	})

	a.router.OnCallback(skipCallbackPrefix, a.handleSkipButton)
	a.router.OnAudio(a.handleEnqueue)
	a.router.Membership = a.bot.Membership
}

// handleEnqueue parses the request and adds the element to the queue. Parse
// failures reply inline and apply nothing.
func (a *App) handleEnqueue(ctx context.Context, inv *telegram.Invocation) error {
	req, err := parse.Parse(inv.Args, inv.Audio != nil)
	if err != nil {
		if msg, ok := parse.AsUserError(err); ok {
			_, err = a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID, telegram.Render(telegram.Text(msg)))
		}
		return err
	}

	var src source.Source
	switch req.Kind {
	case parse.KindUpload:
		src = source.NewUploadedBlob(
			inv.Audio.FileID,
			inv.Audio.Name,
			inv.UserName,
			inv.Audio.DurationSeconds,
			a.bot.DownloadFile,
		)
	default:
		src, err = a.fetcher.Resolve(ctx, req.Query, req.Kind == parse.KindURL)
		if err != nil {
			_, replyErr := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
				telegram.Render(telegram.Text("Couldn't find anything for that request.")))
			if replyErr != nil {
				return replyErr
			}
			return err
		}
	}

	res, err := a.resources.Claim()
	if err != nil {
		return err
	}

	reporter := a.newStatusReporter(inv.ChatID, inv.UserName)
	start := time.Now()
	a.q.Add(src, req.DSP, res, func(e *queue.Element, st queue.Status) {
		if st.Stage == queue.StageQueued {
			a.metrics.DownloadDuration.Record(context.Background(), time.Since(start).Seconds())
		}
		if st.Stage == queue.StageFailed {
			a.metrics.DownloadFailures.Add(context.Background(), 1)
		}
		reporter.report(e, st)
	})

	a.metrics.ElementsAdded.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "main")))
	a.metrics.QueueDepth.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "main")))
	return nil
}

func (a *App) handleSnapshot(ctx context.Context, inv *telegram.Invocation) error {
	_, err := a.bot.SendHTML(ctx, inv.ChatID,
		telegram.Render(snapshotTree(a.q.State(), a.q.Snapshot())))
	return err
}

func (a *App) handleSkip(ctx context.Context, inv *telegram.Invocation) error {
	if !a.q.Skip(inv.UserName) {
		_, err := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
			telegram.Render(telegram.Text("Nothing is playing.")))
		return err
	}
	return nil
}

func (a *App) handleSkipAll(ctx context.Context, inv *telegram.Invocation) error {
	a.q.SkipAll(inv.UserName)
	return nil
}

func (a *App) handleSkipButton(ctx context.Context, cb *telegram.Callback) error {
	id, err := strconv.ParseInt(cb.Payload, 10, 64)
	if err != nil {
		return fmt.Errorf("worker: bad skip payload %q: %w", cb.Payload, err)
	}
	answer := "Skipped"
	if !a.q.SkipSpecific(cb.UserName, id) {
		answer = "Already gone"
	}
	return a.bot.AnswerCallback(ctx, cb.ID, answer)
}

func (a *App) handleVolume(ctx context.Context, inv *telegram.Invocation) error {
	if len(inv.Args) == 0 {
		_, err := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
			telegram.Render(telegram.Named{
				Key:   "Volume",
				Value: telegram.Text(fmt.Sprintf("%.0f%%", a.q.Volume())),
			}))
		return err
	}

	percent, err := strconv.ParseFloat(inv.Args[0], 64)
	if err != nil {
		_, err = a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
			telegram.Render(telegram.Text(fmt.Sprintf("Couldn't parse float: %q", inv.Args[0]))))
		return err
	}
	if err := a.q.SetVolume(percent); err != nil {
		var oor *queue.ErrVolumeOutOfRange
		if errors.As(err, &oor) {
			_, err = a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
				telegram.Render(telegram.Text(fmt.Sprintf(
					"Volume should be in the range [0, %.0f]", oor.MaxPct))))
		}
		return err
	}
	return a.store.Update(func(v *settings.Values) { v.DigitalVolume = percent })
}

func (a *App) handleQuietHours(ctx context.Context, inv *telegram.Invocation) error {
	v := a.store.Get()
	tree := quietHoursTree(
		v.NormalQuietHoursStartTime,
		v.WeekendQuietHoursStartTime,
		v.QuietHoursEndTime,
		a.quietNow(),
	)
	_, err := a.bot.SendHTML(ctx, inv.ChatID, telegram.Render(tree))
	return err
}

func (a *App) handleHampter(ctx context.Context, inv *telegram.Invocation) error {
	path := filepath.Join(a.store.Get().SFXPath, "hampter.mp3")
	if err := a.q.EnqueueSFX(source.NewLocalFile(path)); err != nil {
		return err
	}
	a.metrics.ElementsAdded.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "sfx")))
	return nil
}

func (a *App) handleHelp(ctx context.Context, inv *telegram.Invocation) error {
	_, err := a.bot.SendHTML(ctx, inv.ChatID, telegram.Render(a.router.Help()))
	return err
}

// handleRegister binds the jukebox to the chat the command was issued in.
func (a *App) handleRegister(ctx context.Context, inv *telegram.Invocation) error {
	if err := a.store.Update(func(v *settings.Values) { v.RegisteredPrimaryChatID = inv.ChatID }); err != nil {
		return err
	}
	_, err := a.bot.ReplyHTML(ctx, inv.ChatID, inv.MessageID,
		telegram.Render(telegram.Text("Registered this chat as the jukebox chat.")))
	return err
}

// quietNow evaluates the quiet-hours predicate against live settings.
func (a *App) quietNow() bool {
	v := a.store.Get()
	return quiet.Schedule{
		NormalStart:  v.NormalQuietHoursStartTime,
		WeekendStart: v.WeekendQuietHoursStartTime,
		End:          v.QuietHoursEndTime,
	}.Active()
}
