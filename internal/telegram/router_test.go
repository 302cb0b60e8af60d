package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func commandUpdate(text string) tgbotapi.Update {
	ents := []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		Text:      text,
		Entities:  ents,
		Chat:      &tgbotapi.Chat{ID: -100, Type: "supergroup"},
		From:      &tgbotapi.User{ID: 42, UserName: "tester"},
	}}
}

func TestDispatchSynonymsAndArgs(t *testing.T) {
	r := NewRouter()

	var gotArgs []string
	r.Register(&Command{
		Names: []string{"skip_all", "clear", "skipall"},
		Args:  ArgsNone,
		Handler: func(_ context.Context, inv *Invocation) error {
			gotArgs = inv.Args
			return nil
		},
	})

	for _, cmd := range []string{"/skip_all", "/clear", "/skipall"} {
		if err := r.Dispatch(context.Background(), commandUpdate(cmd)); err != nil {
			t.Errorf("Dispatch(%s): %v", cmd, err)
		}
	}
	if len(gotArgs) != 0 {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestDispatchDualRegistrationByArity(t *testing.T) {
	r := NewRouter()

	var called string
	r.Register(&Command{
		Names: []string{"q", "queue", "queued"},
		Args:  ArgsNone,
		Handler: func(context.Context, *Invocation) error {
			called = "snapshot"
			return nil
		},
	})
	r.Register(&Command{
		Names:      []string{"q", "queue", "add", "enqueue"},
		Args:       ArgsAtLeast(1),
		AllowAudio: true,
		Handler: func(_ context.Context, inv *Invocation) error {
			called = "enqueue:" + strings.Join(inv.Args, " ")
			return nil
		},
	})

	if err := r.Dispatch(context.Background(), commandUpdate("/q")); err != nil {
		t.Fatal(err)
	}
	if called != "snapshot" {
		t.Errorf("bare /q dispatched to %q", called)
	}

	if err := r.Dispatch(context.Background(), commandUpdate("/q example song")); err != nil {
		t.Fatal(err)
	}
	if called != "enqueue:example song" {
		t.Errorf("/q with args dispatched to %q", called)
	}
}

func TestDispatchAudioSatisfiesArgMinimum(t *testing.T) {
	r := NewRouter()

	var got *Attachment
	r.Register(&Command{
		Names:      []string{"q"},
		Args:       ArgsAtLeast(1),
		AllowAudio: true,
		Handler: func(_ context.Context, inv *Invocation) error {
			got = inv.Audio
			return nil
		},
	})

	u := commandUpdate("/q")
	u.Message.Audio = &tgbotapi.Audio{FileID: "file-1", FileName: "song.mp3", Duration: 90}
	if err := r.Dispatch(context.Background(), u); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got == nil || got.FileID != "file-1" || got.DurationSeconds != 90 {
		t.Errorf("attachment = %+v", got)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	r := NewRouter()
	err := r.Dispatch(context.Background(), commandUpdate("/frobnicate"))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("err = %v, want ErrUnknownCommand", err)
	}
}

func TestDispatchDeniedBySelector(t *testing.T) {
	r := NewRouter()
	r.Register(&Command{
		Names:   []string{"volume"},
		Args:    ArgsUpTo(1),
		Allowed: UserIDIn(7),
		Handler: func(context.Context, *Invocation) error { return nil },
	})

	err := r.Dispatch(context.Background(), commandUpdate("/volume 30"))
	if !errors.Is(err, ErrDenied) {
		t.Errorf("err = %v, want ErrDenied", err)
	}
}

func TestDispatchCallback(t *testing.T) {
	r := NewRouter()

	var got *Callback
	r.OnCallback("skip", func(_ context.Context, cb *Callback) error {
		got = cb
		return nil
	})

	u := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		Data: "skip:17",
		From: &tgbotapi.User{ID: 42, UserName: "tester"},
		Message: &tgbotapi.Message{
			MessageID: 55,
			Chat:      &tgbotapi.Chat{ID: -100},
		},
	}}
	if err := r.Dispatch(context.Background(), u); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.Payload != "17" || got.ChatID != -100 || got.MessageID != 55 {
		t.Errorf("callback = %+v", got)
	}
}

func TestDispatchBareAudioMessage(t *testing.T) {
	r := NewRouter()

	var got *Invocation
	r.OnAudio(func(_ context.Context, inv *Invocation) error {
		got = inv
		return nil
	})

	u := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 11,
		Chat:      &tgbotapi.Chat{ID: -100, Type: "supergroup"},
		From:      &tgbotapi.User{ID: 42},
		Audio:     &tgbotapi.Audio{FileID: "file-2", Performer: "Artist", Title: "Track"},
	}}
	if err := r.Dispatch(context.Background(), u); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got == nil || got.Audio.Name != "Artist Track" {
		t.Errorf("invocation = %+v", got)
	}
}

func TestHelpMergesSynonyms(t *testing.T) {
	r := NewRouter()
	r.Register(&Command{
		Names: []string{"q", "queue", "queued"},
		Help:  "show the queue",
		Args:  ArgsNone,
	})
	r.Register(&Command{
		Names: []string{"q", "queue", "add", "enqueue"},
		Help:  "queue a track",
		Args:  ArgsAtLeast(1),
	})
	r.Register(&Command{
		Names:  []string{"secret"},
		Hidden: true,
	})

	rendered := Render(r.Help())
	for _, want := range []string{"/q", "/queue", "/add", "show the queue", "queue a track"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("help missing %q:\n%s", want, rendered)
		}
	}
	if strings.Contains(rendered, "secret") {
		t.Error("hidden command rendered in help")
	}
}
