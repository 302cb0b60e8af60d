package worker

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dabneyhovse/further/internal/queue"
	"github.com/dabneyhovse/further/internal/telegram"
)

// statusReporter owns one element's status message in the chat: it sends the
// message on the first callback and edits it in place afterwards. Skippable
// stages carry an inline skip button keyed by element id.
type statusReporter struct {
	app       *App
	chatID    int64
	requester string

	mu        sync.Mutex
	messageID int
}

func (a *App) newStatusReporter(chatID int64, requester string) *statusReporter {
	return &statusReporter{app: a, chatID: chatID, requester: requester}
}

// report is the element's StatusFunc. Status updates are best-effort:
// failures are logged and playback proceeds regardless.
func (r *statusReporter) report(e *queue.Element, st queue.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	text := telegram.Render(statusTree(e, st, r.requester))
	kb := skipKeyboard(e.ID())

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.messageID == 0 {
		if st.Skippable {
			r.messageID, err = r.app.bot.SendHTMLKeyboard(ctx, r.chatID, text, kb)
		} else {
			r.messageID, err = r.app.bot.SendHTML(ctx, r.chatID, text)
		}
	} else {
		var markup *tgbotapi.InlineKeyboardMarkup
		if st.Skippable {
			markup = &kb
		}
		err = r.app.bot.EditHTML(ctx, r.chatID, r.messageID, text, markup)
	}
	if err != nil {
		slog.Warn("status update failed",
			"element", e.ID(),
			"stage", st.Stage.String(),
			"err", err,
		)
	}

	if st.Stage == queue.StageSkipped {
		r.app.metrics.ElementsSkipped.Add(ctx, 1)
	}
	if st.Stage.Terminal() {
		r.app.metrics.QueueDepth.Add(ctx, -1,
			metric.WithAttributes(attribute.String("kind", "main")))
	}
}

func skipKeyboard(elementID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Skip", skipCallbackData(elementID)),
		),
	)
}
