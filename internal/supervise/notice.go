package supervise

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dabneyhovse/further/internal/telegram"
)

// notifier is the slice of the supervisor bot the flood notice drives.
type notifier interface {
	SendHTML(ctx context.Context, chatID int64, text string) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	Pin(ctx context.Context, chatID int64, messageID int) error
	Unpin(ctx context.Context, chatID int64, messageID int) error
}

// floodNotice maintains the single pinned "bot is being throttled" message.
// The first flood-control report pins it; later reports only push the clear
// time out, never pin a second message. When the clear time passes the
// notice unpins and deletes itself.
type floodNotice struct {
	bot    notifier
	chatID int64

	// now and schedule are swappable for tests.
	now      func() time.Time
	schedule func(d time.Duration, fn func()) *time.Timer

	mu        sync.Mutex
	messageID int
	clearAt   time.Time
	timer     *time.Timer
}

func newFloodNotice(bot notifier, chatID int64) *floodNotice {
	return &floodNotice{
		bot:      bot,
		chatID:   chatID,
		now:      time.Now,
		schedule: time.AfterFunc,
	}
}

// Extend reports one flood-control rejection with the server-imposed delay.
// The notice clears at the latest delay seen, so overlapping reports extend
// rather than shorten its life.
func (n *floodNotice) Extend(ctx context.Context, delay time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	until := n.now().Add(delay)

	if n.messageID == 0 {
		id, err := n.bot.SendHTML(ctx, n.chatID, telegram.Render(telegram.Text(
			fmt.Sprintf("The jukebox is being rate limited; expect silence for about %.0f seconds.", delay.Seconds()))))
		if err != nil {
			slog.Warn("flood notice send failed", "err", err)
			return
		}
		if err := n.bot.Pin(ctx, n.chatID, id); err != nil {
			slog.Warn("flood notice pin failed", "err", err)
		}
		n.messageID = id
		n.clearAt = until
		n.timer = n.schedule(delay, n.expire)
		return
	}

	if until.After(n.clearAt) {
		n.clearAt = until
		if n.timer != nil {
			n.timer.Stop()
		}
		n.timer = n.schedule(delay, n.expire)
	}
}

// expire clears the notice once the clear time has genuinely passed; a timer
// that fired before a later extension reschedules itself.
func (n *floodNotice) expire() {
	n.mu.Lock()
	if n.messageID == 0 {
		n.mu.Unlock()
		return
	}
	if remaining := n.clearAt.Sub(n.now()); remaining > 0 {
		n.timer = n.schedule(remaining, n.expire)
		n.mu.Unlock()
		return
	}
	id := n.messageID
	n.messageID = 0
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.bot.Unpin(ctx, n.chatID, id); err != nil {
		slog.Warn("flood notice unpin failed", "err", err)
	}
	if err := n.bot.Delete(ctx, n.chatID, id); err != nil {
		slog.Warn("flood notice delete failed", "err", err)
	}
}

// Clear drops the notice immediately, for shutdown.
func (n *floodNotice) Clear(ctx context.Context) {
	n.mu.Lock()
	id := n.messageID
	n.messageID = 0
	if n.timer != nil {
		n.timer.Stop()
	}
	n.mu.Unlock()

	if id == 0 {
		return
	}
	if err := n.bot.Unpin(ctx, n.chatID, id); err != nil {
		slog.Warn("flood notice unpin failed", "err", err)
	}
	if err := n.bot.Delete(ctx, n.chatID, id); err != nil {
		slog.Warn("flood notice delete failed", "err", err)
	}
}
