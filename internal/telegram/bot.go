// Package telegram wraps the Telegram Bot API for the jukebox: a retry-armed
// client for outbound calls, a command router with synonym and permission
// handling, composable permission selectors, and the tree-message HTML
// renderer.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dabneyhovse/further/internal/retry"
)

// api is the slice of the Bot API client we call. *tgbotapi.BotAPI satisfies
// it; tests substitute a fake.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot is a retry-armed Telegram client. Every outbound call goes through the
// policy returned by the policy func, so retry budgets follow live settings.
type Bot struct {
	raw    *tgbotapi.BotAPI
	client api
	policy func() retry.Policy

	// UserName is the bot's own @name, resolved at connect time.
	UserName string
}

// Connect authenticates against the Bot API with the given token.
func Connect(token string, policy func() retry.Policy) (*Bot, error) {
	raw, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &Bot{raw: raw, client: raw, policy: policy, UserName: raw.Self.UserName}, nil
}

// Updates opens the long-poll update stream.
func (b *Bot) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	return b.raw.GetUpdatesChan(u)
}

// StopUpdates stops the long-poll stream started by [Bot.Updates].
func (b *Bot) StopUpdates() {
	b.raw.StopReceivingUpdates()
}

// Classify maps an outbound-call error to a retry kind. Flood-control
// rejections carry the server-imposed delay.
func Classify(err error) (retry.Kind, time.Duration) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		if tgErr.RetryAfter > 0 {
			return retry.KindFloodControl, time.Duration(tgErr.RetryAfter) * time.Second
		}
		if strings.Contains(tgErr.Message, "Timeout") || tgErr.Code == http.StatusGatewayTimeout {
			return retry.KindTimeout, 0
		}
		return retry.KindFatal, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.KindTimeout, 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.KindTimeout, 0
	}
	return retry.KindFatal, 0
}

// IsNotModified reports whether err is the platform's complaint about an
// edit that changed nothing. Callers editing status messages treat it as
// success.
func IsNotModified(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && strings.Contains(tgErr.Message, "message is not modified")
}

// SendHTML sends an HTML-formatted message and returns its id.
func (b *Bot) SendHTML(ctx context.Context, chatID int64, text string) (int, error) {
	return b.send(ctx, chatID, text, nil, 0)
}

// ReplyHTML sends an HTML-formatted reply to an existing message.
func (b *Bot) ReplyHTML(ctx context.Context, chatID int64, replyTo int, text string) (int, error) {
	return b.send(ctx, chatID, text, nil, replyTo)
}

// SendHTMLKeyboard sends an HTML-formatted message with an inline keyboard.
func (b *Bot) SendHTMLKeyboard(ctx context.Context, chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error) {
	return b.send(ctx, chatID, text, &kb, 0)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup, replyTo int) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}
	sent, err := retry.Do(ctx, b.policy(), "send_message", func() (tgbotapi.Message, error) {
		return b.client.Send(msg)
	})
	if err != nil {
		return 0, fmt.Errorf("telegram: send: %w", err)
	}
	return sent.MessageID, nil
}

// EditHTML replaces a message's text, keeping its inline keyboard if kb is
// non-nil. An edit that changes nothing is not an error.
func (b *Bot) EditHTML(ctx context.Context, chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = kb
	err := retry.Do1(ctx, b.policy(), "edit_message", func() error {
		_, err := b.client.Send(edit)
		return err
	})
	if err != nil && !IsNotModified(err) {
		return fmt.Errorf("telegram: edit: %w", err)
	}
	return nil
}

// Delete removes a message.
func (b *Bot) Delete(ctx context.Context, chatID int64, messageID int) error {
	err := retry.Do1(ctx, b.policy(), "delete_message", func() error {
		_, err := b.client.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: delete: %w", err)
	}
	return nil
}

// Pin pins a message without notifying the chat.
func (b *Bot) Pin(ctx context.Context, chatID int64, messageID int) error {
	err := retry.Do1(ctx, b.policy(), "pin_message", func() error {
		_, err := b.client.Request(tgbotapi.PinChatMessageConfig{
			ChatID:              chatID,
			MessageID:           messageID,
			DisableNotification: true,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: pin: %w", err)
	}
	return nil
}

// Unpin unpins one message.
func (b *Bot) Unpin(ctx context.Context, chatID int64, messageID int) error {
	err := retry.Do1(ctx, b.policy(), "unpin_message", func() error {
		_, err := b.client.Request(tgbotapi.UnpinChatMessageConfig{
			ChatID:    chatID,
			MessageID: messageID,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: unpin: %w", err)
	}
	return nil
}

// UnpinAll unpins every pinned message in the chat.
func (b *Bot) UnpinAll(ctx context.Context, chatID int64) error {
	err := retry.Do1(ctx, b.policy(), "unpin_all", func() error {
		_, err := b.client.Request(tgbotapi.UnpinAllChatMessagesConfig{ChatID: chatID})
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: unpin all: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges an inline-button press.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	err := retry.Do1(ctx, b.policy(), "answer_callback", func() error {
		_, err := b.client.Request(tgbotapi.NewCallback(callbackID, text))
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// DownloadFile fetches a chat-attached file to destPath.
func (b *Bot) DownloadFile(ctx context.Context, fileID, destPath string) error {
	url, err := retry.Do(ctx, b.policy(), "get_file", func() (string, error) {
		return b.client.GetFileDirectURL(fileID)
	})
	if err != nil {
		return fmt.Errorf("telegram: resolve file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("telegram: fetch file: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: fetch file: unexpected status %s", resp.Status)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("telegram: fetch file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("telegram: fetch file: %w", err)
	}
	return nil
}

// Membership resolves a sender's status in a chat, for permission selectors.
func (b *Bot) Membership(ctx context.Context, chatID, userID int64) (MemberStatus, error) {
	member, err := retry.Do(ctx, b.policy(), "get_chat_member", func() (tgbotapi.ChatMember, error) {
		return b.raw.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
		})
	})
	if err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && strings.Contains(tgErr.Message, "PARTICIPANT_ID_INVALID") {
			return StatusNonMember, nil
		}
		return "", fmt.Errorf("telegram: chat member: %w", err)
	}
	return MemberStatus(member.Status), nil
}
