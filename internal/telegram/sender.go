// Package telegram is the chat surface of the bot: the Sender delivers
// reminder messages to groups and the Bot answers user commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Telegram allows roughly 30 messages per second per bot.
const sendInterval = time.Second / 25

// MessageAPI is the subset of *tgbotapi.BotAPI used to send messages.
type MessageAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// SendError is returned when a message could not be delivered to a chat.
type SendError struct {
	ChatID int64
	Code   int // Telegram error code, 0 when the request never got an answer
	Err    error
}

func (e *SendError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("send to chat %d failed (%d): %v", e.ChatID, e.Code, e.Err)
	}
	return fmt.Sprintf("send to chat %d failed: %v", e.ChatID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Sender delivers HTML messages to chats, rate limited.
type Sender struct {
	api     MessageAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSender creates a sender on top of a bot API client.
func NewSender(api MessageAPI, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(sendInterval), 1),
		logger:  logger,
	}
}

// Send delivers text, rendered as HTML, to the chat. Each call is a single
// attempt.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	return s.send(ctx, chatID, text, tgbotapi.ModeHTML, 0)
}

// reply answers a specific message. An empty parseMode sends plain text.
func (s *Sender) reply(ctx context.Context, chatID int64, replyTo int, text, parseMode string) error {
	return s.send(ctx, chatID, text, parseMode, replyTo)
}

func (s *Sender) send(ctx context.Context, chatID int64, text, parseMode string, replyTo int) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &SendError{ChatID: chatID, Err: err}
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	msg.ReplyToMessageID = replyTo

	start := time.Now()
	if _, err := s.api.Send(msg); err != nil {
		se := &SendError{ChatID: chatID, Err: err}
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			se.Code = apiErr.Code
		}
		return se
	}
	s.logger.Debug("Telegram message sent",
		"chat_id", chatID,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}
