package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender delivers messages through the telegram bot api.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

// Ensure the TelegramSender implements the Sender interface.
var _ Sender = (*TelegramSender)(nil)

// NewBot initializes a telegram bot whose requests are bounded by the provided timeout.
// The timeout must exceed any long poll timeout requested through the bot.
func NewBot(token string, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return bot, nil
}

// NewTelegramSender initializes a new telegram sender.
func NewTelegramSender(bot *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// Send delivers the provided text to the chat. It returns when the context is done
// even if the request is still in flight, the bot's client timeout bounds the request.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	result := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(msg)
		result <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("sending telegram message: %w", ctx.Err())
	case err := <-result:
		if err != nil {
			return fmt.Errorf("sending telegram message: %w", err)
		}
		return nil
	}
}

// LogSender writes messages to the log, used when no bot is configured.
type LogSender struct {
	Logger *zerolog.Logger
}

// Ensure the LogSender implements the Sender interface.
var _ Sender = (*LogSender)(nil)

// Send logs the provided text.
func (s *LogSender) Send(ctx context.Context, chatID int64, text string) error {
	s.Logger.Info().Int64("chat", chatID).Msg(text)
	return nil
}
