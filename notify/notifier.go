package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for the message queue.
	bufferSize = 64
	// defaultSendTimeout is the default deadline for delivering a message.
	defaultSendTimeout = time.Second * 10
)

// Sender delivers a message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// NotifierConfig represents the configuration for the notifier.
type NotifierConfig struct {
	// Sender delivers messages.
	Sender Sender
	// ChatID is the chat messages are delivered to.
	ChatID int64
	// SendTimeout is the deadline for delivering a single message.
	SendTimeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *NotifierConfig) Validate() error {
	var errs error

	if cfg.Sender == nil {
		errs = errors.Join(errs, fmt.Errorf("no sender provided"))
	}
	if cfg.SendTimeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("send timeout cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// Notifier delivers notifications in order. Delivery failures are logged, never
// surfaced to the caller.
type Notifier struct {
	cfg      *NotifierConfig
	messages chan string
	sent     atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewNotifier initializes a new notifier.
func NewNotifier(cfg *NotifierConfig) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating notifier config: %w", err)
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	return &Notifier{
		cfg:      cfg,
		messages: make(chan string, bufferSize),
	}, nil
}

// Notify queues the provided message for delivery without blocking.
func (n *Notifier) Notify(message string) {
	select {
	case n.messages <- message:
		// do nothing.
	default:
		n.dropped.Inc()
		n.cfg.Logger.Error().Msgf("notification channel at capacity: %d/%d",
			len(n.messages), bufferSize)
	}
}

// Sent returns the number of delivered messages.
func (n *Notifier) Sent() uint64 { return n.sent.Load() }

// Failed returns the number of messages that could not be delivered.
func (n *Notifier) Failed() uint64 { return n.failed.Load() }

// Dropped returns the number of messages dropped at capacity.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }

// deliver sends the provided message.
func (n *Notifier) deliver(ctx context.Context, message string) {
	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()

	err := n.cfg.Sender.Send(sendCtx, n.cfg.ChatID, message)
	if err != nil {
		n.failed.Inc()
		n.cfg.Logger.Error().Err(err).Msgf("sending notification")
		return
	}

	n.sent.Inc()
}

// Run manages the lifecycle processes of the notifier.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			n.cfg.Logger.Info().Msgf("notifier shutting down, sent %d, failed %d, dropped %d",
				n.Sent(), n.Failed(), n.Dropped())
			return
		case message := <-n.messages:
			n.deliver(ctx, message)
		}
	}
}
