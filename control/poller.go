package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dnldd/breakout/shared"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 16
	// defaultRetryDelay is the default delay after a failed poll.
	defaultRetryDelay = time.Second * 5
)

// UpdateSource fetches bot updates past an offset.
type UpdateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// PollerConfig represents the configuration for the update poller.
type PollerConfig struct {
	// Source fetches bot updates.
	Source UpdateSource
	// Timeout is the long poll timeout in seconds.
	Timeout int
	// RetryDelay is the delay after a failed poll.
	RetryDelay time.Duration
	// Sleep waits for the provided duration or until the context is cancelled.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *PollerConfig) Validate() error {
	var errs error

	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("no update source provided"))
	}
	if cfg.Timeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("poll timeout cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// Poller turns polled bot updates into a command stream. The cursor is the last
// processed update id and only lives in memory.
type Poller struct {
	cfg    *PollerConfig
	cursor atomic.Int64
}

// NewPoller initializes a new update poller.
func NewPoller(cfg *PollerConfig) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating poller config: %w", err)
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = shared.Sleep
	}

	return &Poller{cfg: cfg}, nil
}

// Cursor returns the last processed update id.
func (p *Poller) Cursor() int64 {
	return p.cursor.Load()
}

// poll fetches updates past the cursor and converts them into commands.
func (p *Poller) poll() ([]shared.Command, error) {
	cursor := p.cursor.Load()
	req := tgbotapi.NewUpdate(int(cursor + 1))
	req.Timeout = p.cfg.Timeout

	updates, err := p.cfg.Source.GetUpdates(req)
	if err != nil {
		return nil, fmt.Errorf("fetching updates past %d: %w", cursor, err)
	}

	cmds := make([]shared.Command, 0, len(updates))
	for idx := range updates {
		id := int64(updates[idx].UpdateID)
		if id <= cursor {
			continue
		}
		cursor = id
		p.cursor.Store(cursor)

		msg := updates[idx].Message
		if msg == nil || msg.Chat == nil {
			continue
		}

		cmds = append(cmds, shared.NewCommand(msg.Text, strconv.FormatInt(msg.Chat.ID, 10), id))
	}

	return cmds, nil
}

// Subscribe streams commands from polled updates until the context is cancelled.
func (p *Poller) Subscribe(ctx context.Context) <-chan shared.Command {
	out := make(chan shared.Command, bufferSize)

	go func() {
		defer close(out)

		for ctx.Err() == nil {
			cmds, err := p.poll()
			if err != nil {
				p.cfg.Logger.Error().Err(err).Msgf("polling updates")
				if p.cfg.Sleep(ctx, p.cfg.RetryDelay) != nil {
					return
				}
				continue
			}

			for _, cmd := range cmds {
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}

			if p.cfg.Timeout == 0 && len(cmds) == 0 {
				if p.cfg.Sleep(ctx, p.cfg.RetryDelay) != nil {
					return
				}
			}
		}
	}()

	return out
}
