package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/dnldd/breakout/shared"
	"github.com/rs/zerolog"
)

var (
	// ErrUnauthorized is returned for commands from an identity other than the operator's.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnknownCommand is returned for unrecognized command texts.
	ErrUnknownCommand = errors.New("unknown command")
)

// Engine defines the engine controls required by the controller.
type Engine interface {
	Start() bool
	Stop() bool
	Snapshot() shared.SessionSnapshot
}

// ControllerConfig represents the configuration for the controller.
type ControllerConfig struct {
	// OperatorID is the identity authorized to issue commands.
	OperatorID string
	// Engine is the controlled breakout engine.
	Engine Engine
	// Notify sends the provided message.
	Notify func(message string)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ControllerConfig) Validate() error {
	var errs error

	if cfg.OperatorID == "" {
		errs = errors.Join(errs, fmt.Errorf("no operator id provided"))
	}
	if cfg.Engine == nil {
		errs = errors.Join(errs, fmt.Errorf("no engine provided"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("no notify function provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// Controller applies operator commands to the engine.
type Controller struct {
	cfg *ControllerConfig
}

// NewController initializes a new controller.
func NewController(cfg *ControllerConfig) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating controller config: %w", err)
	}

	return &Controller{cfg: cfg}, nil
}

// Handle applies the provided command, returning the reply for the operator.
func (c *Controller) Handle(cmd shared.Command) (string, error) {
	if cmd.Identity != c.cfg.OperatorID {
		return "", fmt.Errorf("%w: %s from %q", ErrUnauthorized, cmd.Kind.String(), cmd.Identity)
	}

	switch cmd.Kind {
	case shared.Start:
		if !c.cfg.Engine.Start() {
			return "⚠️ Bot already running", nil
		}
		return "✅ Bot started", nil

	case shared.Stop:
		if !c.cfg.Engine.Stop() {
			return "⚠️ Bot not running", nil
		}
		return "🛑 Bot stopped", nil

	case shared.Status:
		return c.cfg.Engine.Snapshot().String(), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Text)
	}
}

// Dispatch handles the provided command and sends its reply.
func (c *Controller) Dispatch(cmd shared.Command) error {
	reply, err := c.Handle(cmd)
	switch {
	case errors.Is(err, ErrUnauthorized):
		c.cfg.Logger.Warn().Err(err).Msgf("rejected command")
		return err
	case errors.Is(err, ErrUnknownCommand):
		c.cfg.Logger.Debug().Err(err).Msgf("ignored command")
		return err
	case err != nil:
		c.cfg.Logger.Error().Err(err).Msgf("handling command")
		return err
	}

	c.cfg.Logger.Info().Msgf("handled %s command", cmd.Kind.String())
	c.cfg.Notify(reply)

	return nil
}

// Run consumes the provided command stream until the context is cancelled or the
// stream closes.
func (c *Controller) Run(ctx context.Context, commands <-chan shared.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			_ = c.Dispatch(cmd)
		}
	}
}
