package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/breakout/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// AutostartConfig represents the configuration for the daily autostart.
type AutostartConfig struct {
	// Schedule is the cron expression the engine is started on, e.g. "15 9 * * 1-5".
	Schedule string
	// OperatorID is the identity the start command is issued as.
	OperatorID string
	// Location is the timezone the schedule is evaluated in.
	Location *time.Location
	// Dispatch applies the provided command.
	Dispatch func(cmd shared.Command) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *AutostartConfig) Validate() error {
	var errs error

	if cfg.Schedule == "" {
		errs = errors.Join(errs, fmt.Errorf("no autostart schedule provided"))
	}
	if cfg.OperatorID == "" {
		errs = errors.Join(errs, fmt.Errorf("no operator id provided"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("no location provided"))
	}
	if cfg.Dispatch == nil {
		errs = errors.Join(errs, fmt.Errorf("no dispatch function provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// Autostart issues an operator start command on a daily schedule.
type Autostart struct {
	cfg          *AutostartConfig
	jobScheduler *gocron.Scheduler
}

// NewAutostart initializes a new daily autostart.
func NewAutostart(cfg *AutostartConfig) (*Autostart, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating autostart config: %w", err)
	}

	a := &Autostart{
		cfg:          cfg,
		jobScheduler: gocron.NewScheduler(cfg.Location),
	}

	_, err := a.jobScheduler.Cron(cfg.Schedule).Do(a.trigger)
	if err != nil {
		return nil, fmt.Errorf("scheduling autostart job: %w", err)
	}

	return a, nil
}

// trigger issues the scheduled start command.
func (a *Autostart) trigger() {
	cmd := shared.Command{
		Kind:     shared.Start,
		Identity: a.cfg.OperatorID,
		Text:     shared.Start.String(),
	}

	err := a.cfg.Dispatch(cmd)
	if err != nil {
		a.cfg.Logger.Error().Err(err).Msgf("autostarting engine")
		return
	}

	a.cfg.Logger.Info().Msgf("engine autostarted")
}

// NextRun returns the next scheduled autostart.
func (a *Autostart) NextRun() time.Time {
	_, next := a.jobScheduler.NextRun()
	return next
}

// Run manages the lifecycle processes of the autostart.
func (a *Autostart) Run(ctx context.Context) {
	a.jobScheduler.StartAsync()
	a.cfg.Logger.Info().Msgf("autostart scheduled on %q", a.cfg.Schedule)

	<-ctx.Done()
	a.jobScheduler.Stop()
}
