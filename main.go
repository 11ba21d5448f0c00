package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/dnldd/breakout/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt, syscall.SIGTERM}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// setupLogger configures the global logger from the provided config.
func setupLogger(cfg *Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	labels, err := cfg.labels()
	if err != nil {
		return err
	}

	logCtx := log.Logger.With()
	for k, v := range labels {
		logCtx = logCtx.Str(k, v)
	}
	log.Logger = logCtx.Logger()

	return nil
}

func main() {
	cfg := defaultConfig()
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Err(err).Msg("loading config")
		os.Exit(1)
	}

	err = setupLogger(&cfg)
	if err != nil {
		log.Error().Err(err).Msg("setting up logger")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	breakoutCfg, err := cfg.serviceConfig(cancel)
	if err != nil {
		log.Error().Err(err).Msg("creating breakout service config")
		os.Exit(1)
	}

	breakout, err := service.NewBreakout(ctx, breakoutCfg)
	if err != nil {
		log.Error().Err(err).Msg("creating breakout service")
		os.Exit(1)
	}

	go handleTermination(ctx, cancel)

	err = breakout.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("running breakout service")
		cancel()
		os.Exit(1)
	}
}
