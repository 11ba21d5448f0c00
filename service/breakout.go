package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dnldd/breakout/control"
	"github.com/dnldd/breakout/database"
	"github.com/dnldd/breakout/engine"
	"github.com/dnldd/breakout/fetch"
	"github.com/dnldd/breakout/notify"
	"github.com/dnldd/breakout/shared"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// ControlPoll reads operator commands by polling bot updates.
	ControlPoll = "poll"
	// ControlWebhook reads operator commands from pushed bot updates.
	ControlWebhook = "webhook"
	// ControlNone disables operator commands.
	ControlNone = "none"

	// pollTimeout is the long poll timeout for bot updates in seconds.
	pollTimeout = 30
	// journalTimeout is the deadline for recording a day outcome.
	journalTimeout = time.Second * 10
)

// BreakoutConfig represents the configuration struct for the breakout service.
type BreakoutConfig struct {
	// MarketDataURL is the market data provider base url.
	MarketDataURL string
	// AccessToken is the market data provider access token.
	AccessToken string
	// AppID is the market data provider app identifier.
	AppID string
	// Symbol is the watched underlying symbol.
	Symbol string
	// Resolution is the reference candle resolution.
	Resolution shared.Resolution
	// RequestTimeout is the deadline for a single provider request.
	RequestTimeout time.Duration
	// Retry is the provider request retry policy.
	Retry fetch.RetryPolicy
	// TelegramToken is the chat bot token, notifications are logged without it.
	TelegramToken string
	// TelegramEndpoint is the bot api endpoint format, the public api when empty.
	TelegramEndpoint string
	// ChatID is the operator's chat, the notification target and the authorized identity.
	ChatID int64
	// Location is the market timezone.
	Location *time.Location
	// WindowStart is the start of the reference range window.
	WindowStart shared.TimeOfDay
	// WindowEnd is the end of the reference range window.
	WindowEnd shared.TimeOfDay
	// FetchDelay is the delay after the window closes before its candle is fetched.
	FetchDelay time.Duration
	// DayEnd is the time of day monitoring stops.
	DayEnd shared.TimeOfDay
	// PollInterval is the interval between price polls.
	PollInterval time.Duration
	// Risk is the premium acceptance and exit policy.
	Risk shared.RiskPolicy
	// OptionPrefix is the option instrument symbol prefix.
	OptionPrefix string
	// StrikeStep is the distance between option strikes.
	StrikeStep float64
	// StrikeDepth is the number of strikes considered per side.
	StrikeDepth int
	// ControlMode is the operator command channel: poll, webhook or none.
	ControlMode string
	// WebhookAddress is the webhook listen address.
	WebhookAddress string
	// WebhookPath is the webhook update route.
	WebhookPath string
	// Autostart is the cron schedule the engine is started on, optional.
	Autostart string
	// JournalEndpoint is the outcome journal endpoint, optional.
	JournalEndpoint string
	// JournalUser is the outcome journal user.
	JournalUser string
	// JournalPass is the outcome journal pass.
	JournalPass string
	// ReplayFilePath is the filepath to replay market data from instead of the provider.
	ReplayFilePath string
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *BreakoutConfig) Validate() error {
	var errs error

	if cfg.ReplayFilePath == "" {
		if cfg.MarketDataURL == "" {
			errs = errors.Join(errs, fmt.Errorf("market data url cannot be an empty string"))
		}
		if cfg.AccessToken == "" {
			errs = errors.Join(errs, fmt.Errorf("access token cannot be an empty string"))
		}
	}
	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.RequestTimeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("request timeout must be positive"))
	}
	if err := cfg.Retry.Validate(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid retry policy: %w", err))
	}
	if cfg.ChatID == 0 {
		errs = errors.Join(errs, fmt.Errorf("chat id cannot be zero"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("location cannot be nil"))
	}
	switch cfg.ControlMode {
	case ControlPoll:
		if cfg.TelegramToken == "" {
			errs = errors.Join(errs, fmt.Errorf("telegram token required for the %s control mode", ControlPoll))
		}
	case ControlWebhook:
		if cfg.WebhookAddress == "" || cfg.WebhookPath == "" {
			errs = errors.Join(errs, fmt.Errorf("webhook address and path required for the %s control mode", ControlWebhook))
		}
	case ControlNone:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown control mode: %q", cfg.ControlMode))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// botTimeout returns the client timeout for bot requests. It outlasts the long poll.
func botTimeout(cfg *BreakoutConfig) time.Duration {
	return pollTimeout*time.Second + cfg.RequestTimeout
}

// Breakout represents the breakout watching service.
type Breakout struct {
	cfg        *BreakoutConfig
	client     *fetch.Client
	notifier   *notify.Notifier
	engine     *engine.Engine
	controller *control.Controller
	poller     *control.Poller
	webhook    *control.Webhook
	autostart  *control.Autostart
	journal    *database.Database
	logger     *zerolog.Logger
	wg         sync.WaitGroup
}

// NewBreakout initializes a new breakout service.
func NewBreakout(ctx context.Context, cfg *BreakoutConfig) (*Breakout, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating breakout config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "breakout").Logger()

	var bot *tgbotapi.BotAPI
	var sender notify.Sender
	notifyLogger := logger.With().Str("component", "notify").Logger()
	if cfg.TelegramToken != "" {
		var err error
		bot, err = notify.NewBot(cfg.TelegramToken, cfg.TelegramEndpoint, botTimeout(cfg))
		if err != nil {
			return nil, err
		}
		sender = notify.NewTelegramSender(bot)
	} else {
		sender = &notify.LogSender{Logger: &notifyLogger}
	}

	notifier, err := notify.NewNotifier(&notify.NotifierConfig{
		Sender: sender,
		ChatID: cfg.ChatID,
		Logger: &notifyLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating notifier: %w", err)
	}

	var fetcher shared.MarketFetcher
	var client *fetch.Client
	if cfg.ReplayFilePath != "" {
		fetcher, err = fetch.NewReplayFetcher(&fetch.ReplayConfig{FilePath: cfg.ReplayFilePath})
		if err != nil {
			return nil, fmt.Errorf("creating replay fetcher: %w", err)
		}
	} else {
		client, err = fetch.NewClient(&fetch.ClientConfig{
			BaseURL:     cfg.MarketDataURL,
			AccessToken: cfg.AccessToken,
			AppID:       cfg.AppID,
			Timeout:     cfg.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating market data client: %w", err)
		}
		fetcher = client
	}

	fetchLogger := logger.With().Str("component", "fetch").Logger()
	marketData, err := fetch.NewMarketData(&fetch.MarketDataConfig{
		Fetcher: fetcher,
		Retrier: &fetch.Retrier{
			Policy:         cfg.Retry,
			AttemptTimeout: cfg.RequestTimeout,
			Sleep:          shared.Sleep,
			Logger:         &fetchLogger,
		},
		Notify: notifier.Notify,
		Now:    time.Now,
		Logger: &fetchLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating market data: %w", err)
	}

	risk := cfg.Risk
	options, err := fetch.NewOptionChain(&fetch.OptionChainConfig{
		Market:     marketData,
		Prefix:     cfg.OptionPrefix,
		StrikeStep: cfg.StrikeStep,
		Depth:      cfg.StrikeDepth,
		Risk:       &risk,
		Logger:     &fetchLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating option chain: %w", err)
	}

	var journal *database.Database
	var recordOutcome func(outcome *shared.DayOutcome) error
	if cfg.JournalEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		journal, err = database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.JournalEndpoint,
			User:     cfg.JournalUser,
			Pass:     cfg.JournalPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating outcome journal: %w", err)
		}

		recordOutcome = func(outcome *shared.DayOutcome) error {
			ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
			defer cancel()
			return journal.PersistOutcome(ctx, outcome)
		}
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	eng, err := engine.NewEngine(&engine.EngineConfig{
		Symbol:        cfg.Symbol,
		Resolution:    cfg.Resolution,
		WindowStart:   cfg.WindowStart,
		WindowEnd:     cfg.WindowEnd,
		FetchDelay:    cfg.FetchDelay,
		DayEnd:        cfg.DayEnd,
		PollInterval:  cfg.PollInterval,
		Location:      cfg.Location,
		Market:        marketData,
		Options:       options,
		Risk:          cfg.Risk,
		Notify:        notifier.Notify,
		RecordOutcome: recordOutcome,
		Logger:        &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	operator := strconv.FormatInt(cfg.ChatID, 10)
	controlLogger := logger.With().Str("component", "control").Logger()
	controller, err := control.NewController(&control.ControllerConfig{
		OperatorID: operator,
		Engine:     eng,
		Notify:     notifier.Notify,
		Logger:     &controlLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating controller: %w", err)
	}

	svc := &Breakout{
		cfg:        cfg,
		client:     client,
		notifier:   notifier,
		engine:     eng,
		controller: controller,
		journal:    journal,
		logger:     &logger,
	}

	switch cfg.ControlMode {
	case ControlPoll:
		svc.poller, err = control.NewPoller(&control.PollerConfig{
			Source:  bot,
			Timeout: pollTimeout,
			Logger:  &controlLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating poller: %w", err)
		}
	case ControlWebhook:
		svc.webhook, err = control.NewWebhook(&control.WebhookConfig{
			Address:    cfg.WebhookAddress,
			Path:       cfg.WebhookPath,
			OperatorID: operator,
			Dispatch:   controller.Dispatch,
			Logger:     &controlLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating webhook: %w", err)
		}
	}

	if cfg.Autostart != "" {
		svc.autostart, err = control.NewAutostart(&control.AutostartConfig{
			Schedule:   cfg.Autostart,
			OperatorID: operator,
			Location:   cfg.Location,
			Dispatch:   controller.Dispatch,
			Logger:     &controlLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating autostart: %w", err)
		}
	}

	return svc, nil
}

// Engine returns the breakout engine.
func (b *Breakout) Engine() *engine.Engine {
	return b.engine
}

// Controller returns the command controller.
func (b *Breakout) Controller() *control.Controller {
	return b.controller
}

// Run handles the lifecycle processes of the breakout service. It refuses to run the
// engine if the market data provider rejects the configured credentials.
func (b *Breakout) Run(ctx context.Context) error {
	if b.client != nil {
		verifyCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
		err := b.client.VerifyAccess(verifyCtx, b.cfg.Symbol)
		cancel()
		if errors.Is(err, fetch.ErrUnauthorized) {
			return fmt.Errorf("market data access denied: %w", err)
		}
		if err != nil {
			b.logger.Warn().Err(err).Msgf("market data provider unreachable at startup")
		}
	}

	b.wg.Add(2)

	go func() {
		b.notifier.Run(ctx)
		b.wg.Done()
	}()

	go func() {
		b.engine.Run(ctx)
		b.wg.Done()
	}()

	switch {
	case b.poller != nil:
		b.wg.Add(1)
		go func() {
			b.controller.Run(ctx, b.poller.Subscribe(ctx))
			b.wg.Done()
		}()
	case b.webhook != nil:
		b.wg.Add(1)
		go func() {
			if err := b.webhook.Run(ctx); err != nil {
				b.logger.Error().Err(err).Msgf("running webhook")
				b.cfg.Cancel()
			}
			b.wg.Done()
		}()
	}

	if b.autostart != nil {
		b.wg.Add(1)
		go func() {
			b.autostart.Run(ctx)
			b.wg.Done()
		}()
	}

	b.notifier.Notify(fmt.Sprintf("🤖 Breakout watcher for %s online, send /start to begin", b.cfg.Symbol))
	b.logger.Info().Msgf("breakout service running for %s", b.cfg.Symbol)

	b.wg.Wait()

	return nil
}
