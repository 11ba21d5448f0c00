package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/breakout/engine"
	"github.com/dnldd/breakout/fetch"
	"github.com/dnldd/breakout/service"
	"github.com/dnldd/breakout/shared"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	backoffLinear = "linear"
	backoffFixed  = "fixed"
)

// Config is the configuration struct for the service.
type Config struct {
	// MarketDataURL is the market data provider base url.
	MarketDataURL string
	// AccessToken is the market data provider access token.
	AccessToken string
	// AppID is the market data provider app identifier.
	AppID string
	// Symbol is the watched underlying symbol.
	Symbol string
	// Resolution is the reference candle resolution in minutes.
	Resolution int
	// RequestTimeout is the deadline for a single provider request.
	RequestTimeout time.Duration
	// MaxAttempts is the maximum number of attempts per provider request.
	MaxAttempts int
	// RetryDelay is the base delay between provider request attempts.
	RetryDelay time.Duration
	// RetryBackoff is the retry backoff, linear or fixed.
	RetryBackoff string
	// TelegramToken is the chat bot token.
	TelegramToken string
	// ChatID is the operator chat id.
	ChatID int64
	// Timezone is the market timezone name.
	Timezone string
	// WindowStart is the reference range window start, HH:MM:SS.
	WindowStart string
	// WindowEnd is the reference range window end, HH:MM:SS.
	WindowEnd string
	// FetchDelay is the delay after the window closes before its candle is fetched.
	FetchDelay time.Duration
	// DayEnd is the time of day monitoring stops, HH:MM:SS.
	DayEnd string
	// PollInterval is the interval between price polls.
	PollInterval time.Duration
	// PremiumLow is the lowest accepted option premium.
	PremiumLow float64
	// PremiumHigh is the highest accepted option premium.
	PremiumHigh float64
	// StopLossOffset is the stoploss distance below the entry premium.
	StopLossOffset float64
	// TargetOffset is the target distance above the entry premium.
	TargetOffset float64
	// OptionPrefix is the option instrument symbol prefix.
	OptionPrefix string
	// StrikeStep is the distance between option strikes.
	StrikeStep float64
	// StrikeDepth is the number of strikes considered per side.
	StrikeDepth int
	// ControlMode is the operator command channel, poll, webhook or none.
	ControlMode string
	// WebhookAddress is the webhook listen address.
	WebhookAddress string
	// WebhookPath is the webhook update route.
	WebhookPath string
	// Autostart is the cron schedule the engine is started on.
	Autostart string
	// JournalEndpoint is the outcome journal endpoint.
	JournalEndpoint string
	// JournalUser is the outcome journal user.
	JournalUser string
	// JournalPass is the outcome journal pass.
	JournalPass string
	// ReplayFilePath is the filepath to replay market data from.
	ReplayFilePath string
	// LogLevel is the log level.
	LogLevel string
	// Labels are optional key=value pairs attached to every log entry.
	Labels []string

	registeredFlags map[string]bool
}

// defaultConfig returns the built-in configuration defaults.
func defaultConfig() Config {
	risk := shared.DefaultRiskPolicy()

	return Config{
		Symbol:         "NSE:NIFTYBANK-INDEX",
		Resolution:     5,
		RequestTimeout: time.Second * 10,
		MaxAttempts:    3,
		RetryDelay:     time.Second,
		RetryBackoff:   backoffLinear,
		Timezone:       shared.IndiaLocation,
		WindowStart:    "09:25:00",
		WindowEnd:      "09:30:00",
		FetchDelay:     engine.DefaultFetchDelay,
		DayEnd:         engine.DefaultDayEnd.String(),
		PollInterval:   engine.DefaultPollInterval,
		PremiumLow:     risk.PremiumLow,
		PremiumHigh:    risk.PremiumHigh,
		StopLossOffset: risk.StopLossOffset,
		TargetOffset:   risk.TargetOffset,
		StrikeStep:     100,
		StrikeDepth:    5,
		ControlMode:    service.ControlPoll,
		WebhookAddress: ":8080",
		WebhookPath:    "/telegram",
		LogLevel:       zerolog.LevelInfoValue,
	}
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
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
	if _, err := shared.ResolutionFromMinutes(cfg.Resolution); err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid resolution: %w", err))
	}
	if cfg.RequestTimeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("request timeout must be positive"))
	}
	if cfg.MaxAttempts < 1 {
		errs = errors.Join(errs, fmt.Errorf("max attempts must be at least 1"))
	}
	if cfg.RetryDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("retry delay cannot be negative"))
	}
	if cfg.RetryBackoff != backoffLinear && cfg.RetryBackoff != backoffFixed {
		errs = errors.Join(errs, fmt.Errorf("unknown retry backoff: %q", cfg.RetryBackoff))
	}
	if cfg.ChatID == 0 {
		errs = errors.Join(errs, fmt.Errorf("chat id cannot be zero"))
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid timezone: %w", err))
	}

	windowStart, startErr := shared.ParseTimeOfDay(cfg.WindowStart)
	if startErr != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid window start: %w", startErr))
	}
	windowEnd, endErr := shared.ParseTimeOfDay(cfg.WindowEnd)
	if endErr != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid window end: %w", endErr))
	}
	if startErr == nil && endErr == nil && !windowStart.Before(windowEnd) {
		errs = errors.Join(errs, fmt.Errorf("window start %s must be before window end %s",
			cfg.WindowStart, cfg.WindowEnd))
	}
	if _, err := shared.ParseTimeOfDay(cfg.DayEnd); err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid day end: %w", err))
	}

	if cfg.FetchDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch delay cannot be negative"))
	}
	if cfg.PollInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval must be positive"))
	}
	risk := cfg.riskPolicy()
	if err := risk.Validate(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid risk policy: %w", err))
	}
	if cfg.OptionPrefix == "" {
		errs = errors.Join(errs, fmt.Errorf("option prefix cannot be an empty string"))
	}
	if cfg.StrikeStep <= 0 {
		errs = errors.Join(errs, fmt.Errorf("strike step must be positive"))
	}
	if cfg.StrikeDepth < 1 {
		errs = errors.Join(errs, fmt.Errorf("strike depth must be at least 1"))
	}

	switch cfg.ControlMode {
	case service.ControlPoll:
		if cfg.TelegramToken == "" {
			errs = errors.Join(errs, fmt.Errorf("telegram token required for the %s control mode", service.ControlPoll))
		}
	case service.ControlWebhook:
		if cfg.WebhookAddress == "" || cfg.WebhookPath == "" {
			errs = errors.Join(errs, fmt.Errorf("webhook address and path required for the %s control mode",
				service.ControlWebhook))
		}
	case service.ControlNone:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown control mode: %q", cfg.ControlMode))
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid log level: %w", err))
	}
	if _, err := cfg.labels(); err != nil {
		errs = errors.Join(errs, err)
	}

	return errs
}

// riskPolicy returns the configured risk policy.
func (cfg *Config) riskPolicy() shared.RiskPolicy {
	return shared.RiskPolicy{
		PremiumLow:     cfg.PremiumLow,
		PremiumHigh:    cfg.PremiumHigh,
		StopLossOffset: cfg.StopLossOffset,
		TargetOffset:   cfg.TargetOffset,
	}
}

// retryPolicy returns the configured retry policy.
func (cfg *Config) retryPolicy() fetch.RetryPolicy {
	if cfg.RetryBackoff == backoffFixed {
		return fetch.FixedPolicy(cfg.MaxAttempts, cfg.RetryDelay)
	}
	return fetch.LinearPolicy(cfg.MaxAttempts, cfg.RetryDelay)
}

// labels parses the configured log labels.
func (cfg *Config) labels() (map[string]string, error) {
	labels := make(map[string]string, len(cfg.Labels))
	for _, entry := range cfg.Labels {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid log label %q, expected key=value", entry)
		}
		labels[key] = value
	}
	return labels, nil
}

// serviceConfig converts the validated config into the breakout service config.
func (cfg *Config) serviceConfig(cancel context.CancelFunc) (*service.BreakoutConfig, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	resolution, err := shared.ResolutionFromMinutes(cfg.Resolution)
	if err != nil {
		return nil, err
	}
	windowStart, err := shared.ParseTimeOfDay(cfg.WindowStart)
	if err != nil {
		return nil, err
	}
	windowEnd, err := shared.ParseTimeOfDay(cfg.WindowEnd)
	if err != nil {
		return nil, err
	}
	dayEnd, err := shared.ParseTimeOfDay(cfg.DayEnd)
	if err != nil {
		return nil, err
	}

	return &service.BreakoutConfig{
		MarketDataURL:   cfg.MarketDataURL,
		AccessToken:     cfg.AccessToken,
		AppID:           cfg.AppID,
		Symbol:          cfg.Symbol,
		Resolution:      resolution,
		RequestTimeout:  cfg.RequestTimeout,
		Retry:           cfg.retryPolicy(),
		TelegramToken:   cfg.TelegramToken,
		ChatID:          cfg.ChatID,
		Location:        loc,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		FetchDelay:      cfg.FetchDelay,
		DayEnd:          dayEnd,
		PollInterval:    cfg.PollInterval,
		Risk:            cfg.riskPolicy(),
		OptionPrefix:    cfg.OptionPrefix,
		StrikeStep:      cfg.StrikeStep,
		StrikeDepth:     cfg.StrikeDepth,
		ControlMode:     cfg.ControlMode,
		WebhookAddress:  cfg.WebhookAddress,
		WebhookPath:     cfg.WebhookPath,
		Autostart:       cfg.Autostart,
		JournalEndpoint: cfg.JournalEndpoint,
		JournalUser:     cfg.JournalUser,
		JournalPass:     cfg.JournalPass,
		ReplayFilePath:  cfg.ReplayFilePath,
		Cancel:          cancel,
	}, nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
// The flag defaults to the same-named environment variable if set, otherwise to the current value.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	// Durations are int64 kinds, match them before the kind switch.
	if d, ok := value.(*time.Duration); ok {
		def := *d
		if defValue != "" {
			parsed, err := time.ParseDuration(defValue)
			if err != nil {
				return fmt.Errorf("%s: parsing duration %q: %w", name, defValue, err)
			}
			def = parsed
		}
		flag.DurationVar(d, name, def, usage)
		return nil
	}

	switch val.Elem().Kind() {
	case reflect.String:
		def := *value.(*string)
		if defValue != "" {
			def = defValue
		}
		flag.StringVar(value.(*string), name, def, usage)
	case reflect.Bool:
		def := *value.(*bool)
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		def := *value.(*int)
		if defValue != "" {
			parsed, err := strconv.Atoi(defValue)
			if err != nil {
				return fmt.Errorf("%s: parsing int %q: %w", name, defValue, err)
			}
			def = parsed
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Int64:
		def := *value.(*int64)
		if defValue != "" {
			parsed, err := strconv.ParseInt(defValue, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: parsing int64 %q: %w", name, defValue, err)
			}
			def = parsed
		}
		flag.Int64Var(value.(*int64), name, def, usage)
	case reflect.Float64:
		def := *value.(*float64)
		if defValue != "" {
			parsed, err := strconv.ParseFloat(defValue, 64)
			if err != nil {
				return fmt.Errorf("%s: parsing float %q: %w", name, defValue, err)
			}
			def = parsed
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"marketdataurl", &cfg.MarketDataURL, "the market data provider base url"},
		{"accesstoken", &cfg.AccessToken, "the market data provider access token"},
		{"appid", &cfg.AppID, "the market data provider app id"},
		{"symbol", &cfg.Symbol, "the watched underlying symbol"},
		{"resolution", &cfg.Resolution, "the reference candle resolution in minutes"},
		{"requesttimeout", &cfg.RequestTimeout, "the provider request timeout"},
		{"maxattempts", &cfg.MaxAttempts, "the maximum attempts per provider request"},
		{"retrydelay", &cfg.RetryDelay, "the base delay between provider request attempts"},
		{"retrybackoff", &cfg.RetryBackoff, "the retry backoff, linear or fixed"},
		{"telegramtoken", &cfg.TelegramToken, "the telegram bot token"},
		{"chatid", &cfg.ChatID, "the operator chat id"},
		{"timezone", &cfg.Timezone, "the market timezone"},
		{"windowstart", &cfg.WindowStart, "the range window start, HH:MM:SS"},
		{"windowend", &cfg.WindowEnd, "the range window end, HH:MM:SS"},
		{"fetchdelay", &cfg.FetchDelay, "the delay before the range candle is fetched"},
		{"dayend", &cfg.DayEnd, "the time of day monitoring stops, HH:MM:SS"},
		{"pollinterval", &cfg.PollInterval, "the price poll interval"},
		{"premiumlow", &cfg.PremiumLow, "the lowest accepted option premium"},
		{"premiumhigh", &cfg.PremiumHigh, "the highest accepted option premium"},
		{"stoplossoffset", &cfg.StopLossOffset, "the stoploss offset below the entry premium"},
		{"targetoffset", &cfg.TargetOffset, "the target offset above the entry premium"},
		{"optionprefix", &cfg.OptionPrefix, "the option instrument symbol prefix"},
		{"strikestep", &cfg.StrikeStep, "the distance between option strikes"},
		{"strikedepth", &cfg.StrikeDepth, "the number of strikes considered per side"},
		{"controlmode", &cfg.ControlMode, "the operator command channel, poll, webhook or none"},
		{"webhookaddr", &cfg.WebhookAddress, "the webhook listen address"},
		{"webhookpath", &cfg.WebhookPath, "the webhook update route"},
		{"autostart", &cfg.Autostart, "the cron schedule the engine is started on"},
		{"journalendpoint", &cfg.JournalEndpoint, "the outcome journal endpoint"},
		{"journaluser", &cfg.JournalUser, "the outcome journal user"},
		{"journalpass", &cfg.JournalPass, "the outcome journal pass"},
		{"replayfilepath", &cfg.ReplayFilePath, "the filepath to replay market data from"},
		{"loglevel", &cfg.LogLevel, "the log level"},
		{"labels", &cfg.Labels, "comma separated key=value log labels"},
	}

	// Register command line arguments using loaded environment variables as defaults.
	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
