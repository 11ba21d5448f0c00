package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/breakout/service"
	"github.com/dnldd/breakout/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/peterldowns/testy/assert"
)

// validConfig returns a valid provider backed config.
func validConfig() Config {
	cfg := defaultConfig()
	cfg.MarketDataURL = "https://provider.example/data"
	cfg.AccessToken = "token"
	cfg.AppID = "app"
	cfg.TelegramToken = "bot-token"
	cfg.ChatID = 42
	cfg.OptionPrefix = "NSE:BANKNIFTY24SEP"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr []string
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name: "valid replay config without provider credentials",
			modify: func(cfg *Config) {
				cfg.MarketDataURL = ""
				cfg.AccessToken = ""
				cfg.ReplayFilePath = "/tmp/replay.json"
			},
		},
		{
			name: "missing provider url and token",
			modify: func(cfg *Config) {
				cfg.MarketDataURL = ""
				cfg.AccessToken = ""
			},
			wantErr: []string{
				"market data url cannot be an empty string",
				"access token cannot be an empty string",
			},
		},
		{
			name:    "unsupported resolution",
			modify:  func(cfg *Config) { cfg.Resolution = 7 },
			wantErr: []string{"invalid resolution"},
		},
		{
			name:    "zero attempts",
			modify:  func(cfg *Config) { cfg.MaxAttempts = 0 },
			wantErr: []string{"max attempts must be at least 1"},
		},
		{
			name:    "unknown backoff",
			modify:  func(cfg *Config) { cfg.RetryBackoff = "exponential" },
			wantErr: []string{"unknown retry backoff"},
		},
		{
			name:    "missing chat id",
			modify:  func(cfg *Config) { cfg.ChatID = 0 },
			wantErr: []string{"chat id cannot be zero"},
		},
		{
			name:    "unknown timezone",
			modify:  func(cfg *Config) { cfg.Timezone = "Mars/Olympus" },
			wantErr: []string{"invalid timezone"},
		},
		{
			name: "inverted window",
			modify: func(cfg *Config) {
				cfg.WindowStart = "09:30:00"
				cfg.WindowEnd = "09:15:00"
			},
			wantErr: []string{"window start 09:30:00 must be before window end 09:15:00"},
		},
		{
			name:    "malformed day end",
			modify:  func(cfg *Config) { cfg.DayEnd = "3pm" },
			wantErr: []string{"invalid day end"},
		},
		{
			name: "inverted premium range",
			modify: func(cfg *Config) {
				cfg.PremiumLow = 50
				cfg.PremiumHigh = 40
			},
			wantErr: []string{"invalid risk policy"},
		},
		{
			name: "missing option chain settings",
			modify: func(cfg *Config) {
				cfg.OptionPrefix = ""
				cfg.StrikeStep = 0
				cfg.StrikeDepth = 0
			},
			wantErr: []string{
				"option prefix cannot be an empty string",
				"strike step must be positive",
				"strike depth must be at least 1",
			},
		},
		{
			name:    "poll mode without bot token",
			modify:  func(cfg *Config) { cfg.TelegramToken = "" },
			wantErr: []string{"telegram token required for the poll control mode"},
		},
		{
			name: "no control without bot token",
			modify: func(cfg *Config) {
				cfg.TelegramToken = ""
				cfg.ControlMode = service.ControlNone
			},
		},
		{
			name:    "unknown control mode",
			modify:  func(cfg *Config) { cfg.ControlMode = "carrier-pigeon" },
			wantErr: []string{"unknown control mode"},
		},
		{
			name:    "unknown log level",
			modify:  func(cfg *Config) { cfg.LogLevel = "loud" },
			wantErr: []string{"invalid log level"},
		},
		{
			name:    "malformed label",
			modify:  func(cfg *Config) { cfg.Labels = []string{"env"} },
			wantErr: []string{"invalid log label"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}

			if err == nil {
				t.Errorf("expected error(s) %v, got none", tt.wantErr)
				return
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain %q, got %v", want, err)
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args and environment
	origArgs := os.Args
	origEnv := os.Environ()
	defer func() {
		os.Args = origArgs
		for _, kv := range origEnv {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				os.Setenv(parts[0], parts[1])
			}
		}
	}()

	required := map[string]string{
		"marketdataurl": "https://provider.example/data",
		"accesstoken":   "token",
		"telegramtoken": "bot-token",
		"chatid":        "42",
		"optionprefix":  "NSE:BANKNIFTY24SEP",
	}

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		modify      func(cfg *Config)
	}{
		{
			name:   "required from env, rest defaulted",
			env:    required,
			args:   []string{"cmd"},
			modify: func(*Config) {},
		},
		{
			name: "all kinds from env",
			env: merge(required, map[string]string{
				"resolution":   "15",
				"retrydelay":   "500ms",
				"premiumlow":   "30.5",
				"pollinterval": "2s",
				"labels":       "env=prod,region=in",
			}),
			args: []string{"cmd"},
			modify: func(cfg *Config) {
				cfg.Resolution = 15
				cfg.RetryDelay = time.Millisecond * 500
				cfg.PremiumLow = 30.5
				cfg.PollInterval = time.Second * 2
				cfg.Labels = []string{"env=prod", "region=in"}
			},
		},
		{
			name: "flags override env",
			env:  required,
			args: []string{"cmd", "-symbol=NSE:FINNIFTY-INDEX", "-chatid=7", "-strikestep=50",
				"-controlmode=none", "-fetchdelay=10s"},
			modify: func(cfg *Config) {
				cfg.Symbol = "NSE:FINNIFTY-INDEX"
				cfg.ChatID = 7
				cfg.StrikeStep = 50
				cfg.ControlMode = service.ControlNone
				cfg.FetchDelay = time.Second * 10
			},
		},
		{
			name:        "missing required values",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"access token cannot be an empty string", "chat id cannot be zero"},
		},
		{
			name:        "malformed duration env",
			env:         merge(required, map[string]string{"pollinterval": "often"}),
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"pollinterval: parsing duration"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			// Set environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Set command-line arguments
			os.Args = tt.args

			cfg := defaultConfig()
			err := loadConfig(&cfg, "") // don't load .env file

			// Clean up env
			for k := range tt.env {
				os.Unsetenv(k)
			}

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			want := validConfig()
			want.AppID = ""
			tt.modify(&want)
			if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
				t.Errorf("mismatching config (-want +got):\n%s", diff)
			}
		})
	}
}

func merge(a map[string]string, b map[string]string) map[string]string {
	merged := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

func TestServiceConfig(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := validConfig()
	cfg.RetryBackoff = backoffFixed
	assert.NoError(t, cfg.Validate())

	svcCfg, err := cfg.serviceConfig(cancel)
	assert.NoError(t, err)
	assert.NoError(t, svcCfg.Validate())
	assert.Equal(t, svcCfg.Resolution, shared.FiveMinute)
	assert.Equal(t, svcCfg.WindowStart.String(), "09:25:00")
	assert.Equal(t, svcCfg.Location.String(), shared.IndiaLocation)
	assert.Equal(t, svcCfg.WindowEnd.String(), "09:30:00")
	assert.Equal(t, svcCfg.DayEnd.String(), "15:30:00")
	assert.Equal(t, svcCfg.Risk, shared.DefaultRiskPolicy())

	// Ensure the fixed backoff does not grow with attempts.
	assert.Equal(t, svcCfg.Retry.Backoff(1), cfg.RetryDelay)
	assert.Equal(t, svcCfg.Retry.Backoff(3), cfg.RetryDelay)

	cfg.RetryBackoff = backoffLinear
	svcCfg, err = cfg.serviceConfig(cancel)
	assert.NoError(t, err)
	assert.Equal(t, svcCfg.Retry.Backoff(3), cfg.RetryDelay*3)
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	// Ensure defaults watch the 09:25 - 09:30 five minute candle of the bank index.
	assert.Equal(t, cfg.Symbol, "NSE:NIFTYBANK-INDEX")
	assert.Equal(t, cfg.Resolution, 5)
	assert.Equal(t, cfg.WindowStart, "09:25:00")
	assert.Equal(t, cfg.WindowEnd, "09:30:00")
	assert.Equal(t, cfg.DayEnd, "15:30:00")
	assert.Equal(t, cfg.FetchDelay, time.Second*5)
	assert.Equal(t, cfg.PollInterval, time.Second*5)
	assert.Equal(t, cfg.StrikeStep, float64(100))

	// Ensure the default retry policy is three attempts with a linear one second backoff.
	assert.Equal(t, cfg.MaxAttempts, 3)
	assert.Equal(t, cfg.RetryDelay, time.Second)
	assert.Equal(t, cfg.RetryBackoff, backoffLinear)
	policy := cfg.retryPolicy()
	assert.Equal(t, policy.Backoff(1), time.Second)
	assert.Equal(t, policy.Backoff(2), time.Second*2)
}

func TestSetupLogger(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "debug"
	cfg.Labels = []string{"env=test"}
	assert.NoError(t, setupLogger(&cfg))

	cfg.LogLevel = "loud"
	assert.Error(t, setupLogger(&cfg))
}
