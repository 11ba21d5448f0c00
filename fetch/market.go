package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/breakout/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
)

// ErrNoData is returned when a well-formed response carries no data.
var ErrNoData = errors.New("no data")

// MarketDataConfig represents the configuration for the market data port.
type MarketDataConfig struct {
	// Fetcher represents the market data provider transport.
	Fetcher shared.MarketFetcher
	// Retrier retries failed provider requests.
	Retrier *Retrier
	// Notify sends the provided message.
	Notify func(message string)
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *MarketDataConfig) Validate() error {
	var errs error

	if cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("no market fetcher provided"))
	}
	if cfg.Retrier == nil {
		errs = errors.Join(errs, fmt.Errorf("no retrier provided"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("no notify function provided"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("no now function provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// MarketData represents the market data capabilities backed by a provider.
type MarketData struct {
	cfg          *MarketDataConfig
	quoteFailing atomic.Bool
}

// Ensure the MarketData implements the MarketData interface.
var _ shared.MarketData = (*MarketData)(nil)

// NewMarketData initializes a new market data port.
func NewMarketData(cfg *MarketDataConfig) (*MarketData, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating market data config: %w", err)
	}

	return &MarketData{cfg: cfg}, nil
}

// GetRangeCandle fetches the reference candle for the provided window. The last candle
// of the response is the reference candle.
func (m *MarketData) GetRangeCandle(ctx context.Context, symbol string, resolution shared.Resolution, start time.Time, end time.Time) (*shared.Candlestick, bool) {
	op := fmt.Sprintf("range candle %s", symbol)
	candles, err := Retry(ctx, m.cfg.Retrier, op, func(ctx context.Context) ([]shared.Candlestick, error) {
		rows, err := m.cfg.Fetcher.FetchHistory(ctx, symbol, resolution, start, end)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, Terminal(fmt.Errorf("%w: empty history for %s", ErrNoData, symbol))
		}

		candles, err := shared.ParseCandlesticks(rows, symbol, resolution)
		if err != nil {
			return nil, Terminal(fmt.Errorf("%w: %w", ErrMalformedPayload, err))
		}

		return candles, nil
	})
	if err != nil {
		if IsCancelled(err) {
			return nil, false
		}

		m.cfg.Logger.Error().Err(err).Msgf("fetching range candle for %s", symbol)
		m.cfg.Notify(fmt.Sprintf("⚠️ Failed to fetch the range candle for %s (%s - %s): %v",
			symbol, start.Format(shared.TimeOfDayLayout), end.Format(shared.TimeOfDayLayout), err))
		return nil, false
	}

	candle := candles[len(candles)-1]
	if len(candles) > 1 {
		m.cfg.Logger.Debug().Msgf("history for %s returned %d candles, using the last", symbol, len(candles))
	}

	return &candle, true
}

// findQuote returns the quote entry for the provided symbol, falling back to the
// first entry when the provider omits names.
func findQuote(entries []gjson.Result, symbol string) (gjson.Result, bool) {
	for idx := range entries {
		if entries[idx].Get("n").String() == symbol {
			return entries[idx], true
		}
	}

	if len(entries) > 0 && !entries[0].Get("n").Exists() {
		return entries[0], true
	}

	return gjson.Result{}, false
}

// fetchPrices fetches the last traded prices for the provided symbols in one
// retried request.
func (m *MarketData) fetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	op := fmt.Sprintf("quotes %v", symbols)
	return Retry(ctx, m.cfg.Retrier, op, func(ctx context.Context) (map[string]float64, error) {
		entries, err := m.cfg.Fetcher.FetchQuotes(ctx, symbols)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, Terminal(fmt.Errorf("%w: empty quotes for %v", ErrNoData, symbols))
		}

		prices := make(map[string]float64, len(symbols))
		for _, sym := range symbols {
			entry, ok := findQuote(entries, sym)
			if !ok {
				continue
			}
			lp := entry.Get("v.lp")
			if !lp.Exists() {
				continue
			}
			prices[sym] = lp.Float()
		}

		return prices, nil
	})
}

// GetLastPrice fetches the last traded price for the provided symbol.
func (m *MarketData) GetLastPrice(ctx context.Context, symbol string) (*shared.PriceQuote, bool) {
	prices, err := m.fetchPrices(ctx, []string{symbol})
	if err == nil {
		if _, ok := prices[symbol]; !ok {
			err = &FetchError{Kind: KindTerminal, Op: "quotes " + symbol, Attempts: 1,
				Cause: fmt.Errorf("%w: no last traded price for %s", ErrMalformedPayload, symbol)}
		}
	}
	if err != nil {
		if IsCancelled(err) {
			return nil, false
		}

		m.cfg.Logger.Error().Err(err).Msgf("fetching last price for %s", symbol)
		if m.quoteFailing.CompareAndSwap(false, true) {
			m.cfg.Notify(fmt.Sprintf("⚠️ Failed to fetch the last price for %s: %v", symbol, err))
		}
		return nil, false
	}

	if m.quoteFailing.CompareAndSwap(true, false) {
		m.cfg.Logger.Info().Msgf("last price for %s recovered", symbol)
	}

	return &shared.PriceQuote{
		Symbol:          symbol,
		LastTradedPrice: prices[symbol],
		ObservedAt:      m.cfg.Now(),
	}, true
}
