package shared

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
)

// MarketFetcher defines the requirements for fetching raw market data from a provider.
type MarketFetcher interface {
	// FetchHistory fetches historical candle rows for the provided time window.
	FetchHistory(ctx context.Context, symbol string, resolution Resolution, start time.Time, end time.Time) ([]gjson.Result, error)
	// FetchQuotes fetches quote entries for the provided symbols.
	FetchQuotes(ctx context.Context, symbols []string) ([]gjson.Result, error)
}

// MarketData defines the market data capabilities required by the breakout engine.
type MarketData interface {
	// GetRangeCandle returns the reference candle for the provided window.
	GetRangeCandle(ctx context.Context, symbol string, resolution Resolution, start time.Time, end time.Time) (*Candlestick, bool)
	// GetLastPrice returns the latest traded price for the provided symbol.
	GetLastPrice(ctx context.Context, symbol string) (*PriceQuote, bool)
}

// OptionSelector defines the requirements for selecting an option contract to trade a breakout.
type OptionSelector interface {
	// SelectOption returns the instrument symbol and premium of an eligible option
	// for the provided breakout direction.
	SelectOption(ctx context.Context, direction Direction, underlying float64) (string, float64, error)
}
