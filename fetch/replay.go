package fetch

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dnldd/breakout/shared"
	"github.com/tidwall/gjson"
)

// ReplayConfig represents the replay data source configuration.
type ReplayConfig struct {
	// FilePath is the filepath to the replay market data.
	FilePath string
	// Data is the raw replay data, used when no file path is provided.
	Data []byte
}

// ReplayFetcher serves recorded market data instead of querying a provider. Each quote
// request for a symbol advances its price sequence, the last price repeats.
type ReplayFetcher struct {
	candles []gjson.Result
	quotes  map[string][]float64
	cursors map[string]int
	mtx     sync.Mutex
}

// Ensure the ReplayFetcher implements the MarketFetcher interface.
var _ shared.MarketFetcher = (*ReplayFetcher)(nil)

// loadReplayData loads the replay data bytes from the provided file path.
func loadReplayData(filepath string) ([]byte, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading replay data from file with path '%s': %v", filepath, err)
	}

	return readb, nil
}

// NewReplayFetcher initializes a new replay data source.
func NewReplayFetcher(cfg *ReplayConfig) (*ReplayFetcher, error) {
	data := cfg.Data
	if cfg.FilePath != "" {
		b, err := loadReplayData(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("loading replay data: %w", err)
		}
		data = b
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("replay data is not valid json")
	}

	r := &ReplayFetcher{
		candles: gjson.GetBytes(data, "candles").Array(),
		quotes:  make(map[string][]float64),
		cursors: make(map[string]int),
	}

	gjson.GetBytes(data, "quotes").ForEach(func(key, value gjson.Result) bool {
		prices := value.Array()
		seq := make([]float64, 0, len(prices))
		for idx := range prices {
			seq = append(seq, prices[idx].Float())
		}
		r.quotes[key.String()] = seq
		return true
	})

	return r, nil
}

// FetchHistory returns the recorded candles starting within the provided window.
func (r *ReplayFetcher) FetchHistory(ctx context.Context, symbol string, resolution shared.Resolution, start time.Time, end time.Time) ([]gjson.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]gjson.Result, 0, len(r.candles))
	for idx := range r.candles {
		at := time.Unix(r.candles[idx].Get("0").Int(), 0)
		if at.Before(start) || !at.Before(end) {
			continue
		}
		rows = append(rows, r.candles[idx])
	}

	return rows, nil
}

// FetchQuotes returns the next recorded price for each of the provided symbols. Symbols
// without recorded prices are returned without a price.
func (r *ReplayFetcher) FetchQuotes(ctx context.Context, symbols []string) ([]gjson.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	entries := make([]gjson.Result, 0, len(symbols))
	for _, sym := range symbols {
		seq, ok := r.quotes[sym]
		if !ok || len(seq) == 0 {
			entries = append(entries, gjson.Parse(`{"n":`+strconv.Quote(sym)+`,"v":{}}`))
			continue
		}

		idx := r.cursors[sym]
		if idx < len(seq)-1 {
			r.cursors[sym] = idx + 1
		}

		entry := `{"n":` + strconv.Quote(sym) + `,"v":{"lp":` +
			strconv.FormatFloat(seq[idx], 'f', -1, 64) + `}}`
		entries = append(entries, gjson.Parse(entry))
	}

	return entries, nil
}
