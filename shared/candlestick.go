package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// candleRowSize is the number of fields in a provider candle row: [t,o,h,l,c,v].
	candleRowSize = 6
)

// Candlestick represents a unit candlestick for a market.
type Candlestick struct {
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	PeriodStart time.Time
	PeriodEnd   time.Time

	// Metadata fields.
	Market     string
	Resolution Resolution
}

// Validate asserts the candlestick's prices are internally consistent.
func (c *Candlestick) Validate() error {
	var errs error

	if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 || c.Volume < 0 {
		errs = errors.Join(errs, fmt.Errorf("candle values cannot be negative"))
	}
	if c.Low > c.High {
		errs = errors.Join(errs, fmt.Errorf("candle low %.2f is above high %.2f", c.Low, c.High))
	}
	if c.Open < c.Low || c.Open > c.High {
		errs = errors.Join(errs, fmt.Errorf("candle open %.2f is outside [%.2f, %.2f]", c.Open, c.Low, c.High))
	}
	if c.Close < c.Low || c.Close > c.High {
		errs = errors.Join(errs, fmt.Errorf("candle close %.2f is outside [%.2f, %.2f]", c.Close, c.Low, c.High))
	}

	return errs
}

// ParseCandlesticks parses candlesticks from the provided provider rows. Each row is
// expected to be of the form [epoch, open, high, low, close, volume].
func ParseCandlesticks(rows []gjson.Result, market string, resolution Resolution) ([]Candlestick, error) {
	candles := make([]Candlestick, 0, len(rows))

	for idx := range rows {
		fields := rows[idx].Array()
		if len(fields) < candleRowSize {
			return nil, fmt.Errorf("candle row %d: expected %d fields, got %d",
				idx, candleRowSize, len(fields))
		}

		start := time.Unix(fields[0].Int(), 0)
		candle := Candlestick{
			Open:        fields[1].Float(),
			High:        fields[2].Float(),
			Low:         fields[3].Float(),
			Close:       fields[4].Float(),
			Volume:      fields[5].Float(),
			PeriodStart: start,
			PeriodEnd:   start.Add(resolution.Duration()),
			Market:      market,
			Resolution:  resolution,
		}

		candles = append(candles, candle)
	}

	return candles, nil
}
