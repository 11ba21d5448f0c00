package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/dnldd/breakout/shared"
	"github.com/rs/zerolog"
)

// OptionChainConfig represents the configuration for the option chain selector.
type OptionChainConfig struct {
	// Market fetches option premiums.
	Market *MarketData
	// Prefix is the instrument symbol prefix, e.g. NSE:NIFTY24JAN.
	Prefix string
	// StrikeStep is the distance between consecutive strikes.
	StrikeStep float64
	// Depth is the number of strikes considered per side.
	Depth int
	// Risk is the premium acceptance policy.
	Risk *shared.RiskPolicy
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *OptionChainConfig) Validate() error {
	var errs error

	if cfg.Market == nil {
		errs = errors.Join(errs, fmt.Errorf("no market data provided"))
	}
	if cfg.Prefix == "" {
		errs = errors.Join(errs, fmt.Errorf("no option prefix provided"))
	}
	if cfg.StrikeStep <= 0 {
		errs = errors.Join(errs, fmt.Errorf("strike step must be positive"))
	}
	if cfg.Depth < 1 {
		errs = errors.Join(errs, fmt.Errorf("strike depth must be at least 1"))
	}
	if cfg.Risk == nil {
		errs = errors.Join(errs, fmt.Errorf("no risk policy provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// OptionChain selects an option contract to trade a breakout with.
type OptionChain struct {
	cfg *OptionChainConfig
}

// Ensure the OptionChain implements the OptionSelector interface.
var _ shared.OptionSelector = (*OptionChain)(nil)

// NewOptionChain initializes a new option chain selector.
func NewOptionChain(cfg *OptionChainConfig) (*OptionChain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating option chain config: %w", err)
	}

	return &OptionChain{cfg: cfg}, nil
}

// Strikes returns the out-of-the-money strikes for the provided direction, nearest
// the money first.
func (o *OptionChain) Strikes(direction shared.Direction, underlying float64) []float64 {
	step := o.cfg.StrikeStep
	strikes := make([]float64, 0, o.cfg.Depth)

	switch direction {
	case shared.Call:
		first := math.Ceil(underlying/step) * step
		for i := 0; i < o.cfg.Depth; i++ {
			strikes = append(strikes, first+float64(i)*step)
		}
	case shared.Put:
		first := math.Floor(underlying/step) * step
		for i := 0; i < o.cfg.Depth; i++ {
			strikes = append(strikes, first-float64(i)*step)
		}
	}

	return strikes
}

// Symbol returns the instrument symbol for the provided strike and direction.
func (o *OptionChain) Symbol(direction shared.Direction, strike float64) string {
	return o.cfg.Prefix + strconv.FormatFloat(strike, 'f', -1, 64) + direction.String()
}

// distance returns how far the premium is from the acceptance range.
func (o *OptionChain) distance(premium float64) float64 {
	switch {
	case premium < o.cfg.Risk.PremiumLow:
		return o.cfg.Risk.PremiumLow - premium
	case premium > o.cfg.Risk.PremiumHigh:
		return premium - o.cfg.Risk.PremiumHigh
	default:
		return 0
	}
}

// SelectOption returns the nearest-the-money option with a premium in the accepted
// range, else the option whose premium is closest to the range.
func (o *OptionChain) SelectOption(ctx context.Context, direction shared.Direction, underlying float64) (string, float64, error) {
	if direction == shared.None {
		return "", 0, fmt.Errorf("cannot select an option without a direction")
	}

	strikes := o.Strikes(direction, underlying)
	symbols := make([]string, 0, len(strikes))
	for _, strike := range strikes {
		symbols = append(symbols, o.Symbol(direction, strike))
	}

	prices, err := o.cfg.Market.fetchPrices(ctx, symbols)
	if err != nil {
		return "", 0, fmt.Errorf("fetching option premiums: %w", err)
	}

	var best string
	bestDistance := math.Inf(1)
	for _, sym := range symbols {
		premium, ok := prices[sym]
		if !ok {
			o.cfg.Logger.Debug().Msgf("no premium for %s", sym)
			continue
		}
		if o.cfg.Risk.Accepts(premium) {
			return sym, premium, nil
		}
		if d := o.distance(premium); d < bestDistance {
			best = sym
			bestDistance = d
		}
	}

	if best == "" {
		return "", 0, fmt.Errorf("%w: no option premiums for %v", ErrNoData, symbols)
	}

	return best, prices[best], nil
}
