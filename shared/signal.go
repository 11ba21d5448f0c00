package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PriceQuote represents a last traded price snapshot for a symbol.
type PriceQuote struct {
	Symbol          string
	LastTradedPrice float64
	ObservedAt      time.Time
}

// RiskPolicy represents the premium acceptance range and the fixed stoploss and
// target offsets applied to an accepted premium.
type RiskPolicy struct {
	PremiumLow     float64
	PremiumHigh    float64
	StopLossOffset float64
	TargetOffset   float64
}

// DefaultRiskPolicy returns the default risk policy.
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		PremiumLow:     35,
		PremiumHigh:    45,
		StopLossOffset: 7,
		TargetOffset:   10,
	}
}

// Validate asserts the risk policy sane inputs.
func (p *RiskPolicy) Validate() error {
	var errs error

	if p.PremiumLow < 0 {
		errs = errors.Join(errs, fmt.Errorf("premium low cannot be negative"))
	}
	if p.PremiumLow > p.PremiumHigh {
		errs = errors.Join(errs, fmt.Errorf("premium low %.2f cannot be above premium high %.2f",
			p.PremiumLow, p.PremiumHigh))
	}
	if p.StopLossOffset < 0 {
		errs = errors.Join(errs, fmt.Errorf("stoploss offset cannot be negative"))
	}
	if p.TargetOffset < 0 {
		errs = errors.Join(errs, fmt.Errorf("target offset cannot be negative"))
	}

	return errs
}

// Accepts checks whether the provided premium is within the acceptance range.
func (p *RiskPolicy) Accepts(premium float64) bool {
	return premium >= p.PremiumLow && premium <= p.PremiumHigh
}

// StopLoss returns the stoploss for the provided premium.
func (p *RiskPolicy) StopLoss(premium float64) float64 {
	return premium - p.StopLossOffset
}

// Target returns the target for the provided premium.
func (p *RiskPolicy) Target(premium float64) float64 {
	return premium + p.TargetOffset
}

// TradeIntent represents an accepted breakout trade. It is never executed, only
// reported.
type TradeIntent struct {
	ID               string
	Direction        Direction
	InstrumentSymbol string
	UnderlyingPrice  float64
	EntryPrice       float64
	StopLoss         float64
	Target           float64
	CreatedOn        time.Time
}

// NewTradeIntent initializes a new trade intent from an accepted premium.
func NewTradeIntent(direction Direction, instrument string, underlying float64, premium float64,
	policy *RiskPolicy, created time.Time) (*TradeIntent, error) {
	if direction == None {
		return nil, fmt.Errorf("trade intent direction cannot be none")
	}
	if instrument == "" {
		return nil, fmt.Errorf("trade intent instrument cannot be an empty string")
	}
	if !policy.Accepts(premium) {
		return nil, fmt.Errorf("premium %.2f is outside the accepted range [%.2f, %.2f]",
			premium, policy.PremiumLow, policy.PremiumHigh)
	}

	return &TradeIntent{
		ID:               uuid.New().String(),
		Direction:        direction,
		InstrumentSymbol: instrument,
		UnderlyingPrice:  underlying,
		EntryPrice:       premium,
		StopLoss:         policy.StopLoss(premium),
		Target:           policy.Target(premium),
		CreatedOn:        created,
	}, nil
}

// String stringifies the trade intent for notifications.
func (t *TradeIntent) String() string {
	return fmt.Sprintf("%s %s @ %.2f | 🎯 target %.2f | ❌ stoploss %.2f",
		t.Direction.String(), t.InstrumentSymbol, t.EntryPrice, t.Target, t.StopLoss)
}

// DayOutcome represents the terminal record of a trading day.
type DayOutcome struct {
	ID       string
	Day      time.Time
	Symbol   string
	Phase    Phase
	High     float64
	Low      float64
	Intent   *TradeIntent
	ClosedOn time.Time
}
