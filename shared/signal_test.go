package shared

import (
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestRiskPolicy(t *testing.T) {
	policy := DefaultRiskPolicy()
	assert.NoError(t, policy.Validate())

	// Ensure the acceptance range is inclusive.
	assert.True(t, policy.Accepts(35))
	assert.True(t, policy.Accepts(40))
	assert.True(t, policy.Accepts(45))
	assert.False(t, policy.Accepts(34.95))
	assert.False(t, policy.Accepts(45.05))

	assert.Equal(t, policy.StopLoss(40), float64(33))
	assert.Equal(t, policy.Target(40), float64(50))

	// Ensure invalid policies are rejected.
	invalid := RiskPolicy{PremiumLow: 50, PremiumHigh: 40, StopLossOffset: -1, TargetOffset: 10}
	assert.Error(t, invalid.Validate())
}

func TestNewTradeIntent(t *testing.T) {
	policy := DefaultRiskPolicy()
	now := time.Date(2024, time.January, 3, 9, 45, 0, 0, time.UTC)

	// Ensure an accepted premium creates an intent.
	intent, err := NewTradeIntent(Call, "NSE:NIFTY24JAN21150CE", 21101, 40, &policy, now)
	assert.NoError(t, err)
	assert.NotNil(t, intent)
	assert.Equal(t, intent.Direction, Call)
	assert.Equal(t, intent.EntryPrice, float64(40))
	assert.Equal(t, intent.StopLoss, float64(33))
	assert.Equal(t, intent.Target, float64(50))
	assert.True(t, intent.ID != "")
	assert.True(t, strings.Contains(intent.String(), "NSE:NIFTY24JAN21150CE"))

	// Ensure a premium outside the range is rejected.
	_, err = NewTradeIntent(Put, "NSE:NIFTY24JAN20900PE", 20949, 50, &policy, now)
	assert.Error(t, err)

	// Ensure an undirected intent is rejected.
	_, err = NewTradeIntent(None, "NSE:NIFTY24JAN20900PE", 20949, 40, &policy, now)
	assert.Error(t, err)

	// Ensure an empty instrument is rejected.
	_, err = NewTradeIntent(Put, "", 20949, 40, &policy, now)
	assert.Error(t, err)
}
