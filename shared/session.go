package shared

import (
	"fmt"
	"strings"
	"time"
)

// Phase represents the stage of the daily breakout pipeline.
type Phase int

const (
	Idle Phase = iota
	WaitingForWindow
	RangeFetched
	Monitoring
	TradeTaken
	NoBreakout
	Aborted
)

// String stringifies the provided phase.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case WaitingForWindow:
		return "waiting for window"
	case RangeFetched:
		return "range fetched"
	case Monitoring:
		return "monitoring"
	case TradeTaken:
		return "trade taken"
	case NoBreakout:
		return "no breakout"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal checks whether the phase ends the trading day.
func (p Phase) IsTerminal() bool {
	return p == TradeTaken || p == NoBreakout || p == Aborted
}

// SessionSnapshot is a read-only copy of the session state.
type SessionSnapshot struct {
	Running    bool
	TradeTaken bool
	Direction  Direction
	Phase      Phase
	High       float64
	Low        float64
	Day        time.Time
	LastIntent *TradeIntent
}

// String stringifies the snapshot for status replies.
func (s SessionSnapshot) String() string {
	var b strings.Builder

	status := "❌ Stopped"
	if s.Running {
		status = "✅ Running"
	}

	fmt.Fprintf(&b, "📊 Bot status: %s\n", status)
	fmt.Fprintf(&b, "Trade Taken: %t, Direction: %s\n", s.TradeTaken, s.Direction.String())
	fmt.Fprintf(&b, "Phase: %s", s.Phase.String())
	if s.High != 0 || s.Low != 0 {
		fmt.Fprintf(&b, "\nRange: high %.2f, low %.2f", s.High, s.Low)
	}
	if s.LastIntent != nil {
		fmt.Fprintf(&b, "\nIntent: %s", s.LastIntent.String())
	}

	return b.String()
}
