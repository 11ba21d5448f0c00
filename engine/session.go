package engine

import (
	"sync"
	"time"

	"github.com/dnldd/breakout/shared"
)

// Session is the engine's single mutable session state. Every read-then-write
// happens under one lock. Each start begins a new generation, mutations from a
// previous generation's pipeline are ignored.
type Session struct {
	running    bool
	tradeTaken bool
	direction  shared.Direction
	phase      shared.Phase
	high       float64
	low        float64
	day        time.Time
	lastIntent *shared.TradeIntent
	gen        uint64
	mtx        sync.Mutex
}

// NewSession initializes a stopped session.
func NewSession() *Session {
	return &Session{
		direction: shared.None,
		phase:     shared.Idle,
	}
}

// start marks the session running for a fresh day. It is a no-op if already running.
func (s *Session) start() (uint64, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.running {
		return s.gen, false
	}

	s.gen++
	s.running = true
	s.tradeTaken = false
	s.direction = shared.None
	s.lastIntent = nil
	s.phase = shared.Idle
	s.high = 0
	s.low = 0
	s.day = time.Time{}

	return s.gen, true
}

// stop marks the session stopped. It is a no-op if not running.
func (s *Session) stop() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.running {
		return false
	}

	s.running = false

	return true
}

// generation returns the current generation and whether it is running.
func (s *Session) generation() (uint64, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.gen, s.running
}

// current checks whether the provided generation is the running one.
func (s *Session) current(gen uint64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.running && s.gen == gen
}

// begin moves a running session into the wait for the provided trading day.
func (s *Session) begin(gen uint64, day time.Time) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.running || s.gen != gen {
		return false
	}

	s.phase = shared.WaitingForWindow
	s.day = day

	return true
}

// setPhase updates the phase of the provided generation.
func (s *Session) setPhase(gen uint64, phase shared.Phase) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.running || s.gen != gen {
		return false
	}

	s.phase = phase

	return true
}

// setRange records the reference range of the provided generation.
func (s *Session) setRange(gen uint64, high float64, low float64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.running || s.gen != gen {
		return false
	}

	s.high = high
	s.low = low
	s.phase = shared.RangeFetched

	return true
}

// accept takes the provided trade intent if the session is running and no trade has
// been taken for the day.
func (s *Session) accept(gen uint64, intent *shared.TradeIntent) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.running || s.gen != gen || s.tradeTaken || s.direction != shared.None {
		return false
	}

	s.tradeTaken = true
	s.direction = intent.Direction
	s.lastIntent = intent
	s.phase = shared.TradeTaken

	return true
}

// finish ends the provided generation's day in the provided terminal phase, returning
// the final state. Stale generations are ignored.
func (s *Session) finish(gen uint64, phase shared.Phase) (shared.SessionSnapshot, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.gen != gen {
		return shared.SessionSnapshot{}, false
	}

	s.phase = phase
	s.running = false

	return s.snapshotLocked(), true
}

// snapshotLocked copies the session state. The lock must be held.
func (s *Session) snapshotLocked() shared.SessionSnapshot {
	return shared.SessionSnapshot{
		Running:    s.running,
		TradeTaken: s.tradeTaken,
		Direction:  s.direction,
		Phase:      s.phase,
		High:       s.high,
		Low:        s.low,
		Day:        s.day,
		LastIntent: s.lastIntent,
	}
}

// snapshot returns a read-only copy of the session state.
func (s *Session) snapshot() shared.SessionSnapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.snapshotLocked()
}
