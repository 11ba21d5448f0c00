package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dnldd/breakout/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

const operator = "42"

// fakeEngine tracks the run flag.
type fakeEngine struct {
	mtx     sync.Mutex
	running bool
	starts  int
	stops   int
}

func (e *fakeEngine) Start() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.running {
		return false
	}
	e.running = true
	e.starts++
	return true
}

func (e *fakeEngine) Stop() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if !e.running {
		return false
	}
	e.running = false
	e.stops++
	return true
}

func (e *fakeEngine) Snapshot() shared.SessionSnapshot {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return shared.SessionSnapshot{Running: e.running, Phase: shared.Monitoring}
}

// replies records notifications.
type replies struct {
	mtx      sync.Mutex
	messages []string
}

func (r *replies) notify(message string) {
	r.mtx.Lock()
	r.messages = append(r.messages, message)
	r.mtx.Unlock()
}

func (r *replies) all() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string(nil), r.messages...)
}

func setupController(t *testing.T) (*Controller, *fakeEngine, *replies) {
	t.Helper()

	eng := &fakeEngine{}
	rep := &replies{}
	c, err := NewController(&ControllerConfig{
		OperatorID: operator,
		Engine:     eng,
		Notify:     rep.notify,
		Logger:     &log.Logger,
	})
	assert.NoError(t, err)

	return c, eng, rep
}

func TestControllerConfig(t *testing.T) {
	cfg := &ControllerConfig{}
	assert.Error(t, cfg.Validate())

	_, err := NewController(cfg)
	assert.Error(t, err)
}

func TestControllerHandle(t *testing.T) {
	c, eng, _ := setupController(t)

	tests := []struct {
		name  string
		text  string
		reply string
	}{
		{"start", "/start", "✅ Bot started"},
		{"start again", "/START", "⚠️ Bot already running"},
		{"stop", "/stop", "🛑 Bot stopped"},
		{"stop again", "/stop", "⚠️ Bot not running"},
	}

	for _, test := range tests {
		reply, err := c.Handle(shared.NewCommand(test.text, operator, 0))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
		}
		if reply != test.reply {
			t.Errorf("%s: expected %q, got %q", test.name, test.reply, reply)
		}
	}

	assert.Equal(t, eng.starts, 1)
	assert.Equal(t, eng.stops, 1)

	// Ensure status is read only.
	reply, err := c.Handle(shared.NewCommand("/status", operator, 0))
	assert.NoError(t, err)
	assert.True(t, strings.Contains(reply, "Stopped"))
	assert.False(t, eng.running)

	// Ensure foreign identities are rejected without state changes.
	_, err = c.Handle(shared.NewCommand("/start", "7", 0))
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, eng.running)
	assert.Equal(t, eng.starts, 1)

	// Ensure unknown commands are ignored.
	_, err = c.Handle(shared.NewCommand("/buy", operator, 0))
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestControllerRun(t *testing.T) {
	c, eng, rep := setupController(t)

	commands := make(chan shared.Command, 4)
	commands <- shared.NewCommand("/start", operator, 1)
	commands <- shared.NewCommand("/start", "7", 2)
	commands <- shared.NewCommand("hello", operator, 3)
	commands <- shared.NewCommand("/status", operator, 4)
	close(commands)

	// Ensure the stream is consumed until it closes.
	c.Run(context.Background(), commands)

	msgs := rep.all()
	assert.Equal(t, len(msgs), 2)
	assert.Equal(t, msgs[0], "✅ Bot started")
	assert.True(t, strings.Contains(msgs[1], "Running"))
	assert.True(t, eng.running)

	// Ensure a cancelled context stops consumption.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx, make(chan shared.Command))
}
