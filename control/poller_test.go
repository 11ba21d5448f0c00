package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/breakout/shared"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// fakeSource serves queued update batches, recording requested offsets.
type fakeSource struct {
	mtx     sync.Mutex
	batches [][]tgbotapi.Update
	offsets []int
	fail    int
}

func (s *fakeSource) GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.offsets = append(s.offsets, config.Offset)
	if s.fail > 0 {
		s.fail--
		return nil, errors.New("connection reset")
	}
	if len(s.batches) == 0 {
		return nil, nil
	}

	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func update(id int, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	}
}

func TestPollerConfig(t *testing.T) {
	cfg := &PollerConfig{Timeout: -1}
	assert.Error(t, cfg.Validate())

	_, err := NewPoller(cfg)
	assert.Error(t, err)
}

func TestPollerCursor(t *testing.T) {
	src := &fakeSource{
		batches: [][]tgbotapi.Update{
			{update(10, 42, "/start"), update(11, 42, "/status")},
			// redelivered and stale updates.
			{update(11, 42, "/status"), update(9, 42, "/stop"), update(12, 42, "/stop")},
			{{UpdateID: 13}},
		},
	}

	p, err := NewPoller(&PollerConfig{Source: src, Logger: &log.Logger})
	assert.NoError(t, err)

	cmds, err := p.poll()
	assert.NoError(t, err)
	assert.Equal(t, len(cmds), 2)
	assert.Equal(t, cmds[0].Kind, shared.Start)
	assert.Equal(t, cmds[0].Identity, "42")
	assert.Equal(t, cmds[0].Cursor, int64(10))
	assert.Equal(t, p.Cursor(), int64(11))

	// Ensure a cursor is never reprocessed.
	cmds, err = p.poll()
	assert.NoError(t, err)
	assert.Equal(t, len(cmds), 1)
	assert.Equal(t, cmds[0].Kind, shared.Stop)
	assert.Equal(t, cmds[0].Cursor, int64(12))

	// Ensure updates without messages still advance the cursor.
	cmds, err = p.poll()
	assert.NoError(t, err)
	assert.Equal(t, len(cmds), 0)
	assert.Equal(t, p.Cursor(), int64(13))

	assert.Equal(t, src.offsets, []int{1, 12, 13})
}

func TestPollerSubscribe(t *testing.T) {
	src := &fakeSource{
		fail: 1,
		batches: [][]tgbotapi.Update{
			{update(1, 42, "/start")},
			{update(2, 42, "/stop")},
		},
	}

	var mtx sync.Mutex
	sleeps := 0
	p, err := NewPoller(&PollerConfig{
		Source: src,
		Sleep: func(ctx context.Context, d time.Duration) error {
			mtx.Lock()
			sleeps++
			mtx.Unlock()
			time.Sleep(time.Millisecond)
			return ctx.Err()
		},
		Logger: &log.Logger,
	})
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream := p.Subscribe(ctx)

	// Ensure transport errors are retried and commands are streamed in order.
	first := <-stream
	second := <-stream
	assert.Equal(t, first.Kind, shared.Start)
	assert.Equal(t, second.Kind, shared.Stop)

	cancel()
	for range stream {
		// drain until closed.
	}

	mtx.Lock()
	assert.True(t, sleeps >= 1)
	mtx.Unlock()
}
