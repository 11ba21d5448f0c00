package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/breakout/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultFetchDelay is the default delay after the range window closes before its
	// candle is fetched.
	DefaultFetchDelay = time.Second * 5
	// DefaultPollInterval is the default interval between price polls.
	DefaultPollInterval = time.Second * 5
)

// DefaultDayEnd is the default time of day monitoring stops.
var DefaultDayEnd = shared.TimeOfDay{Hour: 15, Minute: 30}

// EngineConfig represents the configuration for the breakout engine.
type EngineConfig struct {
	// Symbol is the underlying instrument watched for breakouts.
	Symbol string
	// Resolution is the resolution of the reference candle.
	Resolution shared.Resolution
	// WindowStart is the start of the reference range window.
	WindowStart shared.TimeOfDay
	// WindowEnd is the end of the reference range window.
	WindowEnd shared.TimeOfDay
	// FetchDelay is the delay after the window closes before its candle is fetched.
	FetchDelay time.Duration
	// DayEnd is the time of day monitoring stops.
	DayEnd shared.TimeOfDay
	// PollInterval is the interval between price polls.
	PollInterval time.Duration
	// Location is the market timezone.
	Location *time.Location
	// Market provides market data.
	Market shared.MarketData
	// Options selects the option contract traded on a breakout.
	Options shared.OptionSelector
	// Risk is the premium acceptance and exit policy.
	Risk shared.RiskPolicy
	// Notify sends the provided message.
	Notify func(message string)
	// RecordOutcome records the outcome of a finished day, optional.
	RecordOutcome func(outcome *shared.DayOutcome) error
	// Now returns the current time, defaults to time.Now.
	Now func() time.Time
	// Sleep waits for the provided duration or until the context is cancelled,
	// defaults to a timer backed sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("no symbol provided"))
	}
	if cfg.Resolution.Duration() == 0 {
		errs = errors.Join(errs, fmt.Errorf("unknown resolution provided"))
	}
	if !cfg.WindowStart.Before(cfg.WindowEnd) {
		errs = errors.Join(errs, fmt.Errorf("window start %s must be before window end %s",
			cfg.WindowStart.String(), cfg.WindowEnd.String()))
	}
	if !cfg.WindowEnd.Before(cfg.DayEnd) {
		errs = errors.Join(errs, fmt.Errorf("window end %s must be before day end %s",
			cfg.WindowEnd.String(), cfg.DayEnd.String()))
	}
	if cfg.FetchDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch delay cannot be negative"))
	}
	if cfg.PollInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval must be positive"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("no location provided"))
	}
	if cfg.Market == nil {
		errs = errors.Join(errs, fmt.Errorf("no market data provided"))
	}
	if cfg.Options == nil {
		errs = errors.Join(errs, fmt.Errorf("no option selector provided"))
	}
	if err := cfg.Risk.Validate(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid risk policy: %w", err))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("no notify function provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// Engine runs the daily breakout pipeline while the session is running.
type Engine struct {
	cfg       *EngineConfig
	session   *Session
	scheduler *Scheduler
	wake      chan struct{}
	cancelDay context.CancelFunc
	mtx       sync.Mutex
}

// NewEngine initializes a new breakout engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DayEnd == (shared.TimeOfDay{}) {
		cfg.DayEnd = DefaultDayEnd
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = shared.Sleep
	}

	return &Engine{
		cfg:       cfg,
		session:   NewSession(),
		scheduler: NewScheduler(cfg.Location, cfg.Now, cfg.Sleep),
		wake:      make(chan struct{}, 1),
	}, nil
}

// Start starts a fresh trading day cycle. It returns false if already running.
func (e *Engine) Start() bool {
	_, ok := e.session.start()
	if !ok {
		return false
	}

	select {
	case e.wake <- struct{}{}:
		// do nothing.
	default:
		// a wake up is already pending.
	}

	return true
}

// Stop stops the running trading day. It returns false if not running.
func (e *Engine) Stop() bool {
	if !e.session.stop() {
		return false
	}

	e.mtx.Lock()
	if e.cancelDay != nil {
		e.cancelDay()
	}
	e.mtx.Unlock()

	return true
}

// Snapshot returns a read-only copy of the session state.
func (e *Engine) Snapshot() shared.SessionSnapshot {
	return e.session.snapshot()
}

// notify sends the provided message and logs it.
func (e *Engine) notify(message string) {
	e.cfg.Logger.Info().Msg(message)
	e.cfg.Notify(message)
}

// stopped checks whether the provided generation's day should stop.
func (e *Engine) stopped(ctx context.Context, gen uint64) bool {
	return ctx.Err() != nil || !e.session.current(gen)
}

// abortStopped ends a day interrupted by a stop.
func (e *Engine) abortStopped(day time.Time) shared.Phase {
	e.notify(fmt.Sprintf("⛔ Engine stopped, %s session for %s aborted",
		day.Format(shared.DateLayout), e.cfg.Symbol))
	return shared.Aborted
}

// pipeline runs the provided generation's trading day, returning its terminal phase.
func (e *Engine) pipeline(ctx context.Context, gen uint64) shared.Phase {
	fetchAt := e.cfg.WindowEnd.Add(e.cfg.FetchDelay)
	target := e.scheduler.Next(fetchAt.Hour, fetchAt.Minute, fetchAt.Second)
	day := target

	if !e.session.begin(gen, day) {
		return shared.Aborted
	}

	e.notify(fmt.Sprintf("⏳ Waiting for the %s - %s range of %s on %s",
		e.cfg.WindowStart.String(), e.cfg.WindowEnd.String(), e.cfg.Symbol, day.Format(shared.DateLayout)))

	wait, err := e.scheduler.Wait(ctx, target)
	if err != nil || e.stopped(ctx, gen) {
		return e.abortStopped(day)
	}

	e.cfg.Logger.Debug().Msgf("waited %s for the range window", wait)

	start := e.cfg.WindowStart.On(day, e.cfg.Location)
	end := e.cfg.WindowEnd.On(day, e.cfg.Location)
	candle, ok := e.cfg.Market.GetRangeCandle(ctx, e.cfg.Symbol, e.cfg.Resolution, start, end)
	if e.stopped(ctx, gen) {
		return e.abortStopped(day)
	}
	if !ok {
		e.notify(fmt.Sprintf("⛔ No range candle for %s on %s, session aborted",
			e.cfg.Symbol, day.Format(shared.DateLayout)))
		return shared.Aborted
	}
	if err := candle.Validate(); err != nil {
		e.cfg.Logger.Error().Err(err).Msgf("invalid range candle: %s", spew.Sdump(candle))
		e.notify(fmt.Sprintf("⛔ Invalid range candle for %s on %s, session aborted: %v",
			e.cfg.Symbol, day.Format(shared.DateLayout), err))
		return shared.Aborted
	}

	high, low := candle.High, candle.Low
	if !e.session.setRange(gen, high, low) {
		return e.abortStopped(day)
	}

	e.notify(fmt.Sprintf("📏 %s range fetched: high %.2f, low %.2f", e.cfg.Symbol, high, low))

	if !e.session.setPhase(gen, shared.Monitoring) {
		return e.abortStopped(day)
	}

	return e.monitor(ctx, gen, day, high, low)
}

// monitor polls the price until a breakout trade is taken or the day ends.
func (e *Engine) monitor(ctx context.Context, gen uint64, day time.Time, high float64, low float64) shared.Phase {
	dayEnd := e.cfg.DayEnd.On(day, e.cfg.Location)
	rejections := 0

	for {
		if e.stopped(ctx, gen) {
			return e.abortStopped(day)
		}

		if !e.cfg.Now().Before(dayEnd) {
			e.notify(fmt.Sprintf("📭 No breakout for %s on %s (high %.2f, low %.2f)",
				e.cfg.Symbol, day.Format(shared.DateLayout), high, low))
			return shared.NoBreakout
		}

		quote, ok := e.cfg.Market.GetLastPrice(ctx, e.cfg.Symbol)
		if ok && !e.stopped(ctx, gen) {
			direction := shared.Classify(quote.LastTradedPrice, high, low)
			if direction != shared.None {
				taken, rejected := e.evaluate(ctx, gen, direction, quote, rejections == 0)
				if taken {
					return shared.TradeTaken
				}
				if rejected {
					rejections++
				}
			}
		}

		err := e.cfg.Sleep(ctx, e.cfg.PollInterval)
		if err != nil {
			return e.abortStopped(day)
		}
	}
}

// evaluate looks up an option for the breakout candidate and takes it if its premium
// is accepted. It reports whether the trade was taken and whether the premium was
// rejected. Only the first rejection of a day is notified.
func (e *Engine) evaluate(ctx context.Context, gen uint64, direction shared.Direction, quote *shared.PriceQuote, firstRejection bool) (bool, bool) {
	// Skips the option lookup once a direction is set, accept re-checks under the session lock.
	if e.session.snapshot().Direction != shared.None {
		return false, false
	}

	instrument, premium, err := e.cfg.Options.SelectOption(ctx, direction, quote.LastTradedPrice)
	if err != nil {
		if ctx.Err() == nil {
			e.cfg.Logger.Error().Err(err).Msgf("selecting %s option at %.2f", direction.String(), quote.LastTradedPrice)
		}
		return false, false
	}

	if !e.cfg.Risk.Accepts(premium) {
		msg := fmt.Sprintf("🚫 %s breakout at %.2f skipped, %s premium %.2f outside [%.2f, %.2f]",
			direction.String(), quote.LastTradedPrice, instrument, premium, e.cfg.Risk.PremiumLow, e.cfg.Risk.PremiumHigh)
		if firstRejection {
			e.notify(msg)
		} else {
			e.cfg.Logger.Info().Msg(msg)
		}
		return false, true
	}

	intent, err := shared.NewTradeIntent(direction, instrument, quote.LastTradedPrice, premium, &e.cfg.Risk, e.cfg.Now())
	if err != nil {
		e.cfg.Logger.Error().Err(err).Msgf("creating trade intent")
		return false, false
	}

	if !e.session.accept(gen, intent) {
		return false, false
	}

	e.notify(fmt.Sprintf("🚀 %s breakout on %s at %.2f\n%s", direction.String(), e.cfg.Symbol,
		quote.LastTradedPrice, intent.String()))

	return true, false
}

// runPipeline runs the pipeline, ending the day as aborted if it panics.
func (e *Engine) runPipeline(ctx context.Context, gen uint64) (phase shared.Phase) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error().Msgf("breakout pipeline panicked: %v\n%s\nsession: %s",
				r, debug.Stack(), spew.Sdump(e.session.snapshot()))
			e.notify(fmt.Sprintf("⛔ Unexpected failure, session for %s aborted: %v", e.cfg.Symbol, r))
			phase = shared.Aborted
		}
	}()

	return e.pipeline(ctx, gen)
}

// runDay runs the provided generation's trading day to a terminal phase.
func (e *Engine) runDay(ctx context.Context, gen uint64) {
	dayCtx, cancel := context.WithCancel(ctx)
	e.mtx.Lock()
	e.cancelDay = cancel
	e.mtx.Unlock()

	defer func() {
		e.mtx.Lock()
		e.cancelDay = nil
		e.mtx.Unlock()
		cancel()
	}()

	phase := e.runPipeline(dayCtx, gen)

	snap, ok := e.session.finish(gen, phase)
	if !ok {
		e.cfg.Logger.Debug().Msgf("discarding stale session generation %d", gen)
		return
	}

	if snap.Day.IsZero() {
		// stopped before the day began.
		return
	}

	e.cfg.Logger.Info().Msgf("%s session for %s ended: %s", snap.Day.Format(shared.DateLayout),
		e.cfg.Symbol, phase.String())

	if e.cfg.RecordOutcome == nil {
		return
	}

	outcome := &shared.DayOutcome{
		ID:       uuid.New().String(),
		Day:      snap.Day,
		Symbol:   e.cfg.Symbol,
		Phase:    phase,
		High:     snap.High,
		Low:      snap.Low,
		Intent:   snap.LastIntent,
		ClosedOn: e.cfg.Now(),
	}
	if err := e.cfg.RecordOutcome(outcome); err != nil {
		e.cfg.Logger.Error().Err(err).Msgf("recording session outcome")
	}
}

// Run manages the lifecycle processes of the engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
			gen, running := e.session.generation()
			if !running {
				continue
			}
			e.runDay(ctx, gen)
		}
	}
}
