package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/breakout/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createOutcomeTableSQL = "CREATE TABLE IF NOT EXISTS outcome (id TEXT PRIMARY KEY, day TEXT, symbol TEXT, phase TEXT, high REAL, low REAL, direction TEXT, instrument TEXT, underlying REAL, entryprice REAL, stoploss REAL, target REAL, closedon INTEGER)"
	createSummaryTableSQL = "CREATE TABLE IF NOT EXISTS summary (id TEXT PRIMARY KEY, symbol TEXT, total INTEGER, trades INTEGER, nobreakouts INTEGER, aborts INTEGER, createdon INTEGER)"
	persistOutcomeSQL     = "INSERT INTO outcome(id, day, symbol, phase, high, low, direction, instrument, underlying, entryprice, stoploss, target, closedon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)"
	upsertSummarySQL      = "INSERT INTO summary(id, symbol, total, trades, nobreakouts, aborts, createdon) VALUES(?,?,1,?,?,?,?) ON CONFLICT(id) DO UPDATE SET total = total + 1, trades = trades + excluded.trades, nobreakouts = nobreakouts + excluded.nobreakouts, aborts = aborts + excluded.aborts"

	// defaultTimeout is the default database client timeout.
	defaultTimeout = time.Second * 5
)

// OutcomeStorer defines the requirements for storing day outcomes.
type OutcomeStorer interface {
	// PersistOutcome stores the provided day outcome to the database.
	PersistOutcome(ctx context.Context, outcome *shared.DayOutcome) error
}

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Timeout is the database client timeout.
	Timeout time.Duration
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("no database endpoint provided"))
	}
	if cfg.Timeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("database timeout cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the OutcomeStorer interface.
var _ OutcomeStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	httpc := &http.Client{Timeout: timeout}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a transaction.
func (db *Database) execute(ctx context.Context, statements rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, statements, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createOutcomeTableSQL},
		{SQL: createSummaryTableSQL},
	})
}

// generateSummaryID generates deterministic ids for summaries using the
// day's year, month and symbol.
func generateSummaryID(day time.Time, symbol string) string {
	return fmt.Sprintf("%d-%s-%s", day.Year(), day.Month().String(), symbol)
}

// PersistOutcome stores the provided day outcome and updates the monthly summary.
func (db *Database) PersistOutcome(ctx context.Context, outcome *shared.DayOutcome) error {
	if !outcome.Phase.IsTerminal() {
		db.cfg.Logger.Error().Msgf("unexpected non-terminal outcome: %s", spew.Sdump(outcome))
		return fmt.Errorf("outcome phase %s is not terminal", outcome.Phase.String())
	}

	direction := shared.None.String()
	var instrument string
	var underlying, entry, stoploss, target float64
	if outcome.Intent != nil {
		direction = outcome.Intent.Direction.String()
		instrument = outcome.Intent.InstrumentSymbol
		underlying = outcome.Intent.UnderlyingPrice
		entry = outcome.Intent.EntryPrice
		stoploss = outcome.Intent.StopLoss
		target = outcome.Intent.Target
	}

	var trades, nobreakouts, aborts int
	switch outcome.Phase {
	case shared.TradeTaken:
		trades++
	case shared.NoBreakout:
		nobreakouts++
	case shared.Aborted:
		aborts++
	}

	id := generateSummaryID(outcome.Day, outcome.Symbol)
	err := db.execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistOutcomeSQL,
			PositionalParams: []any{outcome.ID, outcome.Day.Format(shared.DateLayout), outcome.Symbol,
				outcome.Phase.String(), outcome.High, outcome.Low, direction, instrument, underlying,
				entry, stoploss, target, outcome.ClosedOn.Unix()},
		},
		{
			SQL:              upsertSummarySQL,
			PositionalParams: []any{id, outcome.Symbol, trades, nobreakouts, aborts, outcome.ClosedOn.Unix()},
		},
	})
	if err != nil {
		return fmt.Errorf("persisting outcome %s: %w", outcome.ID, err)
	}

	return nil
}
