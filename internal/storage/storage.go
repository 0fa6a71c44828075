// Package storage defines the durable persistence interfaces for the
// gateway: fill history, funded-account violations, strategy mode
// transitions, and a per-fill journaled flag (HasJournaled/MarkJournaled).
// The journal client keeps its own in-memory trade_id dedupe and does not
// read or set that flag.
//
// Every money field uses github.com/shopspring/decimal, the same
// money-safety rule the rest of the module follows.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FillRecord is one executed fill, persisted after the orchestrator's
// §4.8 pipeline completes a trade.
type FillRecord struct {
	TradeID       string
	AccountID     string
	Symbol        string
	Action        string // "buy", "sell", "close"
	Quantity      int
	Price         decimal.Decimal
	Commission    decimal.Decimal
	RealizedPnL   decimal.Decimal
	AccountEquity decimal.Decimal
	// IntendedLiveAccountID is set when the strategy tracker overrode a
	// live route to paper (router.Route.IntendedLiveAccountID): the fill
	// still records the live account it would have gone to, per spec
	// §4.7's bookkeeping requirement. Empty when no override happened.
	IntendedLiveAccountID string
	FilledAt              time.Time
}

// ViolationRecord persists an internal/risk.Violation so funded-account
// history survives a restart and is queryable by the REST surface
// (§6.2's GET .../violations/).
type ViolationRecord struct {
	ID           string
	AccountID    string
	Kind         string
	Severity     string
	Value        decimal.Decimal
	Limit        decimal.Decimal
	OccurredAt   time.Time
	Acknowledged bool
}

// ModeTransitionRecord persists an internal/strategy.ModeTransition, per
// SPEC_FULL.md Open Question 2's optional durable extension.
// WindowWinRates holds every closed set's win rate in the triggering
// window (e.g. two entries for K=2), not just the most recent one, per
// spec §4.9 and Scenario E.
type ModeTransitionRecord struct {
	StrategyID     string
	From           string
	To             string
	Reason         string
	WindowWinRates []float64
	OccurredAt     time.Time
}

// Store is the durable-persistence surface the gateway depends on. All
// methods are safe for concurrent use.
type Store interface {
	// Fills.
	SaveFill(ctx context.Context, f FillRecord) error
	GetFillsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]FillRecord, error)
	GetDailyPnL(ctx context.Context, accountID string, date time.Time) (decimal.Decimal, error)

	// Per-fill journaled flag (not used by the journal client).
	HasJournaled(ctx context.Context, tradeID string) (bool, error)
	MarkJournaled(ctx context.Context, tradeID string) error

	// Funded-account violations.
	SaveViolation(ctx context.Context, v ViolationRecord) error
	GetViolations(ctx context.Context, accountID string, includeAcknowledged bool) ([]ViolationRecord, error)
	AcknowledgeViolation(ctx context.Context, id string) error

	// Strategy mode history.
	SaveModeTransition(ctx context.Context, m ModeTransitionRecord) error
	GetModeTransitions(ctx context.Context, strategyID string) ([]ModeTransitionRecord, error)

	// Ping checks connectivity for health endpoints.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}
