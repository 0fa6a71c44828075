// Package orchestrator implements the per-alert pipeline from spec §4.8:
// route, gate by funded rules, acquire the per-account lease, execute,
// then fan out bookkeeping, strategy tracking, journaling, and events.
//
// Grounded on the teacher's main.go alert-processing loop (validate,
// look up broker, execute, log) for the overall shape, generalized with
// an explicit per-account FIFO lease (internal/orchestrator/lease.go)
// and the §7 error-kind classification the teacher's code didn't need.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/broker"
	"github.com/nitinkhare/tradegateway/internal/config"
	"github.com/nitinkhare/tradegateway/internal/eventbus"
	"github.com/nitinkhare/tradegateway/internal/risk"
	"github.com/nitinkhare/tradegateway/internal/router"
	"github.com/nitinkhare/tradegateway/internal/storage"
	"github.com/nitinkhare/tradegateway/internal/strategy"
)

// ErrorKind classifies a pipeline outcome per spec §7.
type ErrorKind string

const (
	ErrValidation      ErrorKind = "validation"
	ErrAuthentication  ErrorKind = "authentication"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrRouting         ErrorKind = "routing"
	ErrRiskViolation   ErrorKind = "risk_violation"
	ErrBrokerTransient ErrorKind = "broker_transient"
	ErrBrokerPermanent ErrorKind = "broker_permanent"
	ErrInternal        ErrorKind = "internal"
)

// Status is an execution event's terminal state, per §8 invariant 1.
type Status string

const (
	StatusFilled   Status = "filled"
	StatusRejected Status = "rejected"
	StatusUnknown  Status = "unknown"
)

// ExecutionEvent is the terminal outcome of one alert: exactly one is
// produced per accepted webhook (§8 invariant 1), published on the event
// bus and returned to any caller awaiting a synchronous result.
type ExecutionEvent struct {
	AlertID    string
	AccountID  string
	Status     Status
	Kind       ErrorKind
	Reason     string
	Fill       *broker.Fill
	OccurredAt time.Time
}

// Journal is the subset of internal/journal.Client the pipeline needs.
// Declared here so this package doesn't depend on journal's upload/retry
// internals, only on "accept this fill for eventual delivery."
type Journal interface {
	Enqueue(entry JournalEntry)
}

// JournalEntry is the normalized shape handed to the journal client for
// every fill, ahead of its own §4.10 schema mapping.
type JournalEntry struct {
	TradeID     string
	AccountID   string
	Symbol      string
	Action      alert.Action
	Quantity    int
	Price       decimal.Decimal
	Commission  decimal.Decimal
	RealizedPnL decimal.Decimal
	StrategyID  string
	IsPaper     bool
	// IntendedLiveAccountID mirrors storage.FillRecord's field of the
	// same name: the live account the strategy tracker overrode this
	// fill away from, for bookkeeping (spec §4.7). Empty unless IsPaper
	// was set by an override rather than an explicit paper_ alert.
	IntendedLiveAccountID string
	FilledAt              time.Time
}

// Clock lets tests control "now" instead of depending on wall-clock time.
type Clock func() time.Time

// Config wires an Orchestrator's collaborators. Router is required;
// everything else degrades gracefully when nil (no funded accounts, no
// strategy tracking, no event publication, no journaling) so tests can
// exercise the pipeline incrementally.
type Config struct {
	Router          *router.Router
	FundedRules     *risk.Engine
	Guard           *risk.Guard
	CircuitBreaker  config.CircuitBreakerConfig
	Tracker         *strategy.Tracker
	Bus             *eventbus.Bus
	Journal         Journal
	Store           storage.Store // optional: persists fills, violations, mode transitions
	Logger          *log.Logger
	Now             Clock
	ExecuteDeadline time.Duration // default 10s
	MaxConcurrency  int           // overall in-flight broker executions, default 64
}

// Orchestrator runs the §4.8 pipeline for each accepted alert.
type Orchestrator struct {
	router   *router.Router
	funded   *risk.Engine
	guard    *risk.Guard
	tracker  *strategy.Tracker
	bus      *eventbus.Bus
	journal  Journal
	store    storage.Store
	logger   *log.Logger
	now      Clock
	deadline time.Duration
	leases   *leaseTable
	breakers *breakerTable
	equity   *equityCache
	sem      *semaphore.Weighted
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[orchestrator] ", log.LstdFlags)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	deadline := cfg.ExecuteDeadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 64
	}
	return &Orchestrator{
		router:   cfg.Router,
		funded:   cfg.FundedRules,
		guard:    cfg.Guard,
		tracker:  cfg.Tracker,
		bus:      cfg.Bus,
		journal:  cfg.Journal,
		store:    cfg.Store,
		logger:   logger,
		now:      now,
		deadline: deadline,
		leases:   newLeaseTable(),
		breakers: newBreakerTable(cfg.CircuitBreaker),
		equity:   newEquityCache(),
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// Handle runs one alert through the full pipeline. It never propagates
// an error past its own boundary (§7): every failure is classified and
// folded into the returned ExecutionEvent.
func (o *Orchestrator) Handle(ctx context.Context, a *alert.Alert) *ExecutionEvent {
	if a.AlertID == "" {
		a.AlertID = uuid.NewString()
	}

	route, err := o.router.Route(a)
	if err != nil {
		return o.reject(a, "", ErrRouting, routeReason(err))
	}

	breaker := o.breakers.get(route.AccountID, route.IsFunded)
	if a.Action != alert.ActionClose && breaker.IsTripped() {
		return o.reject(a, route.AccountID, ErrRiskViolation,
			"circuit breaker tripped: "+breaker.TripReason())
	}

	if route.IsFunded && o.funded != nil {
		// TODO(C8): source the live open-position count from
		// route.Adapter.GetPositions once the orchestrator caches a
		// per-account position snapshot; until then funded accounts
		// enforce every check except max_concurrent_positions.
		projected := 0
		result := o.funded.Evaluate(route.AccountID, a, projected, o.now())
		if !result.Allow {
			if result.Violation != nil {
				o.publish(eventbus.KindViolation, a, route.AccountID, result.Violation)
			}
			return o.reject(a, route.AccountID, ErrRiskViolation, result.Reason)
		}
		if result.Violation != nil {
			o.publish(eventbus.KindViolation, a, route.AccountID, result.Violation)
		}
		o.funded.RecordAccepted(route.AccountID)
	}

	if o.guard != nil && a.Action != alert.ActionClose {
		positions, err := route.Adapter.GetPositions(ctx, route.AccountID)
		if err != nil {
			o.logger.Printf("guard: fetch positions for %s failed: %v", route.AccountID, err)
		}
		guardResult := o.guard.Validate(a, positions, o.equity.get(route.AccountID), risk.DailyPnL{})
		if !guardResult.Approved {
			reason := guardResult.Rejections[0].Rule
			return o.reject(a, route.AccountID, ErrRiskViolation, reason)
		}
	}

	// The per-account lease below only orders alerts within one account;
	// it does nothing to cap how many accounts execute concurrently. The
	// semaphore bounds that overall fan-out so a burst across many
	// accounts can't open unbounded concurrent broker connections.
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return o.reject(a, route.AccountID, ErrInternal, "concurrency_limit_canceled")
	}
	defer o.sem.Release(1)

	lease := o.leases.get(route.AccountID)
	if err := lease.Acquire(ctx); err != nil {
		return o.reject(a, route.AccountID, ErrInternal, "lease_acquire_canceled")
	}
	defer lease.Release()

	execCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	result, err := route.Adapter.ExecuteAlert(execCtx, a)
	if err != nil {
		breaker.RecordFailure(err.Error())
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return o.evt(a, route.AccountID, StatusUnknown, ErrBrokerTransient, "timeout", nil)
		}
		return o.evt(a, route.AccountID, StatusUnknown, ErrBrokerTransient, err.Error(), nil)
	}
	if !result.Success {
		breaker.RecordFailure(result.RejectionReason)
		return o.reject(a, route.AccountID, ErrBrokerPermanent, result.RejectionReason)
	}
	if result.Fill == nil {
		breaker.RecordFailure("missing_fill")
		return o.reject(a, route.AccountID, ErrInternal, "missing_fill")
	}
	breaker.RecordSuccess()

	fill := result.Fill
	o.equity.set(route.AccountID, fill.AccountEquity)
	o.onFilled(ctx, route, a, fill)

	evt := &ExecutionEvent{
		AlertID: a.AlertID, AccountID: route.AccountID, Status: StatusFilled,
		Fill: fill, OccurredAt: o.now(),
	}
	o.publish(eventbus.KindOrderAccepted, a, route.AccountID, evt)
	o.publish(eventbus.KindFill, a, route.AccountID, fill)
	o.publish(eventbus.KindPositionUpdated, a, route.AccountID, fill)
	o.publish(eventbus.KindAccountUpdated, a, route.AccountID, fill)
	return evt
}

// onFilled applies the post-fill bookkeeping steps of §4.8 step 6:
// durable fill history, funded-rule P&L, strategy tracking, and
// journaling. Persistence failures are logged, never propagated: a
// flaky database must not turn an already-executed trade into an error
// response (§7).
func (o *Orchestrator) onFilled(ctx context.Context, route *router.Route, a *alert.Alert, fill *broker.Fill) {
	if o.store != nil {
		record := storage.FillRecord{
			TradeID:               fill.OrderID,
			AccountID:             route.AccountID,
			Symbol:                fill.Symbol,
			Action:                string(a.Action),
			Quantity:              fill.Quantity,
			Price:                 fill.Price,
			Commission:            fill.Commission,
			RealizedPnL:           fill.RealizedPnL,
			AccountEquity:         fill.AccountEquity,
			IntendedLiveAccountID: route.IntendedLiveAccountID,
			FilledAt:              fill.FilledAt,
		}
		if err := o.store.SaveFill(ctx, record); err != nil {
			o.logger.Printf("save fill %s failed: %v", fill.OrderID, err)
		}
	}

	if route.IsFunded && o.funded != nil {
		post := o.funded.ApplyFill(route.AccountID, fill.RealizedPnL, fill.AccountEquity, o.now())
		if post.Violation != nil {
			o.publish(eventbus.KindViolation, a, route.AccountID, post.Violation)
			if o.store != nil {
				v := post.Violation
				if err := o.store.SaveViolation(ctx, storage.ViolationRecord{
					ID: v.ID, AccountID: v.AccountID, Kind: string(v.Kind),
					Severity: string(v.Severity), Value: v.Value, Limit: v.Limit,
					OccurredAt: v.Timestamp,
				}); err != nil {
					o.logger.Printf("save violation for %s failed: %v", route.AccountID, err)
				}
			}
		}
		if post.FlattenRequested {
			o.publish(eventbus.KindFlattenRequested, a, route.AccountID, post.Violation)
		}
	}

	// Only fills that closed (or reduced) a position carry a realized
	// result; opening fills have nothing to score a strategy's win rate
	// against yet.
	if a.StrategyID != "" && o.tracker != nil && !fill.RealizedPnL.IsZero() {
		transition, err := o.tracker.Record(strategy.TradeResult{
			StrategyID: a.StrategyID,
			Symbol:     fill.Symbol,
			Win:        fill.RealizedPnL.IsPositive(),
			PnL:        mustFloat64(fill.RealizedPnL),
			ClosedAt:   fill.FilledAt,
		})
		if err != nil {
			o.logger.Printf("strategy tracker record failed for %s: %v", a.StrategyID, err)
		} else if transition != nil {
			o.publish(eventbus.KindStrategyModeChanged, a, route.AccountID, transition)
			if o.store != nil {
				if err := o.store.SaveModeTransition(ctx, storage.ModeTransitionRecord{
					StrategyID: transition.StrategyID, From: string(transition.From),
					To: string(transition.To), Reason: transition.Reason,
					WindowWinRates: transition.WindowWinRates, OccurredAt: transition.OccurredAt,
				}); err != nil {
					o.logger.Printf("save mode transition for %s failed: %v", a.StrategyID, err)
				}
			}
		}
	}

	if o.journal != nil {
		o.journal.Enqueue(JournalEntry{
			TradeID:               fill.OrderID,
			AccountID:             route.AccountID,
			Symbol:                fill.Symbol,
			Action:                a.Action,
			Quantity:              fill.Quantity,
			Price:                 fill.Price,
			Commission:            fill.Commission,
			RealizedPnL:           fill.RealizedPnL,
			StrategyID:            a.StrategyID,
			IsPaper:               strings.HasPrefix(a.AccountGroup, "paper_") || route.IntendedLiveAccountID != "",
			IntendedLiveAccountID: route.IntendedLiveAccountID,
			FilledAt:              fill.FilledAt,
		})
	}
}

func (o *Orchestrator) reject(a *alert.Alert, accountID string, kind ErrorKind, reason string) *ExecutionEvent {
	return o.evt(a, accountID, StatusRejected, kind, reason, nil)
}

func (o *Orchestrator) evt(a *alert.Alert, accountID string, status Status, kind ErrorKind, reason string, fill *broker.Fill) *ExecutionEvent {
	e := &ExecutionEvent{
		AlertID: a.AlertID, AccountID: accountID, Status: status,
		Kind: kind, Reason: reason, Fill: fill, OccurredAt: o.now(),
	}
	o.publish(eventbus.KindOrderAccepted, a, accountID, e)
	return e
}

func (o *Orchestrator) publish(kind eventbus.Kind, a *alert.Alert, accountID string, payload interface{}) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{Kind: kind, Symbol: a.Symbol, AccountID: accountID, Payload: payload})
}

func routeReason(err error) string {
	var routeErr *router.RouteError
	if errors.As(err, &routeErr) {
		return string(routeErr.Reason)
	}
	return err.Error()
}

// mustFloat64 converts a decimal to float64 for the strategy tracker's
// win-rate arithmetic, which is a statistical aggregate rather than a
// persisted monetary value (spec §9: floating point is acceptable
// outside the money/price data path).
func mustFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
