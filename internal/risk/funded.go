// Package risk also implements the funded-account rule engine: the
// hard, externally-imposed loss/drawdown/position limits that govern a
// funded futures account (e.g. topstep, apex, tradeday evaluations).
//
// Design rules (from spec):
//   - Funded rules CANNOT be overridden by strategy or router logic.
//   - Once violated, the account stays violated until explicitly reset.
//   - A violated account is denied every alert, closes included; on any
//     other account (paused included) closing a position is permitted.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/shopspring/decimal"
)

// RuleState is the lifecycle state of a FundedRules set.
type RuleState string

const (
	RuleStateActive   RuleState = "active"
	RuleStateViolated RuleState = "violated"
)

// RiskLevel classifies how close a funded account is to violating its
// rules, for status views.
type RiskLevel string

const (
	RiskLevelSafe      RiskLevel = "safe"
	RiskLevelWarning   RiskLevel = "warning"
	RiskLevelDanger    RiskLevel = "danger"
	RiskLevelViolation RiskLevel = "violation"
)

// ViolationKind classifies what kind of funded-rule breach a Violation
// records.
type ViolationKind string

const (
	ViolationDailyLoss        ViolationKind = "daily_loss"
	ViolationTotalLoss        ViolationKind = "total_loss"
	ViolationDrawdown         ViolationKind = "drawdown"
	ViolationPositionSize     ViolationKind = "position_size"
	ViolationTradingHours     ViolationKind = "trading_hours"
	ViolationMaxTrades        ViolationKind = "max_trades"
	ViolationRestrictedSymbol ViolationKind = "restricted_symbol"
)

// Severity is how serious a Violation is.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityViolation Severity = "violation"
)

// Violation records that a funded-account rule was breached, or
// approached closely enough to warrant a warning. Cleared only by
// explicit acknowledgement or account reset.
type Violation struct {
	ID           string
	AccountID    string
	Kind         ViolationKind
	Severity     Severity
	Value        decimal.Decimal
	Limit        decimal.Decimal
	Timestamp    time.Time
	Acknowledged bool
}

// TradingWindow is a permitted trading interval on a given weekday, in a
// named timezone.
type TradingWindow struct {
	Weekday  time.Weekday
	Start    time.Duration // offset from midnight, in the window's location
	End      time.Duration
	Location *time.Location
}

func (w TradingWindow) contains(now time.Time) bool {
	local := now.In(w.Location)
	if local.Weekday() != w.Weekday {
		return false
	}
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	return offset >= w.Start && offset < w.End
}

// FundedRules holds the limits and running accounting for one funded
// account, per spec §3 and §4.6.
type FundedRules struct {
	AccountID            string
	MaxDailyLoss         decimal.Decimal
	TrailingDrawdown     decimal.Decimal
	MaxContracts         int
	MaxConcurrentPos     int
	ProfitTarget         decimal.Decimal // zero means unset
	MaxDailyTrades       int
	TradingWindows       []TradingWindow
	RestrictedSymbols    map[string]bool

	State            RuleState
	CurrentDailyPnL  decimal.Decimal
	CurrentDrawdown  decimal.Decimal
	MaxPeakEquity    decimal.Decimal
	TodayTradeCount  int

	// Paused is an operator-initiated hold, distinct from State: a
	// paused account has not violated any rule, it is just temporarily
	// excluded from trading (§6.2 pause/resume).
	Paused bool
}

// CanTrade reports whether new (non-close) alerts are currently accepted
// for this account: neither violated nor paused.
func (r *FundedRules) CanTrade() bool {
	return r.State != RuleStateViolated && !r.Paused
}

// RemainingLossBuffer is max_daily_loss + current_daily_pnl (pnl is
// signed; losses are negative, so this shrinks toward zero as losses
// accumulate).
func (r *FundedRules) RemainingLossBuffer() decimal.Decimal {
	return r.MaxDailyLoss.Add(r.CurrentDailyPnL)
}

// RemainingDrawdownBuffer is trailing_drawdown - current_drawdown.
func (r *FundedRules) RemainingDrawdownBuffer() decimal.Decimal {
	return r.TrailingDrawdown.Sub(r.CurrentDrawdown)
}

func (r *FundedRules) breached() bool {
	return r.CurrentDrawdown.GreaterThanOrEqual(r.TrailingDrawdown) ||
		r.CurrentDailyPnL.LessThanOrEqual(r.MaxDailyLoss.Neg())
}

// RiskLevel classifies the worst-of percentage utilization of the
// daily-loss and trailing-drawdown buffers, per spec §4.6.
func (r *FundedRules) RiskLevel() RiskLevel {
	if r.State == RuleStateViolated {
		return RiskLevelViolation
	}
	lossUtil := utilization(r.MaxDailyLoss, r.RemainingLossBuffer())
	ddUtil := utilization(r.TrailingDrawdown, r.RemainingDrawdownBuffer())
	worst := lossUtil
	if ddUtil > worst {
		worst = ddUtil
	}
	switch {
	case worst >= 1.0:
		return RiskLevelViolation
	case worst >= 0.8:
		return RiskLevelDanger
	case worst >= 0.6:
		return RiskLevelWarning
	default:
		return RiskLevelSafe
	}
}

// utilization returns how much of limit has been consumed, given the
// remaining buffer, clamped to [0, 1].
func utilization(limit, remaining decimal.Decimal) float64 {
	if limit.IsZero() {
		return 0
	}
	used := limit.Sub(remaining)
	ratio, _ := used.Div(limit).Float64()
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// EvalResult is the outcome of a pre-trade funded-rule evaluation.
type EvalResult struct {
	Allow     bool
	Reason    string
	Violation *Violation
}

// Engine evaluates funded-account rules and tracks per-account state. It
// is the final gatekeeper for funded accounts, mirroring the structure of
// Guard in risk.go: deliberately strict, rejecting on any rule breach
// even when upstream logic is confident.
type Engine struct {
	mu    sync.Mutex
	rules map[string]*FundedRules
}

// NewEngine creates an empty funded-rule engine. Register each funded
// account's rules with Register before routing alerts to it.
func NewEngine() *Engine {
	return &Engine{rules: make(map[string]*FundedRules)}
}

// Register installs (or replaces) the FundedRules for an account.
func (e *Engine) Register(rules *FundedRules) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rules.State == "" {
		rules.State = RuleStateActive
	}
	if rules.RestrictedSymbols == nil {
		rules.RestrictedSymbols = make(map[string]bool)
	}
	e.rules[rules.AccountID] = rules
}

// Rules returns a copy of the current rule state for an account, or
// false if the account is not registered as funded.
func (e *Engine) Rules(accountID string) (FundedRules, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[accountID]
	if !ok {
		return FundedRules{}, false
	}
	return *r, true
}

// IsFunded reports whether accountID has registered funded rules.
func (e *Engine) IsFunded(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.rules[accountID]
	return ok
}

// List returns a copy of every registered funded account's rule state,
// for the §6.2 account-listing endpoint. Order is unspecified.
func (e *Engine) List() []FundedRules {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]FundedRules, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// Pause holds an account out of new trading without marking it violated.
// Close actions remain permitted (Evaluate allows close on any account
// that is not violated).
func (e *Engine) Pause(accountID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[accountID]
	if !ok {
		return fmt.Errorf("risk: account %q is not registered as funded", accountID)
	}
	r.Paused = true
	return nil
}

// Resume clears a pause. It is rejected if the account's current risk
// level is violation — an operator must ResetAccount first (§6.2).
func (e *Engine) Resume(accountID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[accountID]
	if !ok {
		return fmt.Errorf("risk: account %q is not registered as funded", accountID)
	}
	if r.RiskLevel() == RiskLevelViolation {
		return fmt.Errorf("risk: account %q cannot resume while in violation", accountID)
	}
	r.Paused = false
	return nil
}

// Evaluate runs the §4.6 pre-trade checks in order, returning the first
// denial encountered, or an allow (possibly with a warning Violation).
// projectedPositions is the number of distinct open positions the
// account would hold after this alert fills, including this symbol if
// it is new.
func (e *Engine) Evaluate(accountID string, a *alert.Alert, projectedPositions int, now time.Time) EvalResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rules[accountID]
	if !ok {
		return EvalResult{Allow: true}
	}

	if r.State == RuleStateViolated {
		return EvalResult{Allow: false, Reason: "account_violated"}
	}

	if a.Action == alert.ActionClose {
		return EvalResult{Allow: true}
	}

	if r.Paused {
		return EvalResult{Allow: false, Reason: "account_paused"}
	}

	if a.Quantity > r.MaxContracts {
		return EvalResult{Allow: false, Reason: "position_size"}
	}

	if r.RestrictedSymbols[a.Symbol] {
		return EvalResult{Allow: false, Reason: "restricted_symbol"}
	}

	if len(r.TradingWindows) > 0 && !e.withinAnyWindow(r, now) {
		return EvalResult{Allow: false, Reason: "trading_hours"}
	}

	if r.MaxDailyTrades > 0 && r.TodayTradeCount >= r.MaxDailyTrades {
		return EvalResult{Allow: false, Reason: "max_trades"}
	}

	if r.MaxConcurrentPos > 0 && projectedPositions > r.MaxConcurrentPos {
		return EvalResult{Allow: false, Reason: "position_size"}
	}

	if e.warningThresholdBreached(r) {
		v := &Violation{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      ViolationDailyLoss,
			Severity:  SeverityWarning,
			Value:     r.CurrentDailyPnL,
			Limit:     r.MaxDailyLoss.Neg(),
			Timestamp: now,
		}
		return EvalResult{Allow: true, Violation: v}
	}

	return EvalResult{Allow: true}
}

func (e *Engine) withinAnyWindow(r *FundedRules, now time.Time) bool {
	for _, w := range r.TradingWindows {
		if w.contains(now) {
			return true
		}
	}
	return false
}

func (e *Engine) warningThresholdBreached(r *FundedRules) bool {
	lossBuf := r.RemainingLossBuffer()
	ddBuf := r.RemainingDrawdownBuffer()
	lossWarn := r.MaxDailyLoss.Mul(decimal.NewFromFloat(0.2))
	ddWarn := r.TrailingDrawdown.Mul(decimal.NewFromFloat(0.2))
	return lossBuf.LessThanOrEqual(lossWarn) || ddBuf.LessThanOrEqual(ddWarn)
}

// RecordAccepted increments the day's trade count for the account, for
// max_daily_trades accounting. Called by the orchestrator once an alert
// is routed and accepted for execution.
func (e *Engine) RecordAccepted(accountID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rules[accountID]; ok {
		r.TodayTradeCount++
	}
}

// PostTradeResult is returned by ApplyFill: the updated risk level and,
// if the fill pushed the account into violation, the critical Violation
// and a signal that a flatten-all request should be published.
type PostTradeResult struct {
	Level            RiskLevel
	Violation        *Violation
	FlattenRequested bool
}

// ApplyFill updates an account's daily P&L and drawdown accounting after
// a fill, per spec §4.6, and transitions the rule state to violated if
// either breach condition now holds.
func (e *Engine) ApplyFill(accountID string, signedPnL, currentEquity decimal.Decimal, now time.Time) PostTradeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rules[accountID]
	if !ok {
		return PostTradeResult{Level: RiskLevelSafe}
	}

	r.CurrentDailyPnL = r.CurrentDailyPnL.Add(signedPnL)
	if currentEquity.GreaterThan(r.MaxPeakEquity) {
		r.MaxPeakEquity = currentEquity
	}
	r.CurrentDrawdown = r.MaxPeakEquity.Sub(currentEquity)
	if r.CurrentDrawdown.IsNegative() {
		r.CurrentDrawdown = decimal.Zero
	}

	result := PostTradeResult{Level: r.RiskLevel()}

	if r.State == RuleStateActive && r.breached() {
		r.State = RuleStateViolated
		kind := ViolationDailyLoss
		limit := r.MaxDailyLoss.Neg()
		value := r.CurrentDailyPnL
		if r.CurrentDrawdown.GreaterThanOrEqual(r.TrailingDrawdown) {
			kind = ViolationDrawdown
			limit = r.TrailingDrawdown
			value = r.CurrentDrawdown
		}
		result.Violation = &Violation{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      kind,
			Severity:  SeverityViolation,
			Value:     value,
			Limit:     limit,
			Timestamp: now,
		}
		result.FlattenRequested = true
		result.Level = RiskLevelViolation
	}

	return result
}

// ResetDaily clears the day's P&L and trade-count accounting, for the
// daily reset job. Drawdown/peak-equity and violated state are NOT
// reset here: those require an explicit account reset.
func (e *Engine) ResetDaily(accountID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rules[accountID]; ok {
		r.CurrentDailyPnL = decimal.Zero
		r.TodayTradeCount = 0
	}
}

// ResetAccount clears violated state entirely, per the spec's
// "externally reset" escape hatch. Used by an operator after a funded
// evaluation is reset upstream.
func (e *Engine) ResetAccount(accountID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[accountID]
	if !ok {
		return fmt.Errorf("risk: account %q is not registered as funded", accountID)
	}
	r.State = RuleStateActive
	r.CurrentDrawdown = decimal.Zero
	r.MaxPeakEquity = decimal.Zero
	r.CurrentDailyPnL = decimal.Zero
	r.TodayTradeCount = 0
	return nil
}
