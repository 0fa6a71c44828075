// Package risk - risk.go implements a hard pre-trade guardrail that
// applies to every live order, funded or not: a second, independent
// check sitting alongside (not replacing) the funded-rule engine in
// funded.go.
//
// Design rules (from spec):
//   - Risk rules are implemented in Go.
//   - They CANNOT be overridden by strategy or AI.
//   - Capital preservation > returns.
//   - System must prefer not trading over bad trades.
//
// Generalized from the teacher's equities-specific Manager (mandatory
// stop loss, max risk per trade, sector concentration) to the alert
// model: stop loss becomes Alert.StopPrice, "sector" concentration
// becomes duplicate-position rejection, and position sizing is
// expressed against live account equity rather than a fixed capital
// base.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/broker"
)

// RejectionReason explains why an order was rejected by the guard.
type RejectionReason struct {
	Rule    string
	Message string
}

func (r RejectionReason) Error() string {
	return fmt.Sprintf("risk rejected [%s]: %s", r.Rule, r.Message)
}

// ValidationResult holds the outcome of a guard check.
type ValidationResult struct {
	Approved   bool
	Rejections []RejectionReason
}

// DailyPnL tracks realized and unrealized P&L for one account's day.
type DailyPnL struct {
	Date          time.Time
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// GuardConfig configures Guard's thresholds. A zero value for any
// percentage or count disables that particular check.
type GuardConfig struct {
	RequireStopPrice       bool
	MaxRiskPerTradePct     float64 // % of equity the stop-distance may risk
	MaxOpenPositions       int
	MaxDailyLossPct        float64 // % of equity
	MaxCapitalDeploymentPct float64 // % of equity across all open positions
}

// Guard enforces GuardConfig against every live buy/sell alert. It is
// deliberately strict: it rejects orders that violate any rule even
// when the upstream strategy is confident.
type Guard struct {
	cfg GuardConfig
}

// NewGuard creates a Guard with the given configuration.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{cfg: cfg}
}

// UpdateConfig replaces the guard configuration. The assignment takes no
// lock, and no config hot-reload path calls it.
func (g *Guard) UpdateConfig(cfg GuardConfig) {
	g.cfg = cfg
}

// Validate checks a, an opening or adding order, against positions (the
// account's current open positions) and equity (current account
// equity, used as the capital base for percentage limits).
//
// close orders are always approved — the guard never blocks an attempt
// to reduce or exit a position.
func (g *Guard) Validate(a *alert.Alert, positions []broker.Position, equity decimal.Decimal, dailyPnL DailyPnL) ValidationResult {
	result := ValidationResult{Approved: true}

	if a.Action == alert.ActionClose {
		return result
	}

	g.checkStopPrice(&result, a)
	g.checkMaxRiskPerTrade(&result, a, equity)
	g.checkMaxOpenPositions(&result, a, positions)
	g.checkMaxDailyLoss(&result, dailyPnL, equity)
	g.checkMaxCapitalDeployment(&result, a, positions, equity)

	return result
}

func (g *Guard) checkStopPrice(result *ValidationResult, a *alert.Alert) {
	if !g.cfg.RequireStopPrice {
		return
	}
	if a.StopPrice.IsZero() {
		g.reject(result, "MANDATORY_STOP_PRICE", "every live order must carry a stop_price")
		return
	}
	if a.Action == alert.ActionBuy && a.StopPrice.GreaterThanOrEqual(a.Price) && !a.Price.IsZero() {
		g.reject(result, "INVALID_STOP_PRICE", fmt.Sprintf(
			"stop_price %s must be below entry price %s", a.StopPrice, a.Price))
	}
}

func (g *Guard) checkMaxRiskPerTrade(result *ValidationResult, a *alert.Alert, equity decimal.Decimal) {
	if g.cfg.MaxRiskPerTradePct <= 0 || a.StopPrice.IsZero() || a.Price.IsZero() || equity.IsZero() {
		return
	}
	riskPerUnit := a.Price.Sub(a.StopPrice).Abs()
	totalRisk := riskPerUnit.Mul(decimal.NewFromInt(int64(a.Quantity)))
	maxAllowed := equity.Mul(decimal.NewFromFloat(g.cfg.MaxRiskPerTradePct / 100.0))

	if totalRisk.GreaterThan(maxAllowed) {
		g.reject(result, "MAX_RISK_PER_TRADE", fmt.Sprintf(
			"trade risk %s exceeds max allowed %s (%.1f%% of %s)",
			totalRisk, maxAllowed, g.cfg.MaxRiskPerTradePct, equity))
	}
}

func (g *Guard) checkMaxOpenPositions(result *ValidationResult, a *alert.Alert, positions []broker.Position) {
	for _, pos := range positions {
		if pos.Symbol == a.Symbol {
			g.reject(result, "DUPLICATE_POSITION", fmt.Sprintf(
				"already have an open position in %s", a.Symbol))
			return
		}
	}
	if g.cfg.MaxOpenPositions > 0 && len(positions) >= g.cfg.MaxOpenPositions {
		g.reject(result, "MAX_OPEN_POSITIONS", fmt.Sprintf(
			"at position limit: %d/%d", len(positions), g.cfg.MaxOpenPositions))
	}
}

func (g *Guard) checkMaxDailyLoss(result *ValidationResult, dailyPnL DailyPnL, equity decimal.Decimal) {
	if g.cfg.MaxDailyLossPct <= 0 || equity.IsZero() {
		return
	}
	total := dailyPnL.RealizedPnL.Add(dailyPnL.UnrealizedPnL)
	maxLoss := equity.Mul(decimal.NewFromFloat(g.cfg.MaxDailyLossPct / 100.0))

	if total.IsNegative() && total.Abs().GreaterThanOrEqual(maxLoss) {
		g.reject(result, "MAX_DAILY_LOSS", fmt.Sprintf(
			"daily loss %s has reached limit %s", total.Abs(), maxLoss))
	}
}

func (g *Guard) checkMaxCapitalDeployment(result *ValidationResult, a *alert.Alert, positions []broker.Position, equity decimal.Decimal) {
	if g.cfg.MaxCapitalDeploymentPct <= 0 || a.Price.IsZero() || equity.IsZero() {
		return
	}
	var deployed decimal.Decimal
	for _, pos := range positions {
		deployed = deployed.Add(pos.AveragePrice.Mul(decimal.NewFromInt(int64(pos.Quantity))))
	}
	proposed := deployed.Add(a.Price.Mul(decimal.NewFromInt(int64(a.Quantity))))
	maxDeployment := equity.Mul(decimal.NewFromFloat(g.cfg.MaxCapitalDeploymentPct / 100.0))

	if proposed.GreaterThan(maxDeployment) {
		g.reject(result, "MAX_CAPITAL_DEPLOYMENT", fmt.Sprintf(
			"total deployment %s would exceed limit %s (%.1f%% of %s)",
			proposed, maxDeployment, g.cfg.MaxCapitalDeploymentPct, equity))
	}
}

func (g *Guard) reject(result *ValidationResult, rule, message string) {
	result.Approved = false
	result.Rejections = append(result.Rejections, RejectionReason{Rule: rule, Message: message})
}
