package risk

import (
	"testing"
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/shopspring/decimal"
)

func newTestFundedRules(accountID string) *FundedRules {
	return &FundedRules{
		AccountID:        accountID,
		MaxDailyLoss:     decimal.NewFromInt(1000),
		TrailingDrawdown: decimal.NewFromInt(2000),
		MaxContracts:     5,
		MaxConcurrentPos: 3,
		MaxDailyTrades:   10,
	}
}

func buyAlert(t *testing.T, symbol string, qty int) *alert.Alert {
	t.Helper()
	a, err := alert.Parse([]byte(`{"symbol":"` + symbol + `","action":"buy","quantity":` +
		itoa(qty) + `,"order_type":"market","account_group":"topstep_tradovate"}`))
	if err != nil {
		t.Fatalf("alert.Parse: %v", err)
	}
	return a
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestEvaluate_AllowsWhenNotFunded(t *testing.T) {
	e := NewEngine()
	a := buyAlert(t, "ESZ26", 1)
	result := e.Evaluate("acct-unfunded", a, 1, time.Now())
	if !result.Allow {
		t.Fatal("expected allow for a non-funded account")
	}
}

func TestEvaluate_DeniesWhenViolated(t *testing.T) {
	e := NewEngine()
	r := newTestFundedRules("acct-1")
	r.State = RuleStateViolated
	e.Register(r)

	result := e.Evaluate("acct-1", buyAlert(t, "ESZ26", 1), 1, time.Now())
	if result.Allow {
		t.Fatal("expected deny for violated account")
	}
	if result.Reason != "account_violated" {
		t.Errorf("reason = %q, want account_violated", result.Reason)
	}
}

func TestEvaluate_CloseDeniedWhenViolated(t *testing.T) {
	e := NewEngine()
	r := newTestFundedRules("acct-1")
	r.State = RuleStateViolated
	e.Register(r)

	a, err := alert.Parse([]byte(`{"symbol":"ESZ26","action":"close","quantity":1,"account_group":"topstep_tradovate"}`))
	if err != nil {
		t.Fatalf("alert.Parse: %v", err)
	}
	result := e.Evaluate("acct-1", a, 0, time.Now())
	if result.Allow {
		t.Fatal("expected close on a violated account to be denied")
	}
	if result.Reason != "account_violated" {
		t.Errorf("reason = %q, want account_violated", result.Reason)
	}
}

func TestEvaluate_DeniesOverMaxContracts(t *testing.T) {
	e := NewEngine()
	e.Register(newTestFundedRules("acct-1"))

	result := e.Evaluate("acct-1", buyAlert(t, "ESZ26", 6), 1, time.Now())
	if result.Allow {
		t.Fatal("expected deny for exceeding max_contracts")
	}
	if result.Reason != "position_size" {
		t.Errorf("reason = %q, want position_size", result.Reason)
	}
}

func TestEvaluate_DeniesRestrictedSymbol(t *testing.T) {
	e := NewEngine()
	r := newTestFundedRules("acct-1")
	r.RestrictedSymbols = map[string]bool{"NQZ26": true}
	e.Register(r)

	result := e.Evaluate("acct-1", buyAlert(t, "NQZ26", 1), 1, time.Now())
	if result.Allow {
		t.Fatal("expected deny for restricted symbol")
	}
	if result.Reason != "restricted_symbol" {
		t.Errorf("reason = %q, want restricted_symbol", result.Reason)
	}
}

func TestEvaluate_DeniesOutsideTradingWindow(t *testing.T) {
	e := NewEngine()
	r := newTestFundedRules("acct-1")
	r.TradingWindows = []TradingWindow{
		{Weekday: time.Monday, Start: 9 * time.Hour, End: 10 * time.Hour, Location: time.UTC},
	}
	e.Register(r)

	tuesday := time.Date(2026, 7, 28, 9, 30, 0, 0, time.UTC)
	result := e.Evaluate("acct-1", buyAlert(t, "ESZ26", 1), 1, tuesday)
	if result.Allow {
		t.Fatal("expected deny outside the configured trading window")
	}
	if result.Reason != "trading_hours" {
		t.Errorf("reason = %q, want trading_hours", result.Reason)
	}
}

func TestEvaluate_DeniesMaxDailyTrades(t *testing.T) {
	e := NewEngine()
	r := newTestFundedRules("acct-1")
	r.MaxDailyTrades = 2
	r.TodayTradeCount = 2
	e.Register(r)

	result := e.Evaluate("acct-1", buyAlert(t, "ESZ26", 1), 1, time.Now())
	if result.Allow {
		t.Fatal("expected deny for exceeding max_daily_trades")
	}
	if result.Reason != "max_trades" {
		t.Errorf("reason = %q, want max_trades", result.Reason)
	}
}

func TestEvaluate_DeniesMaxConcurrentPositions(t *testing.T) {
	e := NewEngine()
	e.Register(newTestFundedRules("acct-1"))

	result := e.Evaluate("acct-1", buyAlert(t, "ESZ26", 1), 4, time.Now())
	if result.Allow {
		t.Fatal("expected deny for exceeding max_concurrent_positions")
	}
	if result.Reason != "position_size" {
		t.Errorf("reason = %q, want position_size", result.Reason)
	}
}

func TestEvaluate_EmitsWarningNearLossLimit(t *testing.T) {
	e := NewEngine()
	r := newTestFundedRules("acct-1")
	r.CurrentDailyPnL = decimal.NewFromInt(-850) // buffer = 1000-850=150 <= 0.2*1000=200
	e.Register(r)

	result := e.Evaluate("acct-1", buyAlert(t, "ESZ26", 1), 1, time.Now())
	if !result.Allow {
		t.Fatal("expected allow with a warning, not a deny")
	}
	if result.Violation == nil {
		t.Fatal("expected a warning Violation")
	}
	if result.Violation.Severity != SeverityWarning {
		t.Errorf("severity = %s, want warning", result.Violation.Severity)
	}
}

func TestApplyFill_TripsOnDailyLossBreach(t *testing.T) {
	e := NewEngine()
	e.Register(newTestFundedRules("acct-1"))

	result := e.ApplyFill("acct-1", decimal.NewFromInt(-1000), decimal.NewFromInt(49000), time.Now())
	if !result.FlattenRequested {
		t.Fatal("expected a flatten request on daily-loss breach")
	}
	if result.Violation == nil || result.Violation.Kind != ViolationDailyLoss {
		t.Fatalf("expected a daily_loss violation, got %+v", result.Violation)
	}

	rules, _ := e.Rules("acct-1")
	if rules.State != RuleStateViolated {
		t.Errorf("state = %s, want violated", rules.State)
	}

	// Once violated, further evaluation must deny regardless of the trade.
	deny := e.Evaluate("acct-1", buyAlert(t, "ESZ26", 1), 1, time.Now())
	if deny.Allow {
		t.Fatal("expected subsequent evaluation to deny after violation")
	}
}

func TestApplyFill_TripsOnDrawdownBreach(t *testing.T) {
	e := NewEngine()
	r := newTestFundedRules("acct-1")
	e.Register(r)

	e.ApplyFill("acct-1", decimal.NewFromInt(500), decimal.NewFromInt(50500), time.Now())
	result := e.ApplyFill("acct-1", decimal.NewFromInt(-2500), decimal.NewFromInt(48000), time.Now())
	if !result.FlattenRequested {
		t.Fatal("expected a flatten request on drawdown breach")
	}
	if result.Violation == nil || result.Violation.Kind != ViolationDrawdown {
		t.Fatalf("expected a drawdown violation, got %+v", result.Violation)
	}
}

func TestRiskLevel_Classification(t *testing.T) {
	r := newTestFundedRules("acct-1")
	if r.RiskLevel() != RiskLevelSafe {
		t.Errorf("fresh account should be safe, got %s", r.RiskLevel())
	}

	r.CurrentDailyPnL = decimal.NewFromInt(-650) // 65% utilized
	if r.RiskLevel() != RiskLevelWarning {
		t.Errorf("65%% utilized should be warning, got %s", r.RiskLevel())
	}

	r.CurrentDailyPnL = decimal.NewFromInt(-850) // 85% utilized
	if r.RiskLevel() != RiskLevelDanger {
		t.Errorf("85%% utilized should be danger, got %s", r.RiskLevel())
	}
}

func TestResetAccount_ClearsViolatedState(t *testing.T) {
	e := NewEngine()
	e.Register(newTestFundedRules("acct-1"))
	e.ApplyFill("acct-1", decimal.NewFromInt(-1000), decimal.NewFromInt(49000), time.Now())

	if err := e.ResetAccount("acct-1"); err != nil {
		t.Fatalf("ResetAccount: %v", err)
	}
	rules, _ := e.Rules("acct-1")
	if rules.State != RuleStateActive {
		t.Errorf("state after reset = %s, want active", rules.State)
	}
}

func TestResetAccount_UnknownAccountErrors(t *testing.T) {
	e := NewEngine()
	if err := e.ResetAccount("nope"); err == nil {
		t.Fatal("expected error for unregistered account")
	}
}
