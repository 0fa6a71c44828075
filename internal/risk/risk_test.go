package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/broker"
)

func testGuardConfig() GuardConfig {
	return GuardConfig{
		RequireStopPrice:        true,
		MaxRiskPerTradePct:      1.0,
		MaxOpenPositions:        5,
		MaxDailyLossPct:         3.0,
		MaxCapitalDeploymentPct: 80.0,
	}
}

func guardAlert(price, stop string, qty int) *alert.Alert {
	return &alert.Alert{
		Symbol: "TEST", Action: alert.ActionBuy, Quantity: qty,
		Price: decimal.RequireFromString(price), StopPrice: decimal.RequireFromString(stop),
	}
}

func TestGuard_RejectsMissingStopPrice(t *testing.T) {
	g := NewGuard(testGuardConfig())
	a := guardAlert("100", "0", 10)

	result := g.Validate(a, nil, decimal.NewFromInt(500000), DailyPnL{})

	if result.Approved {
		t.Error("expected rejection for missing stop_price")
	}
	if result.Rejections[0].Rule != "MANDATORY_STOP_PRICE" {
		t.Errorf("expected MANDATORY_STOP_PRICE rule, got %s", result.Rejections[0].Rule)
	}
}

func TestGuard_RejectsStopPriceAboveEntry(t *testing.T) {
	g := NewGuard(testGuardConfig())
	a := guardAlert("100", "105", 10)

	result := g.Validate(a, nil, decimal.NewFromInt(500000), DailyPnL{})

	if result.Approved {
		t.Error("expected rejection for invalid stop price")
	}
}

func TestGuard_RejectsExcessiveRiskPerTrade(t *testing.T) {
	g := NewGuard(testGuardConfig())
	// Risk = (100 - 50) * 200 = 10000 = 2% of 500000 > 1% limit.
	a := guardAlert("100", "50", 200)

	result := g.Validate(a, nil, decimal.NewFromInt(500000), DailyPnL{})

	if result.Approved {
		t.Error("expected rejection for excessive risk per trade")
	}
}

func TestGuard_RejectsExceedingMaxPositions(t *testing.T) {
	g := NewGuard(testGuardConfig())
	positions := make([]broker.Position, 5)
	for i := range positions {
		positions[i] = broker.Position{Symbol: "STOCK" + string(rune('A'+i))}
	}
	a := guardAlert("100", "95", 10)
	a.Symbol = "NEWSTOCK"

	result := g.Validate(a, positions, decimal.NewFromInt(500000), DailyPnL{})

	if result.Approved {
		t.Error("expected rejection for exceeding max positions")
	}
}

func TestGuard_RejectsDuplicatePosition(t *testing.T) {
	g := NewGuard(testGuardConfig())
	positions := []broker.Position{
		{Symbol: "TEST", AveragePrice: decimal.NewFromInt(100), Quantity: 10},
	}
	a := guardAlert("105", "100", 10)

	result := g.Validate(a, positions, decimal.NewFromInt(500000), DailyPnL{})

	if result.Approved {
		t.Error("expected rejection for duplicate position")
	}
}

func TestGuard_RejectsAtDailyLossLimit(t *testing.T) {
	g := NewGuard(testGuardConfig())
	dailyPnL := DailyPnL{Date: time.Now(), RealizedPnL: decimal.NewFromInt(-15000)} // 3% of 500000.
	a := guardAlert("100", "95", 10)

	result := g.Validate(a, nil, decimal.NewFromInt(500000), dailyPnL)

	if result.Approved {
		t.Error("expected rejection for daily loss limit breach")
	}
}

func TestGuard_ApprovesValidTrade(t *testing.T) {
	g := NewGuard(testGuardConfig())
	a := guardAlert("100", "95", 50) // Risk = 5 * 50 = 250 = 0.05% — well under limit.

	result := g.Validate(a, nil, decimal.NewFromInt(500000), DailyPnL{})

	if !result.Approved {
		t.Errorf("expected approval, got rejections: %v", result.Rejections)
	}
}

func TestGuard_AlwaysAllowsClose(t *testing.T) {
	g := NewGuard(testGuardConfig())
	a := &alert.Alert{Symbol: "TEST", Action: alert.ActionClose}

	// Even at daily loss limit with max positions, closes should be allowed.
	dailyPnL := DailyPnL{RealizedPnL: decimal.NewFromInt(-20000)}
	positions := make([]broker.Position, 5)

	result := g.Validate(a, positions, decimal.Zero, dailyPnL)

	if !result.Approved {
		t.Error("close orders should always be approved")
	}
}

func TestGuard_RejectsExcessiveCapitalDeployment(t *testing.T) {
	g := NewGuard(testGuardConfig())
	positions := []broker.Position{
		{Symbol: "OTHER", AveragePrice: decimal.NewFromInt(100), Quantity: 3900},
	}
	a := guardAlert("100", "95", 101) // 390000 + 10100 = 400100, past 80% of 500000.

	result := g.Validate(a, positions, decimal.NewFromInt(500000), DailyPnL{})

	if result.Approved {
		t.Error("expected rejection for excessive capital deployment")
	}
}

func TestGuard_ChecksDisabledWhenZero(t *testing.T) {
	g := NewGuard(GuardConfig{})
	a := guardAlert("100", "0", 10) // No stop price, but RequireStopPrice is off.

	result := g.Validate(a, nil, decimal.NewFromInt(500000), DailyPnL{})

	if !result.Approved {
		t.Errorf("expected approval with all checks disabled, got %v", result.Rejections)
	}
}
