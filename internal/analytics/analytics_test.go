package analytics

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nitinkhare/tradegateway/internal/storage"
)

func makeFill(accountID, symbol string, pnl, equity float64, at time.Time) storage.FillRecord {
	return storage.FillRecord{
		AccountID:     accountID,
		Symbol:        symbol,
		Action:        "close",
		Quantity:      1,
		Price:         decimal.NewFromFloat(100),
		RealizedPnL:   decimal.NewFromFloat(pnl),
		AccountEquity: decimal.NewFromFloat(equity),
		FilledAt:      at,
	}
}

func TestAnalyze_EmptyFills(t *testing.T) {
	report := Analyze(nil)
	if report == nil {
		t.Fatal("expected non-nil report")
	}
	if report.TotalFills != 0 {
		t.Errorf("expected 0 fills, got %d", report.TotalFills)
	}
	if report.WinRate != 0 {
		t.Errorf("expected 0 win rate, got %.2f", report.WinRate)
	}
}

func TestAnalyze_AllWins(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []storage.FillRecord{
		makeFill("acct1", "ES", 100, 100100, base),
		makeFill("acct1", "NQ", 220, 100320, base.Add(time.Hour)),
		makeFill("acct1", "ES", 80, 100400, base.Add(2*time.Hour)),
	}

	report := Analyze(fills)

	if report.TotalFills != 3 {
		t.Errorf("expected 3 fills, got %d", report.TotalFills)
	}
	if report.WinningFills != 3 {
		t.Errorf("expected 3 winning fills, got %d", report.WinningFills)
	}
	if report.WinRate != 100 {
		t.Errorf("expected 100%% win rate, got %.2f", report.WinRate)
	}
	if report.TotalPnL != 400 {
		t.Errorf("expected total pnl 400, got %.2f", report.TotalPnL)
	}
	if report.GrossLoss != 0 {
		t.Errorf("expected zero gross loss, got %.2f", report.GrossLoss)
	}
	if !math.IsInf(report.ProfitFactor, 1) {
		t.Errorf("expected +Inf profit factor with no losses, got %.2f", report.ProfitFactor)
	}
	if len(report.SymbolReports) != 2 {
		t.Errorf("expected 2 symbol reports, got %d", len(report.SymbolReports))
	}
}

func TestAnalyze_MixedWinsAndLosses(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []storage.FillRecord{
		makeFill("acct1", "ES", 500, 100500, base),
		makeFill("acct1", "ES", -200, 100300, base.Add(time.Hour)),
		makeFill("acct1", "ES", -100, 100200, base.Add(2*time.Hour)),
		makeFill("acct1", "ES", 300, 100500, base.Add(3*time.Hour)),
	}

	report := Analyze(fills)

	if report.TotalFills != 4 {
		t.Fatalf("expected 4 fills, got %d", report.TotalFills)
	}
	if report.WinningFills != 2 || report.LosingFills != 2 {
		t.Errorf("expected 2 wins / 2 losses, got %d/%d", report.WinningFills, report.LosingFills)
	}
	if report.TotalPnL != 500 {
		t.Errorf("expected total pnl 500, got %.2f", report.TotalPnL)
	}
	wantProfitFactor := 800.0 / 300.0
	if math.Abs(report.ProfitFactor-wantProfitFactor) > 0.001 {
		t.Errorf("expected profit factor %.4f, got %.4f", wantProfitFactor, report.ProfitFactor)
	}
}

func TestAnalyze_MaxDrawdown(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []storage.FillRecord{
		makeFill("acct1", "ES", 1000, 101000, base),
		makeFill("acct1", "ES", -700, 100300, base.Add(time.Hour)),
		makeFill("acct1", "ES", -500, 99800, base.Add(2*time.Hour)),
		makeFill("acct1", "ES", 900, 100700, base.Add(3*time.Hour)),
	}

	report := Analyze(fills)

	wantDrawdown := 101000.0 - 99800.0
	if math.Abs(report.MaxDrawdown-wantDrawdown) > 0.001 {
		t.Errorf("expected max drawdown %.2f, got %.2f", wantDrawdown, report.MaxDrawdown)
	}
	if report.MaxDrawdownPct <= 0 {
		t.Errorf("expected positive drawdown pct, got %.2f", report.MaxDrawdownPct)
	}
}

func TestAnalyze_SkipsZeroEquitySnapshots(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []storage.FillRecord{
		// Live adapter fills that never reconcile AccountEquity inline.
		makeFill("acct1", "AAPL", 50, 0, base),
		makeFill("acct1", "AAPL", -20, 0, base.Add(time.Hour)),
	}

	report := Analyze(fills)

	if report.MaxDrawdown != 0 {
		t.Errorf("expected zero drawdown when no equity snapshots exist, got %.2f", report.MaxDrawdown)
	}
	if report.TotalPnL != 30 {
		t.Errorf("expected total pnl 30, got %.2f", report.TotalPnL)
	}
}

func TestEquityCurve(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []storage.FillRecord{
		makeFill("acct1", "ES", 100, 100100, base.Add(time.Hour)),
		makeFill("acct1", "ES", -50, 100050, base),
	}

	curve := EquityCurve(fills)
	if len(curve) != 2 {
		t.Fatalf("expected 2 equity points, got %d", len(curve))
	}
	if !curve[0].FilledAt.Equal(base) {
		t.Errorf("expected curve sorted chronologically, first point at %v", curve[0].FilledAt)
	}
	if curve[1].Equity != 100100 {
		t.Errorf("expected final equity 100100, got %.2f", curve[1].Equity)
	}
}

func TestFormatReport_NoFills(t *testing.T) {
	got := FormatReport(Analyze(nil))
	if !strings.Contains(got, "No fills") {
		t.Errorf("expected no-fills message, got %q", got)
	}
}

func TestFormatReport_IncludesSymbolBreakdown(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []storage.FillRecord{
		makeFill("acct1", "ES", 100, 100100, base),
		makeFill("acct1", "NQ", -40, 100060, base.Add(time.Hour)),
	}
	got := FormatReport(Analyze(fills))
	if !strings.Contains(got, "ES") || !strings.Contains(got, "NQ") {
		t.Errorf("expected per-symbol breakdown in report, got:\n%s", got)
	}
}
