// Package analytics computes performance metrics from fill records.
//
// It provides:
//   - Win rate, total P&L, average P&L per fill
//   - Maximum drawdown (absolute and percentage) off the account's own
//     equity trail
//   - Sharpe ratio (annualized, assuming 252 trading days)
//   - Profit factor (gross profits / gross losses)
//   - Per-symbol breakdown
//   - Human-readable formatted report
//
// All functions are stateless and work on slices of storage.FillRecord.
// A funded or paper account's performance is the sum of its fills, not a
// reconstruction of round-trip trades: §6.2/§6.3's metrics endpoints
// have no notion of "closed trade" boundaries, only a stream of fills
// each already carrying its own RealizedPnL and post-fill AccountEquity.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nitinkhare/tradegateway/internal/storage"
)

// PerformanceReport holds all computed performance metrics for one
// account's fill history.
type PerformanceReport struct {
	TotalFills   int
	WinningFills int
	LosingFills  int
	WinRate      float64 // percentage (0-100)

	TotalPnL    float64
	AveragePnL  float64
	GrossProfit float64
	GrossLoss   float64

	MaxDrawdown    float64 // absolute, off AccountEquity
	MaxDrawdownPct float64
	SharpeRatio    float64 // annualized
	ProfitFactor   float64 // gross profit / gross loss

	SymbolReports map[string]*SymbolReport
}

// SymbolReport holds per-symbol performance metrics.
type SymbolReport struct {
	Symbol       string
	TotalFills   int
	WinningFills int
	LosingFills  int
	WinRate      float64
	TotalPnL     float64
	AveragePnL   float64
}

// EquityCurvePoint is one point on an account's equity trail.
type EquityCurvePoint struct {
	FilledAt time.Time
	Equity   float64
	Drawdown float64
}

// Analyze computes the full performance report from an account's fill
// history. Returns an empty report (not nil) if no fills are provided.
func Analyze(fills []storage.FillRecord) *PerformanceReport {
	report := &PerformanceReport{
		SymbolReports: make(map[string]*SymbolReport),
	}

	if len(fills) == 0 {
		return report
	}

	sorted := make([]storage.FillRecord, len(fills))
	copy(sorted, fills)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FilledAt.Before(sorted[j].FilledAt)
	})

	var pnls []float64
	for _, f := range sorted {
		pnl, _ := f.RealizedPnL.Float64()
		pnls = append(pnls, pnl)

		report.TotalFills++
		report.TotalPnL += pnl
		if pnl > 0 {
			report.WinningFills++
			report.GrossProfit += pnl
		} else if pnl < 0 {
			report.LosingFills++
			report.GrossLoss += math.Abs(pnl)
		}

		sr, ok := report.SymbolReports[f.Symbol]
		if !ok {
			sr = &SymbolReport{Symbol: f.Symbol}
			report.SymbolReports[f.Symbol] = sr
		}
		sr.TotalFills++
		sr.TotalPnL += pnl
		if pnl > 0 {
			sr.WinningFills++
		} else if pnl < 0 {
			sr.LosingFills++
		}
	}

	report.WinRate = float64(report.WinningFills) / float64(report.TotalFills) * 100
	report.AveragePnL = report.TotalPnL / float64(report.TotalFills)

	if report.GrossLoss > 0 {
		report.ProfitFactor = report.GrossProfit / report.GrossLoss
	} else if report.GrossProfit > 0 {
		report.ProfitFactor = math.Inf(1)
	}

	report.MaxDrawdown, report.MaxDrawdownPct = maxDrawdown(sorted)
	report.SharpeRatio = computeSharpeRatio(pnls)

	for _, sr := range report.SymbolReports {
		if sr.TotalFills > 0 {
			sr.WinRate = float64(sr.WinningFills) / float64(sr.TotalFills) * 100
			sr.AveragePnL = sr.TotalPnL / float64(sr.TotalFills)
		}
	}

	return report
}

// maxDrawdown walks fills in chronological order using each fill's own
// post-fill AccountEquity snapshot, rather than reconstructing equity
// from cumulative P&L — adapters that report AccountEquity inline (the
// paper simulator) give an exact trail; a zero AccountEquity on a fill
// (a live adapter that didn't reconcile equity inline) is skipped.
func maxDrawdown(sorted []storage.FillRecord) (abs, pct float64) {
	var peak float64
	seen := false
	for _, f := range sorted {
		equity, _ := f.AccountEquity.Float64()
		if equity == 0 {
			continue
		}
		if !seen || equity > peak {
			peak = equity
			seen = true
		}
		dd := peak - equity
		if dd > abs {
			abs = dd
			if peak > 0 {
				pct = (dd / peak) * 100
			}
		}
	}
	return abs, pct
}

// EquityCurve returns the account's equity trail from fills carrying a
// non-zero AccountEquity snapshot, in chronological order.
func EquityCurve(fills []storage.FillRecord) []EquityCurvePoint {
	if len(fills) == 0 {
		return nil
	}

	sorted := make([]storage.FillRecord, len(fills))
	copy(sorted, fills)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FilledAt.Before(sorted[j].FilledAt)
	})

	var peak float64
	seen := false
	points := make([]EquityCurvePoint, 0, len(sorted))
	for _, f := range sorted {
		equity, _ := f.AccountEquity.Float64()
		if equity == 0 {
			continue
		}
		if !seen || equity > peak {
			peak = equity
			seen = true
		}
		points = append(points, EquityCurvePoint{
			FilledAt: f.FilledAt,
			Equity:   equity,
			Drawdown: peak - equity,
		})
	}
	return points
}

// FormatReport returns a human-readable text summary of the performance
// report.
func FormatReport(report *PerformanceReport) string {
	if report == nil || report.TotalFills == 0 {
		return "No fills to analyze."
	}

	var b strings.Builder

	b.WriteString("═══════════════════════════════════════════════════\n")
	b.WriteString("              PERFORMANCE REPORT\n")
	b.WriteString("═══════════════════════════════════════════════════\n\n")

	b.WriteString("── FILL SUMMARY ──\n")
	fmt.Fprintf(&b, "  Total fills:     %d\n", report.TotalFills)
	fmt.Fprintf(&b, "  Winning fills:   %d (%.1f%%)\n", report.WinningFills, report.WinRate)
	fmt.Fprintf(&b, "  Losing fills:    %d\n", report.LosingFills)
	b.WriteString("\n")

	b.WriteString("── PROFIT & LOSS ──\n")
	fmt.Fprintf(&b, "  Total P&L:       $%.2f\n", report.TotalPnL)
	fmt.Fprintf(&b, "  Average P&L:     $%.2f\n", report.AveragePnL)
	fmt.Fprintf(&b, "  Gross profit:    $%.2f\n", report.GrossProfit)
	fmt.Fprintf(&b, "  Gross loss:      $%.2f\n", report.GrossLoss)
	fmt.Fprintf(&b, "  Profit factor:   %.2f\n", report.ProfitFactor)
	b.WriteString("\n")

	b.WriteString("── RISK METRICS ──\n")
	fmt.Fprintf(&b, "  Max drawdown:    $%.2f (%.2f%%)\n", report.MaxDrawdown, report.MaxDrawdownPct)
	fmt.Fprintf(&b, "  Sharpe ratio:    %.2f\n", report.SharpeRatio)
	b.WriteString("\n")

	if len(report.SymbolReports) > 1 {
		b.WriteString("── SYMBOL BREAKDOWN ──\n")
		symbols := make([]string, 0, len(report.SymbolReports))
		for sym := range report.SymbolReports {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			sr := report.SymbolReports[sym]
			fmt.Fprintf(&b, "  [%s]\n", sr.Symbol)
			fmt.Fprintf(&b, "    Fills: %d | Win rate: %.1f%% | P&L: $%.2f\n",
				sr.TotalFills, sr.WinRate, sr.TotalPnL)
		}
		b.WriteString("\n")
	}

	b.WriteString("═══════════════════════════════════════════════════\n")

	return b.String()
}

// ────────────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────────────

// computeSharpeRatio calculates the annualized Sharpe ratio from a slice
// of per-fill P&L values. Assumes zero risk-free rate and 252 trading
// days per year.
func computeSharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}

	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		diff := p - mean
		variance += diff * diff
	}
	variance /= float64(len(pnls) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}

	return (mean / stdDev) * math.Sqrt(252)
}
