// Package main - Daily Trading Statistics CLI
// Shows fills taken, realized P&L, and performance metrics for a funded
// or paper account on a given day, read from the same storage.Store the
// gateway writes to.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nitinkhare/tradegateway/internal/analytics"
	"github.com/nitinkhare/tradegateway/internal/config"
	"github.com/nitinkhare/tradegateway/internal/storage"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[0;31m"
	Green  = "\033[0;32m"
	Yellow = "\033[1;33m"
	Blue   = "\033[0;34m"
	Cyan   = "\033[0;36m"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config file")
	accountFlag := flag.String("account", "", "Account ID to report on (required)")
	dateFlag := flag.String("date", "", "Date in YYYY-MM-DD format (defaults to today)")
	flag.Parse()

	if *accountFlag == "" {
		fmt.Fprintln(os.Stderr, "-account is required")
		os.Exit(1)
	}

	date := *dateFlag
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid date format. Use YYYY-MM-DD")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	fills, err := store.GetFillsByAccount(ctx, *accountFlag, dayStart, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch fills: %v\n", err)
		os.Exit(1)
	}

	dailyPnL, err := store.GetDailyPnL(ctx, *accountFlag, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compute daily P&L: %v\n", err)
		os.Exit(1)
	}

	report := analytics.Analyze(fills)
	displaySummary(*accountFlag, date, dailyPnL.InexactFloat64(), report)
	displayFills(fills)
}

func displaySummary(accountID, date string, dailyPnL float64, report *analytics.PerformanceReport) {
	fmt.Printf("%s=======================================================%s\n", Cyan, Reset)
	fmt.Printf("%s  DAILY TRADING STATISTICS%s\n", Cyan, Reset)
	fmt.Printf("%s  Account: %-20s Date: %s%s\n", Cyan, accountID, date, Reset)
	fmt.Printf("%s=======================================================%s\n\n", Cyan, Reset)

	if report.TotalFills == 0 {
		fmt.Printf("%sNo fills found for %s on %s%s\n\n", Yellow, accountID, date, Reset)
		return
	}

	pnlColor := Green
	if dailyPnL < 0 {
		pnlColor = Red
	}

	fmt.Printf("%sSUMMARY%s\n", Blue, Reset)
	fmt.Printf("  %sTotal fills:%s      %s%d%s\n", Yellow, Reset, Green, report.TotalFills, Reset)
	fmt.Printf("  %sWinning fills:%s    %s%d%s\n", Yellow, Reset, Green, report.WinningFills, Reset)
	fmt.Printf("  %sLosing fills:%s     %s%d%s\n", Yellow, Reset, Red, report.LosingFills, Reset)
	fmt.Printf("  %sWin rate:%s         %s%.1f%%%s\n", Yellow, Reset, Green, report.WinRate, Reset)
	fmt.Println()
	fmt.Printf("  %sDaily P&L:%s        %s$%.2f%s\n", Yellow, Reset, pnlColor, dailyPnL, Reset)
	fmt.Printf("  %sProfit factor:%s    %.2f\n", Yellow, Reset, report.ProfitFactor)
	fmt.Printf("  %sMax drawdown:%s     $%.2f (%.2f%%)\n", Yellow, Reset, report.MaxDrawdown, report.MaxDrawdownPct)
	fmt.Println()
}

func displayFills(fills []storage.FillRecord) {
	if len(fills) == 0 {
		return
	}

	fmt.Printf("%sFILLS%s\n", Blue, Reset)
	fmt.Printf("%-10s %-6s %-8s %-12s %-12s %-12s\n", "Symbol", "Action", "Qty", "Price", "P&L", "Filled At")
	for _, f := range fills {
		pnl := f.RealizedPnL.InexactFloat64()
		pnlColor := Green
		if pnl < 0 {
			pnlColor = Red
		}
		fmt.Printf("%-10s %-6s %-8d %-12s %s%-12.2f%s %-12s\n",
			f.Symbol, f.Action, f.Quantity, f.Price.String(), pnlColor, pnl, Reset,
			f.FilledAt.Format("15:04:05"))
	}
	fmt.Println()
}
