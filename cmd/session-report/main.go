// session-report prints the end-of-session summary and trade log for a
// trading date, straight from PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"trade-agent/config"
	"trade-agent/internal/database"
	"trade-agent/internal/ledger"
)

func main() {
	_ = godotenv.Load()

	dateStr := flag.String("date", "", "trading date YYYY-MM-DD (default: today)")
	byTicker := flag.Bool("by-ticker", false, "include per-ticker breakdown")
	flag.Parse()

	day := time.Now().UTC()
	if *dateStr != "" {
		parsed, err := time.Parse("2006-01-02", *dateStr)
		if err != nil {
			fmt.Printf("❌ invalid date %q: %v\n", *dateStr, err)
			os.Exit(1)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewDB(cfg.DatabaseConfig, zerolog.Nop())
	if err != nil {
		fmt.Printf("❌ database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := repo.Summarize(ctx, from, to)
	if err != nil {
		fmt.Printf("❌ summary: %v\n", err)
		os.Exit(1)
	}
	records, err := repo.TradeRecordsBetween(ctx, from, to)
	if err != nil {
		fmt.Printf("❌ trade records: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("📊 SESSION REPORT: %s\n", from.Format("2006-01-02"))
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Trades:        %d\n", summary.Trades)
	fmt.Printf("Wins:          %d (%.1f%%)\n", summary.Wins, summary.WinRate)
	fmt.Printf("Realized PnL:  $%.2f\n", summary.RealizedPnL)
	fmt.Printf("Max drawdown:  %.2f%%\n", summary.MaxDrawdown)

	if len(records) == 0 {
		fmt.Println("\nNo closed trades.")
		return
	}

	fmt.Println()
	fmt.Printf("%-8s %-10s %10s %10s %10s %10s  %s\n",
		"TICKER", "REASON", "QTY", "ENTRY", "EXIT", "PNL", "HELD")
	fmt.Println(strings.Repeat("-", 80))
	for _, t := range records {
		fmt.Printf("%-8s %-10s %10.2f %10.2f %10.2f %10.2f  %s\n",
			t.Ticker, t.Reason, t.Quantity, t.EntryPrice, t.ExitPrice,
			t.RealizedPnL, t.HoldDuration.Round(time.Minute))
	}

	if *byTicker {
		printTickerBreakdown(records)
	}
}

func printTickerBreakdown(records []ledger.TradeRecord) {
	type stats struct {
		trades int
		wins   int
		pnl    float64
	}
	byTicker := make(map[string]*stats)
	for _, t := range records {
		s, ok := byTicker[t.Ticker]
		if !ok {
			s = &stats{}
			byTicker[t.Ticker] = s
		}
		s.trades++
		if t.RealizedPnL > 0 {
			s.wins++
		}
		s.pnl += t.RealizedPnL
	}

	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Slice(tickers, func(i, j int) bool {
		return byTicker[tickers[i]].pnl > byTicker[tickers[j]].pnl
	})

	fmt.Println()
	fmt.Printf("%-8s %8s %8s %12s\n", "TICKER", "TRADES", "WINS", "PNL")
	fmt.Println(strings.Repeat("-", 40))
	for _, t := range tickers {
		s := byTicker[t]
		fmt.Printf("%-8s %8d %8d %12.2f\n", t, s.trades, s.wins, s.pnl)
	}
}
