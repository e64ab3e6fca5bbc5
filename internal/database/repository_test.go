package database

import (
	"testing"

	"trade-agent/internal/ledger"
)

// TestSummarizePercentUnits verifies WinRate and MaxDrawdown come out as
// percentages, so report consumers must not scale them again.
func TestSummarizePercentUnits(t *testing.T) {
	records := []ledger.TradeRecord{
		{RealizedPnL: 50, CapitalBefore: 950, CapitalAfter: 1000},
		{RealizedPnL: -250, CapitalBefore: 1000, CapitalAfter: 750},
	}

	s := summarize(records)
	if s.Trades != 2 || s.Wins != 1 {
		t.Fatalf("trades = %d wins = %d, want 2 and 1", s.Trades, s.Wins)
	}
	if s.WinRate != 50 {
		t.Errorf("win rate = %.2f, want 50 (a percentage, not a fraction)", s.WinRate)
	}
	if s.RealizedPnL != -200 {
		t.Errorf("realized pnl = %.2f, want -200", s.RealizedPnL)
	}
	// Peak 1000 down to 750 is a 25% decline.
	if s.MaxDrawdown != 25 {
		t.Errorf("max drawdown = %.2f, want 25", s.MaxDrawdown)
	}
}

// TestSummarizeEmpty verifies the zero-trade session reports cleanly.
func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil)
	if s.Trades != 0 || s.WinRate != 0 {
		t.Errorf("empty session should be all zeros, got %+v", s)
	}
}
