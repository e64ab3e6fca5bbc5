package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-agent/internal/feed"
)

func newTestLedger() *Ledger {
	return New(DefaultConfig(), zerolog.Nop())
}

func quotes(pairs ...interface{}) map[string]feed.Quote {
	out := make(map[string]feed.Quote)
	for i := 0; i < len(pairs); i += 2 {
		ticker := pairs[i].(string)
		price := pairs[i+1].(float64)
		out[ticker] = feed.Quote{Ticker: ticker, Price: price, At: time.Now()}
	}
	return out
}

// TestOpenRejectsNonPositiveRisk verifies a stop at or above entry is
// rejected before any money moves.
func TestOpenRejectsNonPositiveRisk(t *testing.T) {
	l := newTestLedger()

	_, err := l.Open("AAPL", 10, 100, 100, 0, 0, "sig-1", "ord-1", time.Now())
	if !errors.Is(err, ErrNonPositiveRisk) {
		t.Errorf("stop == entry should be rejected, got %v", err)
	}

	_, err = l.Open("AAPL", 10, 100, 105, 0, 0, "sig-1", "ord-1", time.Now())
	if !errors.Is(err, ErrNonPositiveRisk) {
		t.Errorf("stop above entry should be rejected, got %v", err)
	}
}

// TestOpenRejectsDuplicate verifies one open position per ticker.
func TestOpenRejectsDuplicate(t *testing.T) {
	l := newTestLedger()
	now := time.Now()

	if _, err := l.Open("NVDA", 5, 100, 95, 0, 0, "sig-1", "ord-1", now); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if _, err := l.Open("NVDA", 5, 101, 96, 0, 0, "sig-2", "ord-2", now); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second open for same ticker should fail, got %v", err)
	}
}

// TestTieredTakeProfit verifies the price-banded default targets when a
// signal carries no explicit take profit.
func TestTieredTakeProfit(t *testing.T) {
	tests := []struct {
		name       string
		fillPrice  float64
		wantTarget float64
	}{
		{"under $10 gets 8%", 5, 5 * 1.08},
		{"under $50 gets 5%", 40, 40 * 1.05},
		{"under $200 gets 3%", 150, 150 * 1.03},
		{"above $200 gets 2%", 500, 500 * 1.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			pos, err := l.Open("X", 1, tt.fillPrice, tt.fillPrice*0.9, 0, 0, "s", "o", time.Now())
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if diff := pos.TakeProfit - tt.wantTarget; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("take profit = %.4f, want %.4f", pos.TakeProfit, tt.wantTarget)
			}
		})
	}
}

// TestExplicitTakeProfitKept verifies a signal-supplied target wins over
// the tiers.
func TestExplicitTakeProfitKept(t *testing.T) {
	l := newTestLedger()
	pos, err := l.Open("AMD", 10, 100, 95, 112, 0, "s", "o", time.Now())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if pos.TakeProfit != 112 {
		t.Errorf("explicit target should be kept, got %.2f", pos.TakeProfit)
	}
}

// TestStopLossExit verifies the highest-priority exit rule.
func TestStopLossExit(t *testing.T) {
	l := newTestLedger()
	l.Open("AAPL", 10, 100, 95, 0, 0, "s", "o", time.Now())

	l.OnPriceUpdate(quotes("AAPL", 94.5))
	exits := l.EvaluateExits(time.Now())

	if len(exits) != 1 {
		t.Fatalf("expected 1 exit, got %d", len(exits))
	}
	if exits[0].Reason != ExitStopLoss {
		t.Errorf("reason = %s, want stop_loss", exits[0].Reason)
	}
}

// TestTrailingStopLifecycle verifies activation, the rising high-water
// mark, and the eventual trailing exit.
func TestTrailingStopLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingPercent = 2.0
	cfg.TrailingActivation = 1.5
	l := New(cfg, zerolog.Nop())

	l.Open("MSFT", 10, 100, 90, 200, 0, "s", "o", time.Now())

	// Below activation: a dip must not trigger a trailing exit.
	l.OnPriceUpdate(quotes("MSFT", 101.0))
	l.OnPriceUpdate(quotes("MSFT", 99.5))
	if exits := l.EvaluateExits(time.Now()); len(exits) != 0 {
		t.Fatalf("trailing stop fired before activation: %+v", exits)
	}

	// Peak gain 3% activates the trail at 103 * 0.98 = 100.94.
	l.OnPriceUpdate(quotes("MSFT", 103.0))
	if exits := l.EvaluateExits(time.Now()); len(exits) != 0 {
		t.Fatalf("unexpected exit at the peak: %+v", exits)
	}

	// The mark never falls: a lower print leaves the trail at 100.94.
	l.OnPriceUpdate(quotes("MSFT", 102.0))
	if exits := l.EvaluateExits(time.Now()); len(exits) != 0 {
		t.Fatalf("price above trail should not exit: %+v", exits)
	}

	l.OnPriceUpdate(quotes("MSFT", 100.5))
	exits := l.EvaluateExits(time.Now())
	if len(exits) != 1 || exits[0].Reason != ExitTrailingStop {
		t.Errorf("expected trailing stop exit, got %+v", exits)
	}
}

// TestMaxHoldExit verifies the time-based exit.
func TestMaxHoldExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHold = 4 * time.Hour
	l := New(cfg, zerolog.Nop())

	entry := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l.Open("ORCL", 10, 100, 95, 0, 0, "s", "o", entry)
	l.OnPriceUpdate(quotes("ORCL", 101.0))

	if exits := l.EvaluateExits(entry.Add(3 * time.Hour)); len(exits) != 0 {
		t.Fatalf("exit before max hold: %+v", exits)
	}

	exits := l.EvaluateExits(entry.Add(4 * time.Hour))
	if len(exits) != 1 || exits[0].Reason != ExitMaxHold {
		t.Errorf("expected max hold exit, got %+v", exits)
	}
}

// TestOutageKeepsLastPrice verifies a missing or zero quote never moves
// the mark, so a feed outage cannot fake a stop-loss crash.
func TestOutageKeepsLastPrice(t *testing.T) {
	l := newTestLedger()
	l.Open("AAPL", 10, 100, 95, 0, 0, "s", "o", time.Now())
	l.OnPriceUpdate(quotes("AAPL", 101.0))

	// Empty snapshot: outage.
	l.OnPriceUpdate(map[string]feed.Quote{})
	pos, _ := l.Get("AAPL")
	if pos.CurrentPrice != 101.0 {
		t.Errorf("outage moved the mark to %.2f", pos.CurrentPrice)
	}

	// Unusable prices keep the mark even when fed around the book.
	for _, bad := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		l.OnPriceUpdate(quotes("AAPL", bad))
		pos, _ = l.Get("AAPL")
		if pos.CurrentPrice != 101.0 {
			t.Errorf("quote %v moved the mark to %.2f", bad, pos.CurrentPrice)
		}
	}

	if exits := l.EvaluateExits(time.Now()); len(exits) != 0 {
		t.Errorf("outage must not trigger exits: %+v", exits)
	}
}

// TestExitPendingNotDoubled verifies an in-flight exit is not re-issued.
func TestExitPendingNotDoubled(t *testing.T) {
	l := newTestLedger()
	l.Open("NVDA", 10, 100, 95, 0, 0, "s", "o", time.Now())
	l.OnPriceUpdate(quotes("NVDA", 90.0))

	if err := l.MarkExitPending("NVDA", "exit-1"); err != nil {
		t.Fatalf("mark pending failed: %v", err)
	}
	if exits := l.EvaluateExits(time.Now()); len(exits) != 0 {
		t.Errorf("pending position re-evaluated: %+v", exits)
	}

	// Failed submission puts it back in play.
	l.ReleaseExitPending("NVDA")
	if exits := l.EvaluateExits(time.Now()); len(exits) != 1 {
		t.Errorf("released position should exit again, got %+v", exits)
	}
}

// TestCloseComputesNetPnL verifies the trade record accounting.
func TestCloseComputesNetPnL(t *testing.T) {
	l := newTestLedger()
	entry := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l.Open("AAPL", 10, 100, 95, 0, 1.0, "s", "o", entry)

	record, err := l.Close("AAPL", 105, 1.0, 10000, ExitTakeProfit, entry.Add(time.Hour))
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// (105-100)*10 - 2.0 commissions
	if record.RealizedPnL != 48.0 {
		t.Errorf("pnl = %.2f, want 48.00", record.RealizedPnL)
	}
	if record.RealizedPnLPct != 5.0 {
		t.Errorf("pnl pct = %.2f, want 5.00", record.RealizedPnLPct)
	}
	if record.CapitalAfter != 10048.0 {
		t.Errorf("capital after = %.2f, want 10048.00", record.CapitalAfter)
	}
	if record.HoldDuration != time.Hour {
		t.Errorf("hold = %s, want 1h", record.HoldDuration)
	}

	if l.Count() != 0 {
		t.Error("closed position should leave the ledger")
	}
	if _, err := l.Close("AAPL", 105, 0, 0, ExitManual, time.Now()); !errors.Is(err, ErrNotOpen) {
		t.Errorf("double close should fail with ErrNotOpen, got %v", err)
	}
}

// TestRestoreReopensExitPending verifies restart reconstruction.
func TestRestoreReopensExitPending(t *testing.T) {
	l := newTestLedger()
	l.Restore([]Position{
		{Ticker: "AAPL", Quantity: 10, EntryPrice: 100, StopLoss: 95, TakeProfit: 105,
			Status: StatusExitPending, ExitOrderID: "stale"},
		{Ticker: "MSFT", Quantity: 5, EntryPrice: 300, StopLoss: 290, TakeProfit: 310,
			Status: StatusOpen},
		{Ticker: "GONE", Status: StatusClosed},
	})

	if l.Count() != 2 {
		t.Fatalf("expected 2 restored positions, got %d", l.Count())
	}
	pos, _ := l.Get("AAPL")
	if pos.Status != StatusOpen || pos.ExitOrderID != "" {
		t.Errorf("EXIT_PENDING should come back OPEN with no stale order id, got %+v", pos)
	}
}
