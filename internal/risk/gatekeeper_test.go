package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-agent/internal/broker"
	"trade-agent/internal/circuit"
	"trade-agent/internal/feed"
)

type stubCooldown struct {
	blocked map[string]bool
}

func (s *stubCooldown) Allowed(ticker string, _ time.Time) bool {
	return !s.blocked[ticker]
}

func (s *stubCooldown) Remaining(ticker string, _ time.Time) time.Duration {
	if s.blocked[ticker] {
		return 5 * time.Minute
	}
	return 0
}

type stubEarnings struct {
	blackout map[string]bool
	err      error
}

func (s *stubEarnings) InBlackout(_ context.Context, ticker string, _ time.Time) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.blackout[ticker], nil
}

func newTestGatekeeper(t *testing.T, cooldown CooldownChecker, earnings EarningsChecker) *Gatekeeper {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SizingFraction = 0.30
	g, err := NewGatekeeper(cfg, cooldown, earnings, zerolog.Nop())
	if err != nil {
		t.Fatalf("gatekeeper: %v", err)
	}
	return g
}

// midSession is a weekday time well inside the entry window.
func midSession(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2026, 3, 2, 11, 0, 0, 0, loc)
}

func normalState() *State {
	return NewState(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 500)
}

func goodSignal() feed.Signal {
	return feed.Signal{
		ID: "sig-1", Ticker: "NVDA", CompositeScore: 0.9,
		EntryPrice: 50, StopLoss: 47, GeneratedAt: time.Now(),
	}
}

var richAccount = broker.AccountSnapshot{Equity: 500, Cash: 500}

// TestMalformedSignalRejected verifies the first check in the sequence.
func TestMalformedSignalRejected(t *testing.T) {
	g := newTestGatekeeper(t, nil, nil)

	sig := goodSignal()
	sig.Ticker = ""
	d := g.Evaluate(context.Background(), sig, richAccount, normalState(), midSession(t))
	if d.Allowed || d.Reason != ReasonMalformedSignal {
		t.Errorf("empty ticker should reject as malformed, got %+v", d)
	}

	sig = goodSignal()
	sig.EntryPrice = 0
	d = g.Evaluate(context.Background(), sig, richAccount, normalState(), midSession(t))
	if d.Allowed || d.Reason != ReasonMalformedSignal {
		t.Errorf("zero entry price should reject as malformed, got %+v", d)
	}
}

// TestTradingWindow verifies entries outside 09:35-15:55 ET are blocked.
func TestTradingWindow(t *testing.T) {
	g := newTestGatekeeper(t, nil, nil)
	loc, _ := time.LoadLocation("America/New_York")

	tests := []struct {
		name  string
		at    time.Time
		inWin bool
	}{
		{"before open buffer", time.Date(2026, 3, 2, 9, 34, 0, 0, loc), false},
		{"window start", time.Date(2026, 3, 2, 9, 35, 0, 0, loc), true},
		{"mid session", time.Date(2026, 3, 2, 12, 0, 0, 0, loc), true},
		{"window end", time.Date(2026, 3, 2, 15, 55, 0, 0, loc), false},
		{"after close", time.Date(2026, 3, 2, 16, 30, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.InWindow(tt.at); got != tt.inWin {
				t.Errorf("InWindow(%s) = %v, want %v", tt.at.Format("15:04"), got, tt.inWin)
			}
			d := g.Evaluate(context.Background(), goodSignal(), richAccount, normalState(), tt.at)
			if d.Allowed != tt.inWin {
				t.Errorf("Evaluate allowed = %v, want %v", d.Allowed, tt.inWin)
			}
			if !tt.inWin && d.Reason != ReasonOutsideWindow {
				t.Errorf("reason = %s, want outside_trading_window", d.Reason)
			}
		})
	}
}

// TestBreakerBlocksEntries verifies any non-NORMAL breaker state rejects.
func TestBreakerBlocksEntries(t *testing.T) {
	g := newTestGatekeeper(t, nil, nil)

	for _, state := range []circuit.State{circuit.StateHaltEntries, circuit.StateCloseAll, circuit.StateHalted} {
		s := normalState()
		s.BreakerState = state
		d := g.Evaluate(context.Background(), goodSignal(), richAccount, s, midSession(t))
		if d.Allowed || d.Reason != ReasonBreaker {
			t.Errorf("breaker %s should reject, got %+v", state, d)
		}
	}
}

// TestCooldownBlocksReentry verifies the cooldown check and its position
// after the breaker check.
func TestCooldownBlocksReentry(t *testing.T) {
	cd := &stubCooldown{blocked: map[string]bool{"NVDA": true}}
	g := newTestGatekeeper(t, cd, nil)

	d := g.Evaluate(context.Background(), goodSignal(), richAccount, normalState(), midSession(t))
	if d.Allowed || d.Reason != ReasonCooldown {
		t.Errorf("cooldown should reject, got %+v", d)
	}

	// Breaker outranks cooldown in the reported reason.
	s := normalState()
	s.BreakerState = circuit.StateHaltEntries
	d = g.Evaluate(context.Background(), goodSignal(), richAccount, s, midSession(t))
	if d.Reason != ReasonBreaker {
		t.Errorf("breaker should be reported before cooldown, got %s", d.Reason)
	}
}

// TestQuarantineBlocksEntry verifies quarantined tickers are rejected.
func TestQuarantineBlocksEntry(t *testing.T) {
	g := newTestGatekeeper(t, nil, nil)
	s := normalState()
	s.Quarantine("NVDA")

	d := g.Evaluate(context.Background(), goodSignal(), richAccount, s, midSession(t))
	if d.Allowed || d.Reason != ReasonQuarantine {
		t.Errorf("quarantined ticker should reject, got %+v", d)
	}
}

// TestEarningsBlackout verifies the blackout rejection and the fail-open
// behavior on provider errors.
func TestEarningsBlackout(t *testing.T) {
	e := &stubEarnings{blackout: map[string]bool{"NVDA": true}}
	g := newTestGatekeeper(t, nil, e)

	d := g.Evaluate(context.Background(), goodSignal(), richAccount, normalState(), midSession(t))
	if d.Allowed || d.Reason != ReasonEarnings {
		t.Errorf("blackout should reject, got %+v", d)
	}

	// Provider outage: the check fails open and the entry proceeds.
	g = newTestGatekeeper(t, nil, &stubEarnings{err: errors.New("provider down")})
	d = g.Evaluate(context.Background(), goodSignal(), richAccount, normalState(), midSession(t))
	if !d.Allowed {
		t.Errorf("provider error must fail open, got %+v", d)
	}
}

// TestSizeClamping covers the $500-equity case: a 30% sizing fraction
// wants $150 but the 20% cap clamps the entry to $100.
func TestSizeClamping(t *testing.T) {
	g := newTestGatekeeper(t, nil, nil)

	d := g.Evaluate(context.Background(), goodSignal(), richAccount, normalState(), midSession(t))
	if !d.Allowed {
		t.Fatalf("entry should be allowed, got %+v", d)
	}
	if d.Notional != 100 {
		t.Errorf("notional = %.2f, want 100.00 (20%% cap of $500)", d.Notional)
	}
	if !d.Clamped {
		t.Error("decision should be flagged as clamped")
	}
	if d.Quantity != 2 {
		t.Errorf("quantity = %.2f, want 2 shares at $50", d.Quantity)
	}
}

// TestCashClamp verifies available cash bounds the notional.
func TestCashClamp(t *testing.T) {
	g := newTestGatekeeper(t, nil, nil)
	account := broker.AccountSnapshot{Equity: 500, Cash: 40}

	d := g.Evaluate(context.Background(), goodSignal(), account, normalState(), midSession(t))
	if !d.Allowed || d.Notional != 40 {
		t.Errorf("notional should clamp to cash, got %+v", d)
	}
}

// TestZeroCashRejects verifies a clamp to zero is the only size rejection.
func TestZeroCashRejects(t *testing.T) {
	g := newTestGatekeeper(t, nil, nil)
	account := broker.AccountSnapshot{Equity: 500, Cash: 0}

	d := g.Evaluate(context.Background(), goodSignal(), account, normalState(), midSession(t))
	if d.Allowed || d.Reason != ReasonZeroSize {
		t.Errorf("zero cash should reject with size_clamped_to_zero, got %+v", d)
	}
}

// TestSmallAccountCapRelaxed verifies accounts under the threshold get
// the relaxed cap so they can trade at all.
func TestSmallAccountCapRelaxed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SizingFraction = 0.30
	g, err := NewGatekeeper(cfg, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("gatekeeper: %v", err)
	}

	account := broker.AccountSnapshot{Equity: 200, Cash: 200}
	d := g.Evaluate(context.Background(), goodSignal(), account, normalState(), midSession(t))
	if !d.Allowed {
		t.Fatalf("entry should be allowed, got %+v", d)
	}
	// 25% of $200, not 20%.
	if d.Notional != 50 {
		t.Errorf("notional = %.2f, want 50.00 under the relaxed cap", d.Notional)
	}
}

// TestLiquidityFilter verifies the final check in the sequence.
func TestLiquidityFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDollarVolume = 1_000_000
	cfg.MaxSpreadPct = 0.5
	g, err := NewGatekeeper(cfg, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("gatekeeper: %v", err)
	}

	sig := goodSignal()
	sig.DollarVolume = 500_000
	d := g.Evaluate(context.Background(), sig, richAccount, normalState(), midSession(t))
	if d.Allowed || d.Reason != ReasonLiquidity {
		t.Errorf("thin dollar volume should reject, got %+v", d)
	}

	sig = goodSignal()
	sig.DollarVolume = 2_000_000
	sig.SpreadPercent = 1.2
	d = g.Evaluate(context.Background(), sig, richAccount, normalState(), midSession(t))
	if d.Allowed || d.Reason != ReasonLiquidity {
		t.Errorf("wide spread should reject, got %+v", d)
	}
}

// TestInvalidConfig verifies constructor validation.
func TestInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowStart = "15:55"
	cfg.WindowEnd = "09:35"
	if _, err := NewGatekeeper(cfg, nil, nil, zerolog.Nop()); err == nil {
		t.Error("inverted window should fail construction")
	}

	cfg = DefaultConfig()
	cfg.WindowStart = "not-a-time"
	if _, err := NewGatekeeper(cfg, nil, nil, zerolog.Nop()); err == nil {
		t.Error("unparseable window should fail construction")
	}
}
