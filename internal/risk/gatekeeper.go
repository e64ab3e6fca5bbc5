package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trade-agent/internal/broker"
	"trade-agent/internal/circuit"
	"trade-agent/internal/feed"
)

// RejectReason is the typed outcome of a failed gatekeeper check.
type RejectReason string

const (
	ReasonNone            RejectReason = ""
	ReasonMalformedSignal RejectReason = "malformed_signal"
	ReasonOutsideWindow   RejectReason = "outside_trading_window"
	ReasonBreaker         RejectReason = "circuit_breaker"
	ReasonCooldown        RejectReason = "cooldown"
	ReasonQuarantine      RejectReason = "quarantined"
	ReasonEarnings        RejectReason = "earnings_blackout"
	ReasonZeroSize        RejectReason = "size_clamped_to_zero"
	ReasonLiquidity       RejectReason = "liquidity"
)

// Decision is the gatekeeper verdict for one entry candidate.
type Decision struct {
	Allowed  bool
	Reason   RejectReason
	Detail   string
	Quantity float64
	Notional float64
	Clamped  bool
}

// CooldownChecker answers whether a ticker has cleared its re-entry
// cooldown.
type CooldownChecker interface {
	Allowed(ticker string, now time.Time) bool
	Remaining(ticker string, now time.Time) time.Duration
}

// EarningsChecker answers whether a ticker sits inside its earnings
// blackout window. An error means the provider is unavailable; the
// gatekeeper fails open on it.
type EarningsChecker interface {
	InBlackout(ctx context.Context, ticker string, now time.Time) (bool, error)
}

// Config holds the gatekeeper thresholds.
type Config struct {
	// Entry window, wall-clock in Location. Exits are exempt.
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	Location    string `json:"location"`

	// Sizing. Desired notional is SizingFraction of current equity,
	// clamped to min(CapFraction x equity, cash). Accounts below
	// SmallAccountThreshold use SmallAccountCapFraction instead.
	SizingFraction          float64 `json:"sizing_fraction"`
	CapFraction             float64 `json:"cap_fraction"`
	SmallAccountThreshold   float64 `json:"small_account_threshold"`
	SmallAccountCapFraction float64 `json:"small_account_cap_fraction"`

	// Liquidity filter; zero disables the corresponding check.
	MinDollarVolume float64 `json:"min_dollar_volume"`
	MaxSpreadPct    float64 `json:"max_spread_percent"`
}

// DefaultConfig returns the standard gatekeeper thresholds.
func DefaultConfig() Config {
	return Config{
		WindowStart:             "09:35",
		WindowEnd:               "15:55",
		Location:                "America/New_York",
		SizingFraction:          0.10,
		CapFraction:             0.20,
		SmallAccountThreshold:   250,
		SmallAccountCapFraction: 0.25,
		MinDollarVolume:         0,
		MaxSpreadPct:            0,
	}
}

// Gatekeeper runs every entry candidate through a fixed sequence of
// checks and sizes the approved ones. Evaluation never mutates anything;
// the caller applies the decision.
type Gatekeeper struct {
	log      zerolog.Logger
	config   Config
	loc      *time.Location
	startMin int
	endMin   int
	cooldown CooldownChecker
	earnings EarningsChecker
}

// NewGatekeeper builds a gatekeeper. earnings may be nil to disable the
// blackout check entirely.
func NewGatekeeper(config Config, cooldown CooldownChecker, earnings EarningsChecker, log zerolog.Logger) (*Gatekeeper, error) {
	loc, err := time.LoadLocation(config.Location)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", config.Location, err)
	}
	start, err := parseClock(config.WindowStart)
	if err != nil {
		return nil, fmt.Errorf("parse window start: %w", err)
	}
	end, err := parseClock(config.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("parse window end: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("window end %s not after start %s", config.WindowEnd, config.WindowStart)
	}

	return &Gatekeeper{
		log:      log,
		config:   config,
		loc:      loc,
		startMin: start,
		endMin:   end,
		cooldown: cooldown,
		earnings: earnings,
	}, nil
}

// Evaluate runs the checks in their fixed order and short-circuits on
// the first failure. Size violations clamp rather than reject; only a
// clamp to zero rejects.
func (g *Gatekeeper) Evaluate(ctx context.Context, sig feed.Signal, account broker.AccountSnapshot, state *State, now time.Time) Decision {
	if sig.Ticker == "" || sig.EntryPrice <= 0 {
		return reject(ReasonMalformedSignal, fmt.Sprintf("ticker %q entry %.2f", sig.Ticker, sig.EntryPrice))
	}

	if !g.InWindow(now) {
		return reject(ReasonOutsideWindow, fmt.Sprintf("%s outside %s-%s",
			now.In(g.loc).Format("15:04:05"), g.config.WindowStart, g.config.WindowEnd))
	}

	if state.BreakerState != circuit.StateNormal {
		return reject(ReasonBreaker, string(state.BreakerState))
	}

	if g.cooldown != nil && !g.cooldown.Allowed(sig.Ticker, now) {
		return reject(ReasonCooldown, fmt.Sprintf("%s remaining", g.cooldown.Remaining(sig.Ticker, now).Round(time.Second)))
	}

	if state.IsQuarantined(sig.Ticker) {
		return reject(ReasonQuarantine, "awaiting operator clearance")
	}

	if g.earnings != nil {
		blackout, err := g.earnings.InBlackout(ctx, sig.Ticker, now)
		if err != nil {
			// Provider outage fails open: a missed blackout is survivable,
			// a dead strategy is not.
			g.log.Warn().Err(err).Str("ticker", sig.Ticker).
				Msg("earnings provider unavailable, failing open")
		} else if blackout {
			return reject(ReasonEarnings, "inside earnings blackout window")
		}
	}

	notional, clamped := g.size(account)
	if notional <= 0 {
		return reject(ReasonZeroSize, fmt.Sprintf("equity %.2f cash %.2f", account.Equity, account.Cash))
	}
	if clamped {
		g.log.Warn().Str("ticker", sig.Ticker).Float64("notional", notional).
			Float64("equity", account.Equity).Msg("entry notional clamped to cap")
	}

	if g.config.MinDollarVolume > 0 && sig.DollarVolume > 0 && sig.DollarVolume < g.config.MinDollarVolume {
		return reject(ReasonLiquidity, fmt.Sprintf("dollar volume %.0f below %.0f", sig.DollarVolume, g.config.MinDollarVolume))
	}
	if g.config.MaxSpreadPct > 0 && sig.SpreadPercent > g.config.MaxSpreadPct {
		return reject(ReasonLiquidity, fmt.Sprintf("spread %.2f%% above %.2f%%", sig.SpreadPercent, g.config.MaxSpreadPct))
	}

	return Decision{
		Allowed:  true,
		Quantity: notional / sig.EntryPrice,
		Notional: notional,
		Clamped:  clamped,
	}
}

// InWindow reports whether now falls inside the entry window. Exit
// processing never consults this.
func (g *Gatekeeper) InWindow(now time.Time) bool {
	local := now.In(g.loc)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= g.startMin && minutes < g.endMin
}

// size computes the entry notional: the sizing fraction of current
// equity, clamped by the hard cap and available cash.
func (g *Gatekeeper) size(account broker.AccountSnapshot) (float64, bool) {
	desired := g.config.SizingFraction * account.Equity

	capFraction := g.config.CapFraction
	if g.config.SmallAccountThreshold > 0 && account.Equity < g.config.SmallAccountThreshold {
		capFraction = g.config.SmallAccountCapFraction
	}
	ceiling := capFraction * account.Equity

	notional := desired
	clamped := false
	if notional > ceiling {
		notional = ceiling
		clamped = true
	}
	if notional > account.Cash {
		notional = account.Cash
		clamped = true
	}
	if notional < 0 {
		notional = 0
	}
	return notional, clamped
}

func reject(reason RejectReason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
