package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"trade-agent/internal/feed"
)

// State is the circuit breaker state. States only escalate within a
// session: NORMAL -> HALT_ENTRIES -> CLOSE_ALL -> HALTED. There is no
// automatic recovery; a new session starts back at NORMAL.
type State string

const (
	StateNormal      State = "NORMAL"
	StateHaltEntries State = "HALT_ENTRIES"
	StateCloseAll    State = "CLOSE_ALL"
	StateHalted      State = "HALTED"
)

var stateRank = map[State]int{
	StateNormal:      0,
	StateHaltEntries: 1,
	StateCloseAll:    2,
	StateHalted:      3,
}

// Config holds circuit breaker thresholds.
type Config struct {
	Enabled              bool    `json:"enabled"`
	MaxDrawdownPercent   float64 `json:"max_drawdown_percent"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxDrawdownPercent:   5.0,
		MaxConsecutiveLosses: 4,
	}
}

// Breaker implements the session kill switch. It evaluates plain numbers
// fed to it each tick so callers own the accounting.
type Breaker struct {
	mu sync.RWMutex

	config            Config
	state             State
	consecutiveLosses int
	lossTripped       bool
	tripReason        string
	trippedAt         time.Time
	onTransition      func(from, to State, reason string)
}

// New creates a breaker in NORMAL state.
func New(config Config) *Breaker {
	return &Breaker{config: config, state: StateNormal}
}

// OnTransition sets the callback invoked after every state escalation.
func (b *Breaker) OnTransition(handler func(from, to State, reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = handler
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// AllowEntries reports whether new entries are permitted. Exits are
// always permitted regardless of breaker state.
func (b *Breaker) AllowEntries() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.config.Enabled || b.state == StateNormal
}

// CloseAllRequested reports whether the loop must liquidate everything.
func (b *Breaker) CloseAllRequested() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateCloseAll
}

// ConsecutiveLosses returns the current loss streak.
func (b *Breaker) ConsecutiveLosses() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consecutiveLosses
}

// RecordTradeResult feeds a realized trade PnL into the loss streak. A
// winning or flat trade resets the streak, and if the streak was what
// halted entries the halt lifts with it. Drawdown and regime halts never
// lift on a win.
func (b *Breaker) RecordTradeResult(pnl float64) {
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if pnl < 0 {
		b.consecutiveLosses++
		if b.config.Enabled && b.config.MaxConsecutiveLosses > 0 &&
			b.consecutiveLosses >= b.config.MaxConsecutiveLosses &&
			b.state == StateNormal {
			b.lossTripped = true
			b.escalate(StateHaltEntries,
				fmt.Sprintf("consecutive losses: %d", b.consecutiveLosses))
		}
		return
	}

	b.consecutiveLosses = 0
	if b.state == StateHaltEntries && b.lossTripped {
		from := b.state
		b.state = StateNormal
		b.lossTripped = false
		b.tripReason = ""
		if b.onTransition != nil {
			go b.onTransition(from, StateNormal, "loss streak cleared by realized win")
		}
	}
}

// ObserveDrawdown feeds the session drawdown, expressed as a signed
// percentage of session-start equity (a 5% loss is -5.0). Breaching the
// limit demands full liquidation.
func (b *Breaker) ObserveDrawdown(drawdownPercent float64) {
	if math.IsNaN(drawdownPercent) || math.IsInf(drawdownPercent, 0) {
		return
	}
	if !b.config.Enabled || b.config.MaxDrawdownPercent <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if drawdownPercent <= -b.config.MaxDrawdownPercent {
		b.escalate(StateCloseAll,
			fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%",
				drawdownPercent, b.config.MaxDrawdownPercent))
	}
}

// ObserveRegime feeds the market regime severity for this tick.
func (b *Breaker) ObserveRegime(severity feed.RegimeSeverity) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch severity {
	case feed.RegimeStressed:
		b.escalate(StateHaltEntries, "market regime stressed")
	case feed.RegimeCritical:
		b.escalate(StateCloseAll, "market regime critical")
	}
}

// ConfirmClosed moves CLOSE_ALL to HALTED once liquidation completed.
func (b *Breaker) ConfirmClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateCloseAll {
		b.escalate(StateHalted, "liquidation complete")
	}
}

// Restore sets the breaker to a previously persisted state without
// firing callbacks. Used when reconstructing after a restart.
func (b *Breaker) Restore(state State, consecutiveLosses int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := stateRank[state]; !ok {
		state = StateNormal
	}
	b.state = state
	b.consecutiveLosses = consecutiveLosses
	b.lossTripped = state == StateHaltEntries && consecutiveLosses > 0
}

// ResetForSession returns the breaker to NORMAL at session start.
func (b *Breaker) ResetForSession() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateNormal
	b.consecutiveLosses = 0
	b.lossTripped = false
	b.tripReason = ""
	b.trippedAt = time.Time{}
}

// escalate moves the state forward. Backward moves are ignored, so a
// stale loss-streak trigger observed after HALTED cannot reopen entries.
func (b *Breaker) escalate(to State, reason string) {
	if stateRank[to] <= stateRank[b.state] {
		return
	}

	from := b.state
	b.state = to
	b.tripReason = reason
	b.trippedAt = time.Now()

	if b.onTransition != nil {
		go b.onTransition(from, to, reason)
	}
}

// Stats returns breaker statistics for the operator API.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"state":              string(b.state),
		"consecutive_losses": b.consecutiveLosses,
		"trip_reason":        b.tripReason,
		"tripped_at":         b.trippedAt,
		"enabled":            b.config.Enabled,
	}
}
