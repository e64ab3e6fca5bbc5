package risk

import (
	"sort"
	"time"

	"trade-agent/internal/circuit"
)

// State is the explicit session risk state threaded through the trading
// loop. Exactly one instance exists; only the loop goroutine mutates it.
type State struct {
	SessionDate        time.Time
	SessionStartEquity float64
	CurrentEquity      float64
	ConsecutiveLosses  int
	BreakerState       circuit.State
	Quarantined        map[string]bool
}

// NewState starts a fresh session from the opening equity snapshot.
func NewState(sessionDate time.Time, startEquity float64) *State {
	return &State{
		SessionDate:        sessionDate,
		SessionStartEquity: startEquity,
		CurrentEquity:      startEquity,
		BreakerState:       circuit.StateNormal,
		Quarantined:        make(map[string]bool),
	}
}

// DrawdownPercent is the signed session drawdown; a 5% loss is -5.0.
func (s *State) DrawdownPercent() float64 {
	if s.SessionStartEquity <= 0 {
		return 0
	}
	return (s.CurrentEquity - s.SessionStartEquity) / s.SessionStartEquity * 100
}

// Quarantine marks a ticker as blocked for entries and automatic exits.
func (s *State) Quarantine(ticker string) {
	if s.Quarantined == nil {
		s.Quarantined = make(map[string]bool)
	}
	s.Quarantined[ticker] = true
}

// ClearQuarantine releases a ticker. Returns false if it was not held.
func (s *State) ClearQuarantine(ticker string) bool {
	if !s.Quarantined[ticker] {
		return false
	}
	delete(s.Quarantined, ticker)
	return true
}

// IsQuarantined reports whether a ticker is blocked.
func (s *State) IsQuarantined(ticker string) bool {
	return s.Quarantined[ticker]
}

// QuarantinedTickers returns the quarantine set in stable order.
func (s *State) QuarantinedTickers() []string {
	out := make([]string, 0, len(s.Quarantined))
	for t := range s.Quarantined {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *State) Clone() *State {
	q := make(map[string]bool, len(s.Quarantined))
	for t := range s.Quarantined {
		q[t] = true
	}
	clone := *s
	clone.Quarantined = q
	return &clone
}
