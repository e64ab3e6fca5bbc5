// Package reconcile compares the ledger's view of holdings against the
// broker's. Any quantity disagreement quarantines the ticker until an
// operator clears it; nothing here ever rewrites a position to paper
// over a mismatch.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"trade-agent/internal/broker"
	"trade-agent/internal/ledger"
)

// Epsilon absorbs fractional-share rounding between the ledger and the
// broker. Anything beyond it is a real mismatch.
const Epsilon = 1e-4

// Mismatch is one ticker whose quantities disagree.
type Mismatch struct {
	Ticker    string  `json:"ticker"`
	LocalQty  float64 `json:"local_qty"`
	BrokerQty float64 `json:"broker_qty"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: local %.4f vs broker %.4f", m.Ticker, m.LocalQty, m.BrokerQty)
}

// Service compares ledger positions against broker holdings.
type Service struct {
	log     zerolog.Logger
	broker  broker.Broker
	epsilon float64
}

// New creates a reconciliation service.
func New(bk broker.Broker, log zerolog.Logger) *Service {
	return &Service{log: log, broker: bk, epsilon: Epsilon}
}

// Run fetches broker holdings and diffs them against the given
// positions. Pure over its inputs: the same ledger and broker state
// always yields the same mismatches, so repeated runs are idempotent.
func (s *Service) Run(ctx context.Context, positions []ledger.Position) ([]Mismatch, error) {
	holdings, err := s.broker.Holdings(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch broker holdings: %w", err)
	}
	return s.Compare(positions, holdings), nil
}

// RunTicker reconciles a single ticker, used after an unknown-outcome
// submission.
func (s *Service) RunTicker(ctx context.Context, ticker string, positions []ledger.Position) ([]Mismatch, error) {
	var filtered []ledger.Position
	for _, p := range positions {
		if p.Ticker == ticker {
			filtered = append(filtered, p)
		}
	}

	holdings, err := s.broker.Holdings(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch broker holdings: %w", err)
	}
	var relevant []broker.Holding
	for _, h := range holdings {
		if h.Ticker == ticker {
			relevant = append(relevant, h)
		}
	}
	return s.Compare(filtered, relevant), nil
}

// Compare diffs local positions against broker holdings without any
// I/O. Tickers on either side only still count: a position the broker
// does not know about, or a holding the ledger does not know about, is
// a mismatch against zero.
func (s *Service) Compare(positions []ledger.Position, holdings []broker.Holding) []Mismatch {
	local := make(map[string]float64, len(positions))
	for _, p := range positions {
		if p.Status == ledger.StatusClosed {
			continue
		}
		local[p.Ticker] += p.Quantity
	}

	remote := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		remote[h.Ticker] += h.Quantity
	}

	tickers := make(map[string]struct{}, len(local)+len(remote))
	for t := range local {
		tickers[t] = struct{}{}
	}
	for t := range remote {
		tickers[t] = struct{}{}
	}

	var mismatches []Mismatch
	for t := range tickers {
		lq, bq := local[t], remote[t]
		if math.Abs(lq-bq) <= s.epsilon {
			continue
		}
		mismatches = append(mismatches, Mismatch{Ticker: t, LocalQty: lq, BrokerQty: bq})
		s.log.Error().Str("ticker", t).Float64("local", lq).Float64("broker", bq).
			Msg("reconciliation mismatch")
	}

	sort.Slice(mismatches, func(i, j int) bool {
		return mismatches[i].Ticker < mismatches[j].Ticker
	})
	return mismatches
}
