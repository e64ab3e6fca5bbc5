package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"trade-agent/internal/broker"
	"trade-agent/internal/ledger"
)

type stubHoldings struct {
	holdings []broker.Holding
	err      error
}

func (s *stubHoldings) Account(context.Context) (broker.AccountSnapshot, error) {
	return broker.AccountSnapshot{}, nil
}

func (s *stubHoldings) Holdings(context.Context) ([]broker.Holding, error) {
	return s.holdings, s.err
}

func (s *stubHoldings) Submit(context.Context, broker.OrderRequest) (broker.Order, error) {
	return broker.Order{}, nil
}

func (s *stubHoldings) Order(context.Context, string) (broker.Order, error) {
	return broker.Order{}, nil
}

func (s *stubHoldings) Cancel(context.Context, string) error { return nil }

func open(ticker string, qty float64) ledger.Position {
	return ledger.Position{Ticker: ticker, Quantity: qty, Status: ledger.StatusOpen}
}

// TestCompareAgreement verifies matching books yield no mismatches.
func TestCompareAgreement(t *testing.T) {
	s := New(nil, zerolog.Nop())

	got := s.Compare(
		[]ledger.Position{open("AAPL", 10), open("MSFT", 5)},
		[]broker.Holding{{Ticker: "AAPL", Quantity: 10}, {Ticker: "MSFT", Quantity: 5}},
	)
	if len(got) != 0 {
		t.Errorf("matching books should have no mismatches, got %+v", got)
	}
}

// TestCompareQuantityMismatch covers the ledger-150 vs broker-100 case.
func TestCompareQuantityMismatch(t *testing.T) {
	s := New(nil, zerolog.Nop())

	got := s.Compare(
		[]ledger.Position{open("MU", 150)},
		[]broker.Holding{{Ticker: "MU", Quantity: 100}},
	)
	want := []Mismatch{{Ticker: "MU", LocalQty: 150, BrokerQty: 100}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Compare = %+v, want %+v", got, want)
	}
}

// TestCompareOneSided verifies positions or holdings only one side knows
// about mismatch against zero.
func TestCompareOneSided(t *testing.T) {
	s := New(nil, zerolog.Nop())

	got := s.Compare(
		[]ledger.Position{open("AAPL", 10)},
		[]broker.Holding{{Ticker: "TSLA", Quantity: 3}},
	)
	want := []Mismatch{
		{Ticker: "AAPL", LocalQty: 10, BrokerQty: 0},
		{Ticker: "TSLA", LocalQty: 0, BrokerQty: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Compare = %+v, want %+v", got, want)
	}
}

// TestCompareEpsilon verifies fractional-share rounding is absorbed.
func TestCompareEpsilon(t *testing.T) {
	s := New(nil, zerolog.Nop())

	got := s.Compare(
		[]ledger.Position{open("AAPL", 10.00005)},
		[]broker.Holding{{Ticker: "AAPL", Quantity: 10.0}},
	)
	if len(got) != 0 {
		t.Errorf("difference inside epsilon should not mismatch, got %+v", got)
	}

	got = s.Compare(
		[]ledger.Position{open("AAPL", 10.001)},
		[]broker.Holding{{Ticker: "AAPL", Quantity: 10.0}},
	)
	if len(got) != 1 {
		t.Errorf("difference beyond epsilon should mismatch, got %+v", got)
	}
}

// TestCompareIdempotent verifies repeated runs over the same inputs give
// identical results.
func TestCompareIdempotent(t *testing.T) {
	s := New(nil, zerolog.Nop())
	positions := []ledger.Position{open("MU", 150), open("AAPL", 10)}
	holdings := []broker.Holding{{Ticker: "MU", Quantity: 100}, {Ticker: "AAPL", Quantity: 10}}

	first := s.Compare(positions, holdings)
	second := s.Compare(positions, holdings)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Compare diverged: %+v vs %+v", first, second)
	}
}

// TestCompareIgnoresClosed verifies closed positions do not count.
func TestCompareIgnoresClosed(t *testing.T) {
	s := New(nil, zerolog.Nop())

	got := s.Compare(
		[]ledger.Position{{Ticker: "AAPL", Quantity: 10, Status: ledger.StatusClosed}},
		nil,
	)
	if len(got) != 0 {
		t.Errorf("closed positions should not reconcile, got %+v", got)
	}
}

// TestRunTickerFilters verifies single-ticker reconciliation ignores
// unrelated mismatches.
func TestRunTickerFilters(t *testing.T) {
	bk := &stubHoldings{holdings: []broker.Holding{
		{Ticker: "MU", Quantity: 100},
		{Ticker: "TSLA", Quantity: 999},
	}}
	s := New(bk, zerolog.Nop())

	got, err := s.RunTicker(context.Background(), "MU",
		[]ledger.Position{open("MU", 150), open("AAPL", 10)})
	if err != nil {
		t.Fatalf("RunTicker: %v", err)
	}
	if len(got) != 1 || got[0].Ticker != "MU" {
		t.Errorf("RunTicker should only report MU, got %+v", got)
	}
}

// TestRunPropagatesFetchError verifies a holdings failure surfaces.
func TestRunPropagatesFetchError(t *testing.T) {
	bk := &stubHoldings{err: errors.New("broker down")}
	s := New(bk, zerolog.Nop())

	if _, err := s.Run(context.Background(), nil); err == nil {
		t.Error("holdings failure should propagate")
	}
}
