package feed

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func snap(pairs ...interface{}) map[string]Quote {
	out := make(map[string]Quote)
	for i := 0; i < len(pairs); i += 2 {
		ticker := pairs[i].(string)
		price := pairs[i+1].(float64)
		out[ticker] = Quote{Ticker: ticker, Price: price, At: time.Now()}
	}
	return out
}

// TestApplyAndLast verifies the basic merge.
func TestApplyAndLast(t *testing.T) {
	b := NewPriceBook(zerolog.Nop())

	if got := b.Apply(snap("AAPL", 190.0, "MSFT", 410.0)); got != 2 {
		t.Errorf("accepted = %d, want 2", got)
	}

	q, ok := b.Last("AAPL")
	if !ok || q.Price != 190.0 {
		t.Errorf("Last(AAPL) = %+v/%v", q, ok)
	}
	if _, ok := b.Last("TSLA"); ok {
		t.Error("unknown ticker should not resolve")
	}
}

// TestUnusableQuotesKeepLastPrice verifies zero, negative, NaN, and Inf
// prices never replace a good one.
func TestUnusableQuotesKeepLastPrice(t *testing.T) {
	b := NewPriceBook(zerolog.Nop())
	b.Apply(snap("AAPL", 190.0))

	for _, bad := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := b.Apply(snap("AAPL", bad)); got != 0 {
			t.Errorf("unusable price %v accepted", bad)
		}
		if price, _ := b.LastPrice("AAPL"); price != 190.0 {
			t.Errorf("price %v overwrote the book with %v", bad, price)
		}
	}
}

// TestEmptySnapshotIsOutage verifies an outage leaves the book intact.
func TestEmptySnapshotIsOutage(t *testing.T) {
	b := NewPriceBook(zerolog.Nop())
	b.Apply(snap("AAPL", 190.0))

	if got := b.Apply(map[string]Quote{}); got != 0 {
		t.Errorf("empty snapshot accepted %d quotes", got)
	}
	if price, ok := b.LastPrice("AAPL"); !ok || price != 190.0 {
		t.Errorf("outage should keep last known price, got %v/%v", price, ok)
	}
}

// TestAge verifies staleness reporting.
func TestAge(t *testing.T) {
	b := NewPriceBook(zerolog.Nop())
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b.Apply(map[string]Quote{"AAPL": {Ticker: "AAPL", Price: 190, At: at}})

	if got := b.Age("AAPL", at.Add(45*time.Second)); got != 45*time.Second {
		t.Errorf("Age = %s, want 45s", got)
	}
	if got := b.Age("TSLA", at); got < 24*time.Hour {
		t.Errorf("unknown ticker should report effectively infinite age, got %s", got)
	}
}

// TestSnapshotIsCopy verifies callers cannot mutate the book.
func TestSnapshotIsCopy(t *testing.T) {
	b := NewPriceBook(zerolog.Nop())
	b.Apply(snap("AAPL", 190.0))

	s := b.Snapshot()
	s["AAPL"] = Quote{Ticker: "AAPL", Price: 1}

	if price, _ := b.LastPrice("AAPL"); price != 190.0 {
		t.Error("snapshot mutation leaked into the book")
	}
}
