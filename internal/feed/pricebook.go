package feed

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

// PriceBook caches the last known good price per ticker. A missing, zero,
// or non-finite quote never replaces a good one: treating an outage as
// "price is now zero" is the single most damaging failure mode here, so
// every lookup answers with the freshest trusted price instead.
type PriceBook struct {
	log    zerolog.Logger
	quotes map[string]Quote
}

// NewPriceBook creates an empty price book.
func NewPriceBook(log zerolog.Logger) *PriceBook {
	return &PriceBook{
		log:    log,
		quotes: make(map[string]Quote),
	}
}

// Apply merges a feed snapshot into the book, rejecting unusable quotes.
// It returns the number of quotes accepted; zero with a non-empty book
// means the feed delivered nothing usable this tick.
func (b *PriceBook) Apply(snapshot map[string]Quote) int {
	accepted := 0
	for ticker, q := range snapshot {
		if !usable(q.Price) {
			b.log.Warn().Str("ticker", ticker).Float64("price", q.Price).
				Msg("discarding unusable quote, keeping last known price")
			continue
		}
		if q.At.IsZero() {
			q.At = time.Now()
		}
		b.quotes[ticker] = q
		accepted++
	}
	if len(snapshot) == 0 && len(b.quotes) > 0 {
		b.log.Warn().Int("cached", len(b.quotes)).Msg("empty price snapshot, treating as data outage")
	}
	return accepted
}

// Last returns the last known good quote for ticker.
func (b *PriceBook) Last(ticker string) (Quote, bool) {
	q, ok := b.quotes[ticker]
	return q, ok
}

// LastPrice returns just the last known good price for ticker.
func (b *PriceBook) LastPrice(ticker string) (float64, bool) {
	q, ok := b.quotes[ticker]
	if !ok {
		return 0, false
	}
	return q.Price, true
}

// Age returns how stale the ticker's quote is at now. Unknown tickers
// report an effectively infinite age.
func (b *PriceBook) Age(ticker string, now time.Time) time.Duration {
	q, ok := b.quotes[ticker]
	if !ok {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(q.At)
}

// Snapshot returns a copy of all cached quotes.
func (b *PriceBook) Snapshot() map[string]Quote {
	out := make(map[string]Quote, len(b.quotes))
	for k, v := range b.quotes {
		out[k] = v
	}
	return out
}

func usable(price float64) bool {
	return price > 0 && !math.IsNaN(price) && !math.IsInf(price, 0)
}
