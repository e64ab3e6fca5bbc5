// Package feed defines the inbound market-data and signal interfaces the
// trading loop consumes. The scoring service that produces signals and the
// market-data vendor behind the price feed are external collaborators; this
// package only fixes their shapes and guards against their failure modes.
package feed

import (
	"context"
	"time"
)

// Signal is one ranked trade candidate from the scoring service.
type Signal struct {
	ID             string             `json:"id"`
	Ticker         string             `json:"ticker"`
	CompositeScore float64            `json:"composite_score"`
	EntryPrice     float64            `json:"entry_price"`
	StopLoss       float64            `json:"stop_loss"`
	TakeProfit     float64            `json:"take_profit"` // 0 means "let the ledger tier it"
	DollarVolume   float64            `json:"dollar_volume"`
	SpreadPercent  float64            `json:"spread_percent"`
	Factors        map[string]float64 `json:"factors,omitempty"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// Quote is a single observed price.
type Quote struct {
	Ticker string    `json:"ticker"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// SignalFeed supplies the current ranked candidates for one tick.
type SignalFeed interface {
	Signals(ctx context.Context) ([]Signal, error)
}

// PriceFeed supplies a snapshot of current prices. An empty map is a data
// outage, not "everything is worthless"; callers fall back to the last
// known good price via PriceBook.
type PriceFeed interface {
	Prices(ctx context.Context, tickers []string) (map[string]Quote, error)
}

// RegimeSeverity classifies the external market-regime signal.
type RegimeSeverity int

const (
	RegimeBenign RegimeSeverity = iota
	RegimeStressed
	RegimeCritical
)

func (s RegimeSeverity) String() string {
	switch s {
	case RegimeBenign:
		return "benign"
	case RegimeStressed:
		return "stressed"
	case RegimeCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RegimeFeed supplies the optional market-regime signal. Implementations
// should return RegimeBenign when no assessment is available.
type RegimeFeed interface {
	Regime(ctx context.Context) (RegimeSeverity, error)
}
