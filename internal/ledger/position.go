package ledger

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusOpen        Status = "OPEN"
	StatusExitPending Status = "EXIT_PENDING"
	StatusClosed      Status = "CLOSED"
)

// ExitReason identifies which rule closed a position.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitMaxHold      ExitReason = "max_hold"
	ExitCloseAll     ExitReason = "close_all"
	ExitShutdown     ExitReason = "shutdown"
	ExitManual       ExitReason = "manual"
)

// Position is one open holding and its exit plan.
type Position struct {
	Ticker        string    `json:"ticker"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	EntryTime     time.Time `json:"entry_time"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	HighWaterMark float64   `json:"high_water_mark"`
	TrailingPrice float64   `json:"trailing_price"`
	CurrentPrice  float64   `json:"current_price"`
	PriceAt       time.Time `json:"price_at"`
	Status        Status    `json:"status"`
	SignalID      string    `json:"signal_id,omitempty"`
	EntryOrderID  string    `json:"entry_order_id,omitempty"`
	ExitOrderID   string    `json:"exit_order_id,omitempty"`
	Commission    float64   `json:"commission"`
}

// UnrealizedPnL is the mark-to-market profit at the current price.
func (p *Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Quantity
}

// UnrealizedPnLPercent is the mark-to-market gain relative to entry.
func (p *Position) UnrealizedPnLPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// PeakGainPercent is the best gain the position has seen.
func (p *Position) PeakGainPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.HighWaterMark - p.EntryPrice) / p.EntryPrice * 100
}

func (p *Position) String() string {
	return fmt.Sprintf("%s %.4f @ %.2f (stop %.2f, target %.2f, now %.2f)",
		p.Ticker, p.Quantity, p.EntryPrice, p.StopLoss, p.TakeProfit, p.CurrentPrice)
}

// TradeRecord is the immutable audit entry written once per closed
// position.
type TradeRecord struct {
	ID             string        `json:"id"`
	Ticker         string        `json:"ticker"`
	Quantity       float64       `json:"quantity"`
	EntryPrice     float64       `json:"entry_price"`
	EntryTime      time.Time     `json:"entry_time"`
	ExitPrice      float64       `json:"exit_price"`
	ExitTime       time.Time     `json:"exit_time"`
	HoldDuration   time.Duration `json:"hold_duration"`
	Reason         ExitReason    `json:"reason"`
	RealizedPnL    float64       `json:"realized_pnl"`
	RealizedPnLPct float64       `json:"realized_pnl_pct"`
	Commissions    float64       `json:"commissions"`
	CapitalBefore  float64       `json:"capital_before"`
	CapitalAfter   float64       `json:"capital_after"`
}

// ExitSignal asks the execution layer to close a position.
type ExitSignal struct {
	Ticker   string
	Quantity float64
	Reason   ExitReason
	Price    float64
}
