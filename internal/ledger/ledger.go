// Package ledger owns open positions and decides when they exit. All
// mutation happens on the trading loop goroutine; the mutex only guards
// read access from the operator API.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-agent/internal/feed"
)

var (
	// ErrAlreadyOpen rejects a second open position in the same ticker.
	ErrAlreadyOpen = errors.New("ledger: position already open for ticker")
	// ErrNotOpen is returned when no open position exists for a ticker.
	ErrNotOpen = errors.New("ledger: no open position for ticker")
	// ErrNonPositiveRisk rejects a position whose stop is at or above entry.
	ErrNonPositiveRisk = errors.New("ledger: stop loss must be below entry price")
)

// TakeProfitTier maps an instrument price band to a target percentage.
// Higher-priced names get tighter targets: an equal percentage move is
// harder to capture on an expensive name within a session.
type TakeProfitTier struct {
	MaxPrice      float64 `json:"max_price"` // 0 means "and above"
	TargetPercent float64 `json:"target_percent"`
}

// Config holds the exit rules applied to every position.
type Config struct {
	TakeProfitTiers    []TakeProfitTier `json:"take_profit_tiers"`
	TrailingPercent    float64          `json:"trailing_percent"`
	TrailingActivation float64          `json:"trailing_activation_percent"`
	MaxHold            time.Duration    `json:"-"`
	MaxHoldMinutes     int              `json:"max_hold_minutes"`
}

// DefaultConfig returns the standard exit rules.
func DefaultConfig() Config {
	return Config{
		TakeProfitTiers: []TakeProfitTier{
			{MaxPrice: 10, TargetPercent: 8.0},
			{MaxPrice: 50, TargetPercent: 5.0},
			{MaxPrice: 200, TargetPercent: 3.0},
			{MaxPrice: 0, TargetPercent: 2.0},
		},
		TrailingPercent:    2.5,
		TrailingActivation: 1.5,
		MaxHold:            4 * time.Hour,
	}
}

// Ledger tracks every open position and evaluates exits each tick.
type Ledger struct {
	mu sync.RWMutex

	log       zerolog.Logger
	config    Config
	positions map[string]*Position
}

// New creates an empty ledger.
func New(config Config, log zerolog.Logger) *Ledger {
	if config.MaxHold == 0 && config.MaxHoldMinutes > 0 {
		config.MaxHold = time.Duration(config.MaxHoldMinutes) * time.Minute
	}
	return &Ledger{
		log:       log,
		config:    config,
		positions: make(map[string]*Position),
	}
}

// Open registers a new position from a confirmed entry fill. The take
// profit is tiered from the fill price when the signal did not carry an
// explicit target. A stop at or above entry is non-positive risk and is
// rejected outright.
func (l *Ledger) Open(ticker string, quantity, fillPrice, stopLoss, takeProfit, commission float64, signalID, orderID string, at time.Time) (*Position, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("ledger: quantity must be positive, got %.4f", quantity)
	}
	if fillPrice <= 0 {
		return nil, fmt.Errorf("ledger: fill price must be positive, got %.4f", fillPrice)
	}
	if stopLoss >= fillPrice {
		return nil, fmt.Errorf("%w: stop %.2f, entry %.2f", ErrNonPositiveRisk, stopLoss, fillPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.positions[ticker]; ok && existing.Status != StatusClosed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, ticker)
	}

	if takeProfit <= fillPrice {
		takeProfit = fillPrice * (1 + l.targetPercent(fillPrice)/100)
	}

	pos := &Position{
		Ticker:        ticker,
		Quantity:      quantity,
		EntryPrice:    fillPrice,
		EntryTime:     at,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		HighWaterMark: fillPrice,
		TrailingPrice: 0,
		CurrentPrice:  fillPrice,
		PriceAt:       at,
		Status:        StatusOpen,
		SignalID:      signalID,
		EntryOrderID:  orderID,
		Commission:    commission,
	}
	l.positions[ticker] = pos

	l.log.Info().Str("ticker", ticker).Float64("qty", quantity).
		Float64("entry", fillPrice).Float64("stop", stopLoss).
		Float64("target", takeProfit).Msg("position opened")
	return pos, nil
}

// OnPriceUpdate marks every open position to the latest quotes. A ticker
// absent from the snapshot keeps its last known price; a data outage must
// never read as a crash to zero. The high-water mark only rises, and the
// trailing price activates once peak gain clears the activation threshold.
func (l *Ledger) OnPriceUpdate(quotes map[string]feed.Quote) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ticker, pos := range l.positions {
		if pos.Status == StatusClosed {
			continue
		}
		q, ok := quotes[ticker]
		if !ok || q.Price <= 0 || math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
			continue
		}

		pos.CurrentPrice = q.Price
		pos.PriceAt = q.At

		if q.Price > pos.HighWaterMark {
			pos.HighWaterMark = q.Price
		}
		if pos.PeakGainPercent() >= l.config.TrailingActivation {
			trail := pos.HighWaterMark * (1 - l.config.TrailingPercent/100)
			if trail > pos.TrailingPrice {
				pos.TrailingPrice = trail
			}
		}
	}
}

// EvaluateExits returns exit signals for open positions, first matching
// rule wins: stop loss, take profit, trailing stop, max hold. Positions
// already EXIT_PENDING are skipped so an in-flight exit is not doubled.
func (l *Ledger) EvaluateExits(now time.Time) []ExitSignal {
	l.mu.Lock()
	defer l.mu.Unlock()

	var exits []ExitSignal
	for _, ticker := range l.sortedTickers() {
		pos := l.positions[ticker]
		if pos.Status != StatusOpen {
			continue
		}

		var reason ExitReason
		switch {
		case pos.CurrentPrice <= pos.StopLoss:
			reason = ExitStopLoss
		case pos.CurrentPrice >= pos.TakeProfit:
			reason = ExitTakeProfit
		case pos.TrailingPrice > 0 && pos.CurrentPrice <= pos.TrailingPrice:
			reason = ExitTrailingStop
		case l.config.MaxHold > 0 && now.Sub(pos.EntryTime) >= l.config.MaxHold:
			reason = ExitMaxHold
		default:
			continue
		}

		exits = append(exits, ExitSignal{
			Ticker:   ticker,
			Quantity: pos.Quantity,
			Reason:   reason,
			Price:    pos.CurrentPrice,
		})
	}
	return exits
}

// MarkExitPending flags a position whose exit order is in flight.
func (l *Ledger) MarkExitPending(ticker, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[ticker]
	if !ok || pos.Status == StatusClosed {
		return fmt.Errorf("%w: %s", ErrNotOpen, ticker)
	}
	pos.Status = StatusExitPending
	pos.ExitOrderID = orderID
	return nil
}

// ReleaseExitPending returns an EXIT_PENDING position to OPEN after its
// exit order failed outright.
func (l *Ledger) ReleaseExitPending(ticker string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[ticker]; ok && pos.Status == StatusExitPending {
		pos.Status = StatusOpen
		pos.ExitOrderID = ""
	}
}

// Close finalizes a position from a confirmed exit fill and returns its
// trade record. Realized PnL is net of entry and exit commissions.
func (l *Ledger) Close(ticker string, fillPrice, exitCommission, capitalBefore float64, reason ExitReason, at time.Time) (*TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[ticker]
	if !ok || pos.Status == StatusClosed {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, ticker)
	}

	commissions := pos.Commission + exitCommission
	pnl := (fillPrice-pos.EntryPrice)*pos.Quantity - commissions
	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = (fillPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}

	record := &TradeRecord{
		ID:             uuid.New().String(),
		Ticker:         ticker,
		Quantity:       pos.Quantity,
		EntryPrice:     pos.EntryPrice,
		EntryTime:      pos.EntryTime,
		ExitPrice:      fillPrice,
		ExitTime:       at,
		HoldDuration:   at.Sub(pos.EntryTime),
		Reason:         reason,
		RealizedPnL:    pnl,
		RealizedPnLPct: pnlPct,
		Commissions:    commissions,
		CapitalBefore:  capitalBefore,
		CapitalAfter:   capitalBefore + pnl,
	}

	pos.Status = StatusClosed
	delete(l.positions, ticker)

	l.log.Info().Str("ticker", ticker).Str("reason", string(reason)).
		Float64("exit", fillPrice).Float64("pnl", pnl).
		Msg("position closed")
	return record, nil
}

// Get returns a copy of the position for ticker.
func (l *Ledger) Get(ticker string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[ticker]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Active returns copies of all non-closed positions, ordered by ticker.
func (l *Ledger) Active() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Position, 0, len(l.positions))
	for _, ticker := range l.sortedTickers() {
		out = append(out, *l.positions[ticker])
	}
	return out
}

// Count returns the number of non-closed positions.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Tickers returns the tickers with non-closed positions.
func (l *Ledger) Tickers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedTickers()
}

// Restore loads previously persisted positions, replacing the current
// set. EXIT_PENDING positions come back as OPEN: their in-flight exit
// order did not survive the restart and reconciliation re-checks them.
func (l *Ledger) Restore(positions []Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make(map[string]*Position, len(positions))
	for i := range positions {
		pos := positions[i]
		if pos.Status == StatusClosed {
			continue
		}
		pos.Status = StatusOpen
		pos.ExitOrderID = ""
		l.positions[pos.Ticker] = &pos
	}
}

func (l *Ledger) sortedTickers() []string {
	tickers := make([]string, 0, len(l.positions))
	for t := range l.positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// targetPercent resolves the tiered take-profit target for a fill price.
func (l *Ledger) targetPercent(price float64) float64 {
	tiers := l.config.TakeProfitTiers
	if len(tiers) == 0 {
		return DefaultConfig().TakeProfitTiers[len(DefaultConfig().TakeProfitTiers)-1].TargetPercent
	}
	for _, tier := range tiers {
		if tier.MaxPrice > 0 && price < tier.MaxPrice {
			return tier.TargetPercent
		}
	}
	return tiers[len(tiers)-1].TargetPercent
}
