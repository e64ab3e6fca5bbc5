package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PriceSource supplies the reference price used to fill paper orders.
type PriceSource interface {
	LastPrice(ticker string) (float64, bool)
}

// PaperBroker simulates an execution venue in memory. Orders fill
// instantly at the reference price adjusted by a fixed slippage, with a
// flat per-share commission. Cash and holdings are tracked so the account
// snapshot stays internally consistent across a session.
type PaperBroker struct {
	mu sync.Mutex

	log         zerolog.Logger
	prices      PriceSource
	slippageBPS float64
	commission  float64

	cash     float64
	holdings map[string]*Holding
	orders   map[string]Order
}

// NewPaperBroker creates a paper broker seeded with starting cash.
func NewPaperBroker(prices PriceSource, startingCash, slippageBPS, commissionPerShare float64, log zerolog.Logger) *PaperBroker {
	return &PaperBroker{
		log:         log,
		prices:      prices,
		slippageBPS: slippageBPS,
		commission:  commissionPerShare,
		cash:        startingCash,
		holdings:    make(map[string]*Holding),
		orders:      make(map[string]Order),
	}
}

func (p *PaperBroker) Account(_ context.Context) (AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	for _, h := range p.holdings {
		price, ok := p.prices.LastPrice(h.Ticker)
		if !ok {
			price = h.AvgPrice
		}
		equity += h.Quantity * price
	}
	return AccountSnapshot{Equity: equity, Cash: p.cash, At: time.Now()}, nil
}

func (p *PaperBroker) Holdings(_ context.Context) ([]Holding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, *h)
	}
	return out, nil
}

func (p *PaperBroker) Submit(_ context.Context, req OrderRequest) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	order := Order{
		ID:            uuid.New().String(),
		ClientOrderID: req.ClientOrderID,
		Ticker:        req.Ticker,
		Side:          req.Side,
		Quantity:      req.Quantity,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}

	ref, ok := p.prices.LastPrice(req.Ticker)
	if !ok || ref <= 0 {
		order.Status = StatusRejected
		p.orders[order.ID] = order
		return order, fmt.Errorf("no reference price for %s", req.Ticker)
	}

	fill := ref * (1 + p.slippageBPS/10000)
	if req.Side == Sell {
		fill = ref * (1 - p.slippageBPS/10000)
	}
	commission := p.commission * req.Quantity

	switch req.Side {
	case Buy:
		cost := fill*req.Quantity + commission
		if cost > p.cash {
			order.Status = StatusRejected
			p.orders[order.ID] = order
			return order, fmt.Errorf("insufficient cash: need %.2f, have %.2f", cost, p.cash)
		}
		p.cash -= cost
		h, exists := p.holdings[req.Ticker]
		if !exists {
			p.holdings[req.Ticker] = &Holding{Ticker: req.Ticker, Quantity: req.Quantity, AvgPrice: fill}
		} else {
			total := h.Quantity + req.Quantity
			h.AvgPrice = (h.AvgPrice*h.Quantity + fill*req.Quantity) / total
			h.Quantity = total
		}

	case Sell:
		h, exists := p.holdings[req.Ticker]
		if !exists || h.Quantity < req.Quantity {
			order.Status = StatusRejected
			p.orders[order.ID] = order
			return order, fmt.Errorf("insufficient holding in %s", req.Ticker)
		}
		p.cash += fill*req.Quantity - commission
		h.Quantity -= req.Quantity
		if h.Quantity <= 0 {
			delete(p.holdings, req.Ticker)
		}

	default:
		order.Status = StatusRejected
		p.orders[order.ID] = order
		return order, fmt.Errorf("unsupported side %q", req.Side)
	}

	order.Status = StatusFilled
	order.FilledQty = req.Quantity
	order.FillPrice = fill
	order.Commission = commission
	p.orders[order.ID] = order

	p.log.Debug().Str("ticker", req.Ticker).Str("side", string(req.Side)).
		Float64("qty", req.Quantity).Float64("fill", fill).Msg("paper fill")
	return order, nil
}

func (p *PaperBroker) Order(_ context.Context, id string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (p *PaperBroker) Cancel(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Terminal() {
		return fmt.Errorf("order %s already %s", id, o.Status)
	}
	o.Status = StatusCanceled
	o.UpdatedAt = time.Now()
	p.orders[id] = o
	return nil
}
