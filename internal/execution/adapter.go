// Package execution turns approved intents into broker orders. It is the
// last line of validation before money moves: everything that reaches a
// broker went through this adapter's checks, and every violation is a
// typed rejection, never a silent no-op.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-agent/internal/broker"
	"trade-agent/internal/feed"
)

// Validation sentinels. Callers match with errors.Is.
var (
	ErrZeroQuantity   = errors.New("execution: quantity must be positive")
	ErrStalePrice     = errors.New("execution: reference price too old")
	ErrPriceDeviation = errors.New("execution: price outside sanity deviation")
	ErrDuplicate      = errors.New("execution: duplicate order inside dedup window")
	ErrPollTimeout    = errors.New("execution: order confirmation timed out")
)

// ErrUnknownOutcome mirrors the broker sentinel: the submission may have
// landed. The caller must reconcile the ticker before acting again.
var ErrUnknownOutcome = broker.ErrUnknownOutcome

// Mode selects how orders are filled.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Request is an approved trade intent.
type Request struct {
	Ticker   string
	Side     broker.Side
	Quantity float64
	Price    float64 // reference price the decision was made on
	QuoteAt  time.Time
	SignalID string
}

// TrustedPrices supplies the last known good quote for deviation checks.
type TrustedPrices interface {
	Last(ticker string) (feed.Quote, bool)
}

// Config holds the adapter's validation and fill parameters.
type Config struct {
	Mode               Mode          `json:"mode"`
	FreshnessBound     time.Duration `json:"-"`
	FreshnessSeconds   int           `json:"freshness_seconds"`
	MaxDeviationPct    float64       `json:"max_deviation_percent"`
	DedupWindow        time.Duration `json:"-"`
	DedupSeconds       int           `json:"dedup_seconds"`
	SlippageBPS        float64       `json:"slippage_bps"`
	CommissionPerShare float64       `json:"commission_per_share"`
	PollInterval       time.Duration `json:"-"`
	PollTimeout        time.Duration `json:"-"`
}

// DefaultConfig returns paper-mode defaults.
func DefaultConfig() Config {
	return Config{
		Mode:            ModePaper,
		FreshnessBound:  30 * time.Second,
		MaxDeviationPct: 3.0,
		DedupWindow:     30 * time.Second,
		SlippageBPS:     5,
		PollInterval:    time.Second,
		PollTimeout:     30 * time.Second,
	}
}

// Adapter validates and places orders.
type Adapter struct {
	mu sync.Mutex

	log     zerolog.Logger
	config  Config
	broker  broker.Broker
	trusted TrustedPrices
	recent  map[string]time.Time
}

// NewAdapter creates an adapter. broker may be nil in paper mode.
func NewAdapter(config Config, bk broker.Broker, trusted TrustedPrices, log zerolog.Logger) *Adapter {
	if config.FreshnessBound == 0 && config.FreshnessSeconds > 0 {
		config.FreshnessBound = time.Duration(config.FreshnessSeconds) * time.Second
	}
	if config.DedupWindow == 0 && config.DedupSeconds > 0 {
		config.DedupWindow = time.Duration(config.DedupSeconds) * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 30 * time.Second
	}
	return &Adapter{
		log:     log,
		config:  config,
		broker:  bk,
		trusted: trusted,
		recent:  make(map[string]time.Time),
	}
}

// Submit validates the request and places the order. The returned order
// is terminal except when the error wraps ErrUnknownOutcome, in which
// case its true state lives at the broker.
func (a *Adapter) Submit(ctx context.Context, req Request) (*Order, error) {
	now := time.Now()
	if err := a.validate(req, now); err != nil {
		a.log.Error().Err(err).Str("ticker", req.Ticker).Str("side", string(req.Side)).
			Float64("qty", req.Quantity).Float64("price", req.Price).
			Msg("order rejected before submission")
		return a.rejectedOrder(req, now), err
	}

	order := &Order{
		ID:           uuid.New().String(),
		Ticker:       req.Ticker,
		Side:         req.Side,
		RequestedQty: req.Quantity,
		Status:       StatusPending,
		SignalID:     req.SignalID,
		CreatedAt:    now,
	}

	a.markRecent(req, now)

	if a.config.Mode == ModePaper {
		return a.fillPaper(order, req)
	}
	return a.fillLive(ctx, order, req)
}

// validate runs the pre-submission checks in order.
func (a *Adapter) validate(req Request, now time.Time) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: got %.4f", ErrZeroQuantity, req.Quantity)
	}
	if req.Price <= 0 {
		return fmt.Errorf("%w: no reference price", ErrStalePrice)
	}
	if a.config.FreshnessBound > 0 && !req.QuoteAt.IsZero() {
		if age := now.Sub(req.QuoteAt); age > a.config.FreshnessBound {
			return fmt.Errorf("%w: quote is %s old", ErrStalePrice, age.Round(time.Second))
		}
	}
	if a.config.MaxDeviationPct > 0 && a.trusted != nil {
		if q, ok := a.trusted.Last(req.Ticker); ok && q.Price > 0 {
			deviation := (req.Price - q.Price) / q.Price * 100
			if deviation < 0 {
				deviation = -deviation
			}
			if deviation > a.config.MaxDeviationPct {
				return fmt.Errorf("%w: %.2f%% from trusted %.2f", ErrPriceDeviation, deviation, q.Price)
			}
		}
	}
	if a.config.DedupWindow > 0 {
		a.mu.Lock()
		last, seen := a.recent[dedupKey(req)]
		a.mu.Unlock()
		if seen && now.Sub(last) < a.config.DedupWindow {
			return fmt.Errorf("%w: %s %s submitted %s ago", ErrDuplicate,
				req.Ticker, req.Side, now.Sub(last).Round(time.Second))
		}
	}
	return nil
}

// fillPaper fills instantly at the requested price with configured
// slippage and commission.
func (a *Adapter) fillPaper(order *Order, req Request) (*Order, error) {
	fill := req.Price * (1 + a.config.SlippageBPS/10000)
	if req.Side == broker.Sell {
		fill = req.Price * (1 - a.config.SlippageBPS/10000)
	}

	now := time.Now()
	_ = order.transition(StatusSubmitted, now)
	order.FilledQty = req.Quantity
	order.FilledPrice = fill
	order.Commission = a.config.CommissionPerShare * req.Quantity
	_ = order.transition(StatusFilled, now)

	a.log.Debug().Str("id", order.ID).Str("ticker", order.Ticker).
		Float64("fill", fill).Msg("paper order filled")
	return order, nil
}

// fillLive submits to the broker and polls for a terminal state with
// bounded backoff. Submission itself is attempted once.
func (a *Adapter) fillLive(ctx context.Context, order *Order, req Request) (*Order, error) {
	placed, err := a.broker.Submit(ctx, broker.OrderRequest{
		ClientOrderID: order.ID,
		Ticker:        req.Ticker,
		Side:          req.Side,
		Quantity:      req.Quantity,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownOutcome) {
			// Do not mark terminal: the broker may have the order.
			_ = order.transition(StatusSubmitted, time.Now())
			return order, fmt.Errorf("submit %s: %w", req.Ticker, err)
		}
		_ = order.transition(StatusRejected, time.Now())
		return order, fmt.Errorf("submit %s: %w", req.Ticker, err)
	}

	order.BrokerID = placed.ID
	_ = order.transition(StatusSubmitted, time.Now())

	final, err := a.poll(ctx, placed.ID)
	if err != nil {
		// The submission landed; only its outcome is unknown. Callers
		// must reconcile the ticker, never treat this as a rejection.
		return order, fmt.Errorf("confirm %s: %w: %w", req.Ticker, ErrUnknownOutcome, err)
	}

	switch final.Status {
	case broker.StatusFilled:
		order.FilledQty = final.FilledQty
		order.FilledPrice = final.FillPrice
		order.Commission = final.Commission
		_ = order.transition(StatusFilled, final.UpdatedAt)
	case broker.StatusRejected:
		_ = order.transition(StatusRejected, final.UpdatedAt)
	case broker.StatusCanceled:
		_ = order.transition(StatusCancelled, final.UpdatedAt)
	default:
		return order, fmt.Errorf("%w: %w: order %s still %s", ErrUnknownOutcome, ErrPollTimeout, placed.ID, final.Status)
	}
	return order, nil
}

// poll fetches the broker order until it turns terminal or the bounded
// backoff is exhausted.
func (a *Adapter) poll(ctx context.Context, brokerID string) (broker.Order, error) {
	var latest broker.Order

	op := func() error {
		o, err := a.broker.Order(ctx, brokerID)
		if err != nil {
			return backoff.Permanent(err)
		}
		latest = o
		if !o.Terminal() {
			return fmt.Errorf("order %s still %s", brokerID, o.Status)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.config.PollInterval
	bo.MaxElapsedTime = a.config.PollTimeout

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if latest.ID != "" {
			return latest, nil
		}
		return broker.Order{}, err
	}
	return latest, nil
}

func (a *Adapter) markRecent(req Request, now time.Time) {
	a.mu.Lock()
	a.recent[dedupKey(req)] = now
	a.mu.Unlock()
}

func (a *Adapter) rejectedOrder(req Request, now time.Time) *Order {
	return &Order{
		ID:           uuid.New().String(),
		Ticker:       req.Ticker,
		Side:         req.Side,
		RequestedQty: req.Quantity,
		Status:       StatusRejected,
		SignalID:     req.SignalID,
		CreatedAt:    now,
		CompletedAt:  now,
	}
}

func dedupKey(req Request) string {
	return req.Ticker + "|" + string(req.Side)
}
