package broker

import (
	"context"
	"errors"
	"time"
)

// Side is the direction of an order at the broker.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderStatus is the broker-side lifecycle state of an order.
type OrderStatus string

const (
	StatusAccepted OrderStatus = "ACCEPTED"
	StatusFilled   OrderStatus = "FILLED"
	StatusRejected OrderStatus = "REJECTED"
	StatusCanceled OrderStatus = "CANCELED"
)

// ErrOrderNotFound is returned when the broker has no record of an order ID.
var ErrOrderNotFound = errors.New("broker: order not found")

// ErrUnknownOutcome wraps a submission failure where the order may or may
// not have reached the broker. Callers must reconcile before retrying.
var ErrUnknownOutcome = errors.New("broker: submission outcome unknown")

// AccountSnapshot is the broker's view of the account at a point in time.
type AccountSnapshot struct {
	Equity float64
	Cash   float64
	At     time.Time
}

// Holding is a broker-side position.
type Holding struct {
	Ticker   string
	Quantity float64
	AvgPrice float64
}

// OrderRequest describes a market order to submit.
type OrderRequest struct {
	ClientOrderID string
	Ticker        string
	Side          Side
	Quantity      float64
}

// Order is the broker's record of a submitted order.
type Order struct {
	ID            string
	ClientOrderID string
	Ticker        string
	Side          Side
	Quantity      float64
	Status        OrderStatus
	FilledQty     float64
	FillPrice     float64
	Commission    float64
	SubmittedAt   time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the order can no longer change state.
func (o Order) Terminal() bool {
	return o.Status == StatusFilled || o.Status == StatusRejected || o.Status == StatusCanceled
}

// Broker is the execution venue. Submit is intentionally not retried by
// implementations: a timed-out submission has an unknown outcome and the
// caller must reconcile instead of double-sending.
type Broker interface {
	Account(ctx context.Context) (AccountSnapshot, error)
	Holdings(ctx context.Context) ([]Holding, error)
	Submit(ctx context.Context, req OrderRequest) (Order, error)
	Order(ctx context.Context, id string) (Order, error)
	Cancel(ctx context.Context, id string) error
}
