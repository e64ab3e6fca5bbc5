package execution

import (
	"fmt"
	"time"

	"trade-agent/internal/broker"
)

// Status is the order lifecycle state. Transitions are monotonic: an
// order never moves from a terminal state, and never back to PENDING.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusFilled    Status = "FILLED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusSubmitted: 1,
	StatusFilled:    2,
	StatusRejected:  2,
	StatusCancelled: 2,
}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusRejected || s == StatusCancelled
}

// Order is the adapter's record of one submission attempt.
type Order struct {
	ID           string      `json:"id"`
	BrokerID     string      `json:"broker_id,omitempty"`
	Ticker       string      `json:"ticker"`
	Side         broker.Side `json:"side"`
	RequestedQty float64     `json:"requested_qty"`
	FilledQty    float64     `json:"filled_qty"`
	Status       Status      `json:"status"`
	FilledPrice  float64     `json:"filled_price"`
	Commission   float64     `json:"commission"`
	SignalID     string      `json:"signal_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	SubmittedAt  time.Time   `json:"submitted_at,omitempty"`
	CompletedAt  time.Time   `json:"completed_at,omitempty"`
}

// transition advances the status, refusing backward or post-terminal
// moves.
func (o *Order) transition(to Status, at time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("order %s is terminal (%s), cannot move to %s", o.ID, o.Status, to)
	}
	if statusRank[to] < statusRank[o.Status] {
		return fmt.Errorf("order %s cannot move backward %s -> %s", o.ID, o.Status, to)
	}
	o.Status = to
	switch to {
	case StatusSubmitted:
		o.SubmittedAt = at
	case StatusFilled, StatusRejected, StatusCancelled:
		o.CompletedAt = at
	}
	return nil
}
