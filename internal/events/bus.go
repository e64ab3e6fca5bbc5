package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventEntryFilled       EventType = "ENTRY_FILLED"
	EventExitFilled        EventType = "EXIT_FILLED"
	EventOrderRejected     EventType = "ORDER_REJECTED"
	EventBreakerTransition EventType = "BREAKER_TRANSITION"
	EventReconcileMismatch EventType = "RECONCILE_MISMATCH"
	EventQuarantineCleared EventType = "QUARANTINE_CLEARED"
	EventSessionStarted    EventType = "SESSION_STARTED"
	EventSessionSummary    EventType = "SESSION_SUMMARY"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishEntryFilled publishes an entry fill event
func (eb *EventBus) PublishEntryFilled(ticker string, price, quantity, notional float64) {
	eb.Publish(Event{
		Type: EventEntryFilled,
		Data: map[string]interface{}{
			"ticker":   ticker,
			"price":    price,
			"quantity": quantity,
			"notional": notional,
		},
	})
}

// PublishExitFilled publishes an exit fill event with its reason
func (eb *EventBus) PublishExitFilled(ticker, reason string, price, quantity, pnl, pnlPct float64) {
	eb.Publish(Event{
		Type: EventExitFilled,
		Data: map[string]interface{}{
			"ticker":   ticker,
			"reason":   reason,
			"price":    price,
			"quantity": quantity,
			"pnl":      pnl,
			"pnl_pct":  pnlPct,
		},
	})
}

// PublishOrderRejected publishes a validation or gatekeeper rejection
func (eb *EventBus) PublishOrderRejected(ticker, side, reason, detail string) {
	eb.Publish(Event{
		Type: EventOrderRejected,
		Data: map[string]interface{}{
			"ticker": ticker,
			"side":   side,
			"reason": reason,
			"detail": detail,
		},
	})
}

// PublishBreakerTransition publishes a circuit breaker state change
func (eb *EventBus) PublishBreakerTransition(from, to, reason string) {
	eb.Publish(Event{
		Type: EventBreakerTransition,
		Data: map[string]interface{}{
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	})
}

// PublishReconcileMismatch publishes a quantity mismatch
func (eb *EventBus) PublishReconcileMismatch(ticker string, localQty, brokerQty float64) {
	eb.Publish(Event{
		Type: EventReconcileMismatch,
		Data: map[string]interface{}{
			"ticker":     ticker,
			"local_qty":  localQty,
			"broker_qty": brokerQty,
		},
	})
}

// PublishSessionSummary publishes the end-of-session report
func (eb *EventBus) PublishSessionSummary(trades int, winRate, realizedPnL, maxDrawdown float64) {
	eb.Publish(Event{
		Type: EventSessionSummary,
		Data: map[string]interface{}{
			"trades":       trades,
			"win_rate":     winRate,
			"realized_pnl": realizedPnL,
			"max_drawdown": maxDrawdown,
		},
	})
}

// PublishError publishes an operational error
func (eb *EventBus) PublishError(source string, err error) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		},
	})
}
