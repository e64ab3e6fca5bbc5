package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// HTTPBroker talks to a brokerage REST API. Reads (account, holdings,
// order status) are retried with exponential backoff; Submit is sent
// exactly once and a transport failure surfaces as ErrUnknownOutcome so
// the caller reconciles instead of resubmitting.
type HTTPBroker struct {
	log     zerolog.Logger
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBroker creates a broker client for the given API endpoint.
func NewHTTPBroker(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *HTTPBroker {
	return &HTTPBroker{
		log:     log,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type accountPayload struct {
	Equity float64 `json:"equity"`
	Cash   float64 `json:"cash"`
}

type holdingPayload struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

type orderPayload struct {
	ID            string  `json:"id"`
	ClientOrderID string  `json:"client_order_id"`
	Ticker        string  `json:"ticker"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	Status        string  `json:"status"`
	FilledQty     float64 `json:"filled_quantity"`
	FillPrice     float64 `json:"fill_price"`
	Commission    float64 `json:"commission"`
	SubmittedAt   string  `json:"submitted_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func (b *HTTPBroker) Account(ctx context.Context) (AccountSnapshot, error) {
	var payload accountPayload
	if err := b.getJSON(ctx, "/v1/account", &payload); err != nil {
		return AccountSnapshot{}, fmt.Errorf("fetch account: %w", err)
	}
	return AccountSnapshot{Equity: payload.Equity, Cash: payload.Cash, At: time.Now()}, nil
}

func (b *HTTPBroker) Holdings(ctx context.Context) ([]Holding, error) {
	var payload []holdingPayload
	if err := b.getJSON(ctx, "/v1/positions", &payload); err != nil {
		return nil, fmt.Errorf("fetch holdings: %w", err)
	}
	out := make([]Holding, 0, len(payload))
	for _, h := range payload {
		out = append(out, Holding{Ticker: h.Ticker, Quantity: h.Quantity, AvgPrice: h.AvgPrice})
	}
	return out, nil
}

func (b *HTTPBroker) Submit(ctx context.Context, req OrderRequest) (Order, error) {
	body, err := json.Marshal(map[string]interface{}{
		"client_order_id": req.ClientOrderID,
		"ticker":          req.Ticker,
		"side":            string(req.Side),
		"quantity":        req.Quantity,
		"type":            "market",
	})
	if err != nil {
		return Order{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Order{}, err
	}
	b.setHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		// The request may have reached the broker before the failure.
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return Order{}, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
		}
		return Order{}, fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Order{}, fmt.Errorf("%w: broker returned %d", ErrUnknownOutcome, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Order{}, fmt.Errorf("submit rejected (%d): %s", resp.StatusCode, msg)
	}

	var payload orderPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Order{}, fmt.Errorf("%w: unreadable submit response: %v", ErrUnknownOutcome, err)
	}
	return payload.toOrder(), nil
}

func (b *HTTPBroker) Order(ctx context.Context, id string) (Order, error) {
	var payload orderPayload
	if err := b.getJSON(ctx, "/v1/orders/"+id, &payload); err != nil {
		return Order{}, fmt.Errorf("fetch order %s: %w", id, err)
	}
	return payload.toOrder(), nil
}

func (b *HTTPBroker) Cancel(ctx context.Context, id string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.baseURL+"/v1/orders/"+id, nil)
	if err != nil {
		return err
	}
	b.setHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrOrderNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("cancel order %s: broker returned %d", id, resp.StatusCode)
	}
	return nil
}

// getJSON fetches a read-only endpoint with exponential backoff. Reads
// are idempotent so retrying is safe.
func (b *HTTPBroker) getJSON(ctx context.Context, path string, out interface{}) error {
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		b.setHeaders(httpReq)

		resp, err := b.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(ErrOrderNotFound)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("broker returned %d for %s", resp.StatusCode, path)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("broker returned %d for %s", resp.StatusCode, path))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 15 * time.Second

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func (b *HTTPBroker) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p orderPayload) toOrder() Order {
	submitted, _ := time.Parse(time.RFC3339, p.SubmittedAt)
	updated, _ := time.Parse(time.RFC3339, p.UpdatedAt)
	return Order{
		ID:            p.ID,
		ClientOrderID: p.ClientOrderID,
		Ticker:        p.Ticker,
		Side:          Side(p.Side),
		Quantity:      p.Quantity,
		Status:        OrderStatus(p.Status),
		FilledQty:     p.FilledQty,
		FillPrice:     p.FillPrice,
		Commission:    p.Commission,
		SubmittedAt:   submitted,
		UpdatedAt:     updated,
	}
}
