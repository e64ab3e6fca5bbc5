package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// HTTPSignalFeed polls the scoring service's ranked-candidates endpoint.
type HTTPSignalFeed struct {
	log     zerolog.Logger
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPSignalFeed creates a signal feed client for the scoring service.
func NewHTTPSignalFeed(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *HTTPSignalFeed {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSignalFeed{
		log:     log.With().Str("component", "signal_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type signalsResponse struct {
	Signals []Signal `json:"signals"`
}

// Signals fetches the current candidate list, highest composite score
// first. A failed fetch returns an error; the caller decides whether to
// skip the tick.
func (f *HTTPSignalFeed) Signals(ctx context.Context) ([]Signal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/v1/signals", nil)
	if err != nil {
		return nil, fmt.Errorf("build signals request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signals: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signal service returned %d", resp.StatusCode)
	}

	var body signalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}

	sort.SliceStable(body.Signals, func(i, j int) bool {
		return body.Signals[i].CompositeScore > body.Signals[j].CompositeScore
	})

	f.log.Debug().Int("count", len(body.Signals)).Msg("fetched signal batch")
	return body.Signals, nil
}

// HTTPRegimeFeed polls the scoring service's market-regime endpoint.
type HTTPRegimeFeed struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPRegimeFeed creates a regime feed client against the same service.
func NewHTTPRegimeFeed(baseURL, apiKey string, timeout time.Duration) *HTTPRegimeFeed {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRegimeFeed{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type regimeResponse struct {
	Severity string `json:"severity"`
}

// Regime fetches the current market-regime assessment. An unrecognized
// severity is treated as benign.
func (f *HTTPRegimeFeed) Regime(ctx context.Context) (RegimeSeverity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/v1/regime", nil)
	if err != nil {
		return RegimeBenign, fmt.Errorf("build regime request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return RegimeBenign, fmt.Errorf("fetch regime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RegimeBenign, fmt.Errorf("regime service returned %d", resp.StatusCode)
	}

	var body regimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RegimeBenign, fmt.Errorf("decode regime: %w", err)
	}

	switch body.Severity {
	case "stressed":
		return RegimeStressed, nil
	case "critical":
		return RegimeCritical, nil
	default:
		return RegimeBenign, nil
	}
}
