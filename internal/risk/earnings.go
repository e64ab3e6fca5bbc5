package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EarningsProvider fetches the next scheduled earnings date for a
// ticker. A zero time with nil error means no earnings on the calendar.
type EarningsProvider interface {
	NextEarnings(ctx context.Context, ticker string) (time.Time, error)
}

// EarningsConfig bounds the blackout window around a report date.
type EarningsConfig struct {
	Enabled    bool          `json:"enabled"`
	DaysBefore int           `json:"days_before"`
	DaysAfter  int           `json:"days_after"`
	CacheTTL   time.Duration `json:"-"`
}

// DefaultEarningsConfig mirrors the standing policy: no entries within
// five days before a report or the day after it.
func DefaultEarningsConfig() EarningsConfig {
	return EarningsConfig{
		Enabled:    true,
		DaysBefore: 5,
		DaysAfter:  1,
		CacheTTL:   24 * time.Hour,
	}
}

type earningsCacheEntry struct {
	date      time.Time
	fetchedAt time.Time
}

// EarningsCalendar implements EarningsChecker on top of a provider with
// a per-ticker cache. Provider failures propagate so the gatekeeper can
// fail open; a cached date is served even when expired if the refresh
// fails, which beats trading blind.
type EarningsCalendar struct {
	mu sync.Mutex

	log      zerolog.Logger
	config   EarningsConfig
	provider EarningsProvider
	cache    map[string]earningsCacheEntry
}

// NewEarningsCalendar creates a calendar checker.
func NewEarningsCalendar(config EarningsConfig, provider EarningsProvider, log zerolog.Logger) *EarningsCalendar {
	if config.CacheTTL == 0 {
		config.CacheTTL = 24 * time.Hour
	}
	return &EarningsCalendar{
		log:      log,
		config:   config,
		provider: provider,
		cache:    make(map[string]earningsCacheEntry),
	}
}

// InBlackout reports whether now falls inside the blackout window around
// the ticker's next earnings date.
func (c *EarningsCalendar) InBlackout(ctx context.Context, ticker string, now time.Time) (bool, error) {
	if !c.config.Enabled {
		return false, nil
	}

	date, err := c.nextEarnings(ctx, ticker, now)
	if err != nil {
		return false, err
	}
	if date.IsZero() {
		return false, nil
	}

	daysUntil := int(date.Sub(now).Hours() / 24)
	return -c.config.DaysAfter <= daysUntil && daysUntil <= c.config.DaysBefore, nil
}

func (c *EarningsCalendar) nextEarnings(ctx context.Context, ticker string, now time.Time) (time.Time, error) {
	c.mu.Lock()
	entry, ok := c.cache[ticker]
	c.mu.Unlock()

	if ok && now.Sub(entry.fetchedAt) < c.config.CacheTTL {
		return entry.date, nil
	}

	date, err := c.provider.NextEarnings(ctx, ticker)
	if err != nil {
		if ok {
			c.log.Warn().Err(err).Str("ticker", ticker).
				Msg("earnings refresh failed, serving stale cache")
			return entry.date, nil
		}
		return time.Time{}, err
	}

	c.mu.Lock()
	c.cache[ticker] = earningsCacheEntry{date: date, fetchedAt: now}
	c.mu.Unlock()
	return date, nil
}

// HTTPEarningsProvider fetches earnings dates from a calendar API.
type HTTPEarningsProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPEarningsProvider creates a provider for the given endpoint.
func NewHTTPEarningsProvider(baseURL, apiKey string, timeout time.Duration) *HTTPEarningsProvider {
	return &HTTPEarningsProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPEarningsProvider) NextEarnings(ctx context.Context, ticker string) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/earnings/%s/next", p.baseURL, ticker), nil)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("earnings fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return time.Time{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("earnings fetch %s: status %d", ticker, resp.StatusCode)
	}

	var payload struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return time.Time{}, fmt.Errorf("earnings decode %s: %w", ticker, err)
	}
	if payload.Date == "" {
		return time.Time{}, nil
	}

	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("earnings date %q: %w", payload.Date, err)
	}
	return date, nil
}
