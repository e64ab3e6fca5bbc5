package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeProvider struct {
	dates map[string]time.Time
	err   error
	calls int
}

func (f *fakeProvider) NextEarnings(_ context.Context, ticker string) (time.Time, error) {
	f.calls++
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.dates[ticker], nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

// TestBlackoutWindow verifies the window around a report date: five days
// before through one day after.
func TestBlackoutWindow(t *testing.T) {
	report := day(2026, 3, 10)
	provider := &fakeProvider{dates: map[string]time.Time{"NVDA": report}}
	cal := NewEarningsCalendar(DefaultEarningsConfig(), provider, zerolog.Nop())

	tests := []struct {
		name     string
		now      time.Time
		blackout bool
	}{
		{"six days before", day(2026, 3, 4), false},
		{"five days before", day(2026, 3, 5), true},
		{"report day", day(2026, 3, 10), true},
		{"day after", day(2026, 3, 11), true},
		{"two days after", day(2026, 3, 12), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.InBlackout(context.Background(), "NVDA", tt.now)
			if err != nil {
				t.Fatalf("InBlackout: %v", err)
			}
			if got != tt.blackout {
				t.Errorf("InBlackout = %v, want %v", got, tt.blackout)
			}
		})
	}
}

// TestNoScheduledEarnings verifies a zero date means no blackout.
func TestNoScheduledEarnings(t *testing.T) {
	provider := &fakeProvider{dates: map[string]time.Time{}}
	cal := NewEarningsCalendar(DefaultEarningsConfig(), provider, zerolog.Nop())

	got, err := cal.InBlackout(context.Background(), "AAPL", day(2026, 3, 5))
	if err != nil || got {
		t.Errorf("no scheduled earnings should mean no blackout, got %v/%v", got, err)
	}
}

// TestCacheAvoidsRefetch verifies the per-ticker cache.
func TestCacheAvoidsRefetch(t *testing.T) {
	provider := &fakeProvider{dates: map[string]time.Time{"NVDA": day(2026, 3, 10)}}
	cal := NewEarningsCalendar(DefaultEarningsConfig(), provider, zerolog.Nop())

	now := day(2026, 3, 5)
	cal.InBlackout(context.Background(), "NVDA", now)
	cal.InBlackout(context.Background(), "NVDA", now.Add(time.Hour))

	if provider.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.calls)
	}
}

// TestStaleCacheServedOnRefreshFailure verifies a failed refresh falls
// back to the last known date instead of erroring out.
func TestStaleCacheServedOnRefreshFailure(t *testing.T) {
	provider := &fakeProvider{dates: map[string]time.Time{"NVDA": day(2026, 3, 10)}}
	cfg := DefaultEarningsConfig()
	cfg.CacheTTL = time.Hour
	cal := NewEarningsCalendar(cfg, provider, zerolog.Nop())

	now := day(2026, 3, 5)
	if _, err := cal.InBlackout(context.Background(), "NVDA", now); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	provider.err = errors.New("provider down")
	got, err := cal.InBlackout(context.Background(), "NVDA", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("stale cache should be served, got error %v", err)
	}
	if !got {
		t.Error("stale cached date still inside the window should report blackout")
	}
}

// TestProviderErrorWithoutCache propagates so the gatekeeper fails open.
func TestProviderErrorWithoutCache(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	cal := NewEarningsCalendar(DefaultEarningsConfig(), provider, zerolog.Nop())

	if _, err := cal.InBlackout(context.Background(), "NVDA", day(2026, 3, 5)); err == nil {
		t.Error("uncached provider failure should propagate")
	}
}

// TestDisabledCalendar short-circuits.
func TestDisabledCalendar(t *testing.T) {
	provider := &fakeProvider{err: errors.New("should not be called")}
	cal := NewEarningsCalendar(EarningsConfig{Enabled: false}, provider, zerolog.Nop())

	got, err := cal.InBlackout(context.Background(), "NVDA", day(2026, 3, 5))
	if err != nil || got {
		t.Errorf("disabled calendar should always pass, got %v/%v", got, err)
	}
	if provider.calls != 0 {
		t.Errorf("disabled calendar must not call the provider, got %d calls", provider.calls)
	}
}
