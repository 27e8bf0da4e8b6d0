package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/event"
)

type capturingBus struct {
	events []event.Params
}

func (b *capturingBus) CreateAndPublishEvent(_ context.Context, p event.Params) (event.Event, error) {
	b.events = append(b.events, p)
	return event.Event{EventName: p.EventName}, nil
}

type fakeSettings struct {
	bools map[string]bool
	ints  map[string]int
	errs  map[string]error
}

func (f *fakeSettings) GetBool(_ context.Context, _, name string) (bool, error) {
	if err := f.errs[name]; err != nil {
		return false, err
	}
	return f.bools[name], nil
}

func (f *fakeSettings) GetInt(_ context.Context, _, name string) (int, error) {
	if err := f.errs[name]; err != nil {
		return 0, err
	}
	return f.ints[name], nil
}

func validSettings() *fakeSettings {
	return &fakeSettings{
		bools: map[string]bool{"rate.limiting.enabled": true},
		ints: map[string]int{
			"rate.limiting.max.requests.per.minute": 2,
			"rate.limiting.max.requests.per.hour":   1000,
			"rate.limiting.block.duration.minutes":  1,
		},
		errs: map[string]error{},
	}
}

func TestLoadRateLimitConfig(t *testing.T) {
	cfg, err := LoadRateLimitConfig(context.Background(), validSettings())
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.MaxRequestsPerMinute)
	assert.Equal(t, 1000, cfg.MaxRequestsPerHour)
	assert.Equal(t, time.Minute, cfg.BlockDuration)
}

func TestLoadRateLimitConfigMissingSettingFails(t *testing.T) {
	s := validSettings()
	s.errs["rate.limiting.max.requests.per.hour"] = errors.New("setting not found")

	_, err := LoadRateLimitConfig(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate.limiting.max.requests.per.hour")
}

func TestLoadRateLimitConfigRejectsNonPositiveValues(t *testing.T) {
	s := validSettings()
	s.ints["rate.limiting.block.duration.minutes"] = 0

	_, err := LoadRateLimitConfig(context.Background(), s)
	assert.Error(t, err)
}

func newTestLimiter(cfg *RateLimitConfig, bus Publisher) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(cfg, bus, zap.NewNop().Sugar())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func doRequest(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/catalog-core/health", nil)
	req.RemoteAddr = "198.51.100.7:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterMinuteCeiling(t *testing.T) {
	bus := &capturingBus{}
	rl, _ := newTestLimiter(&RateLimitConfig{
		Enabled:              true,
		MaxRequestsPerMinute: 2,
		MaxRequestsPerHour:   1000,
		BlockDuration:        time.Minute,
	}, bus)
	h := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, h).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h).Code)

	rec := doRequest(t, h)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	require.Len(t, bus.events, 1)
	assert.Equal(t, "ratelimit.blocked", bus.events[0].EventName)
	assert.Equal(t, "warn", bus.events[0].Severity)
}

func TestRateLimiterUnblocksAfterBlockDuration(t *testing.T) {
	rl, now := newTestLimiter(&RateLimitConfig{
		Enabled:              true,
		MaxRequestsPerMinute: 2,
		MaxRequestsPerHour:   1000,
		BlockDuration:        time.Minute,
	}, nil)
	h := rl.Middleware()(okHandler())

	doRequest(t, h)
	doRequest(t, h)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, h).Code)

	// still inside the block window
	*now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, h).Code)

	// past the window, tokens replenished
	*now = now.Add(45 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(t, h).Code)
}

func TestRateLimiterDisabledPassthrough(t *testing.T) {
	rl, _ := newTestLimiter(&RateLimitConfig{Enabled: false, MaxRequestsPerMinute: 1, MaxRequestsPerHour: 1, BlockDuration: time.Minute}, nil)
	h := rl.Middleware()(okHandler())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doRequest(t, h).Code)
	}
}

func TestRateLimiterKeysClientsSeparately(t *testing.T) {
	rl, _ := newTestLimiter(&RateLimitConfig{
		Enabled:              true,
		MaxRequestsPerMinute: 1,
		MaxRequestsPerHour:   1000,
		BlockDuration:        time.Minute,
	}, nil)
	h := rl.Middleware()(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/catalog-core/health", nil)
	first.RemoteAddr = "198.51.100.7:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	blocked := httptest.NewRequest(http.MethodGet, "/catalog-core/health", nil)
	blocked.RemoteAddr = "198.51.100.7:40001" // same host, different port
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, blocked)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := httptest.NewRequest(http.MethodGet, "/catalog-core/health", nil)
	other.RemoteAddr = "203.0.113.9:40000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}
