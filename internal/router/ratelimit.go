package router

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arkova/catalog-core/internal/auth"
	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/internal/httpapi"
)

// RateLimitSection is the settings section that configures request throttling.
const RateLimitSection = "Application.Security.RateLimiting"

// Publisher is the event-bus surface the limiter uses. Nil disables publishing.
type Publisher interface {
	CreateAndPublishEvent(ctx context.Context, p event.Params) (event.Event, error)
}

// RateLimitConfig is loaded once at startup from the settings service.
type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
	MaxRequestsPerHour   int
	BlockDuration        time.Duration
}

// RateLimitSettings is the slice of the settings service the loader needs.
type RateLimitSettings interface {
	GetBool(ctx context.Context, sectionPath, settingName string) (bool, error)
	GetInt(ctx context.Context, sectionPath, settingName string) (int, error)
}

// LoadRateLimitConfig reads the throttling settings. Missing or mistyped
// settings are a startup error, not a silent default.
func LoadRateLimitConfig(ctx context.Context, settings RateLimitSettings) (*RateLimitConfig, error) {
	enabled, err := settings.GetBool(ctx, RateLimitSection, "rate.limiting.enabled")
	if err != nil {
		return nil, fmt.Errorf("load rate.limiting.enabled: %w", err)
	}
	perMinute, err := settings.GetInt(ctx, RateLimitSection, "rate.limiting.max.requests.per.minute")
	if err != nil {
		return nil, fmt.Errorf("load rate.limiting.max.requests.per.minute: %w", err)
	}
	perHour, err := settings.GetInt(ctx, RateLimitSection, "rate.limiting.max.requests.per.hour")
	if err != nil {
		return nil, fmt.Errorf("load rate.limiting.max.requests.per.hour: %w", err)
	}
	blockMinutes, err := settings.GetInt(ctx, RateLimitSection, "rate.limiting.block.duration.minutes")
	if err != nil {
		return nil, fmt.Errorf("load rate.limiting.block.duration.minutes: %w", err)
	}
	if perMinute <= 0 || perHour <= 0 || blockMinutes <= 0 {
		return nil, fmt.Errorf("rate limit settings must be positive: per_minute=%d per_hour=%d block_minutes=%d",
			perMinute, perHour, blockMinutes)
	}
	return &RateLimitConfig{
		Enabled:              enabled,
		MaxRequestsPerMinute: perMinute,
		MaxRequestsPerHour:   perHour,
		BlockDuration:        time.Duration(blockMinutes) * time.Minute,
	}, nil
}

type clientState struct {
	minute       *rate.Limiter
	hour         *rate.Limiter
	blockedUntil time.Time
	lastSeen     time.Time
}

// RateLimiter throttles requests per client. The key is the authenticated
// user ID when present, the remote IP otherwise. A client that exceeds either
// window is blocked for the configured duration. Counters are process local.
type RateLimiter struct {
	cfg    *RateLimitConfig
	bus    Publisher
	logger *zap.SugaredLogger

	mu      sync.Mutex
	clients map[string]*clientState

	// now is swappable for tests
	now func() time.Time
}

func NewRateLimiter(cfg *RateLimitConfig, bus Publisher, logger *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
		clients: make(map[string]*clientState),
		now:     time.Now,
	}
}

func (rl *RateLimiter) clientKey(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		return "user:" + strconv.FormatInt(claims.UserID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// allow reports whether the request may proceed, together with the remaining
// block window when it may not.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.clients[key]
	if !ok {
		st = &clientState{
			minute: rate.NewLimiter(rate.Limit(float64(rl.cfg.MaxRequestsPerMinute)/60.0), rl.cfg.MaxRequestsPerMinute),
			hour:   rate.NewLimiter(rate.Limit(float64(rl.cfg.MaxRequestsPerHour)/3600.0), rl.cfg.MaxRequestsPerHour),
		}
		rl.clients[key] = st
	}
	st.lastSeen = now

	if now.Before(st.blockedUntil) {
		return false, st.blockedUntil.Sub(now)
	}

	if !st.minute.AllowN(now, 1) || !st.hour.AllowN(now, 1) {
		st.blockedUntil = now.Add(rl.cfg.BlockDuration)
		return false, rl.cfg.BlockDuration
	}
	return true, 0
}

// Middleware enforces the limits. Disabled config short-circuits to a no-op.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !rl.cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.clientKey(r)
			ok, retryAfter := rl.allow(key)
			if !ok {
				rl.publishBlocked(r.Context(), key, retryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				httpapi.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) publishBlocked(ctx context.Context, key string, retryAfter time.Duration) {
	if rl.bus == nil {
		return
	}
	_, err := rl.bus.CreateAndPublishEvent(ctx, event.Params{
		EventName: "ratelimit.blocked",
		Source:    "router.ratelimit",
		Severity:  "warn",
		Payload: map[string]any{
			"client_key":          key,
			"retry_after_seconds": int(retryAfter.Seconds()),
		},
	})
	if err != nil {
		rl.logger.Warnw("ratelimit.blocked publish failed", "err", err)
	}
}

// StartCleanup prunes idle client entries until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := rl.now().Add(-idle)
				rl.mu.Lock()
				for key, st := range rl.clients {
					if st.lastSeen.Before(cutoff) && rl.now().After(st.blockedUntil) {
						delete(rl.clients, key)
					}
				}
				rl.mu.Unlock()
			}
		}
	}()
}
