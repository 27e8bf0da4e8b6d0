package router

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/auth"
	"github.com/arkova/catalog-core/internal/httpapi"
	userentity "github.com/arkova/catalog-core/internal/user/entity"
	"github.com/arkova/catalog-core/pkg/utilities"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_core_http_requests_total",
	Help: "HTTP requests served, by method, route pattern and status.",
}, []string{"method", "pattern", "status"})

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "catalog_core_http_request_duration_seconds",
	Help:    "HTTP request latency, by method and route pattern.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "pattern"})

// RequestIDMiddleware tags each request with a KSUID unless the client
// already sent one.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = utilities.NewKSUID()
				r.Header.Set("X-Request-Id", id)
			}
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r)
		})
	}
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request at debug level with the sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", r.Header.Get("X-Request-Id"),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// MetricsMiddleware records request counts and latency per route pattern so
// path parameters do not explode label cardinality.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			pattern := r.Pattern
			if pattern == "" {
				pattern = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthViewLoader resolves the current account state behind a verified token.
type AuthViewLoader interface {
	GetMinimalAuthView(ctx context.Context, id int64) (*userentity.MinimalAuthView, error)
}

// AuthMiddleware parses an optional Bearer token and, when valid, stores the
// claims on the request context. Invalid tokens are rejected outright; absent
// tokens pass through anonymous so public routes keep working. The token's
// version claim must match the user's current version, so bumping the
// version (revoke-sessions) invalidates outstanding access tokens at once.
func AuthMiddleware(svc *auth.Service, users AuthViewLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok {
				httpapi.WriteError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}
			claims, err := svc.VerifyAccessToken(token)
			if err != nil {
				httpapi.WriteError(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			view, err := users.GetMinimalAuthView(r.Context(), claims.UserID)
			if err != nil {
				httpapi.WriteError(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			if view.Version != claims.Version {
				httpapi.WriteError(w, http.StatusUnauthorized, "stale access token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.ClaimsFromContext(r.Context()) == nil {
			httpapi.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// RequirePermission rejects requests whose authenticated user lacks the
// permission code.
func RequirePermission(svc *auth.Service, code string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			httpapi.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		perms, err := svc.FetchPermissions(r.Context(), claims.UserID)
		if err != nil {
			httpapi.WriteError(w, http.StatusInternalServerError, "permission lookup failed")
			return
		}
		if !perms.Can(code) {
			httpapi.WriteError(w, http.StatusForbidden, "permission denied")
			return
		}
		next(w, r)
	}
}
