// Package router wires HTTP handlers, middleware and route patterns.
package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/auth"
	"github.com/arkova/catalog-core/internal/catalog"
	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/internal/setting"
	"github.com/arkova/catalog-core/internal/user"
)

// Handlers collects everything RegisterRoutes mounts.
type Handlers struct {
	Auth    *auth.Handler
	User    *user.Handler
	Setting *setting.Handler
	Catalog *catalog.Handler
	Audit   *event.Handler
}

// RegisterRoutes mounts all endpoints on the standard library's http.ServeMux
// under the /catalog-core prefix and wraps the mux with the middleware chain:
// request id, logging, security headers, metrics, token parsing, rate limiting.
func RegisterRoutes(h Handlers, authSvc *auth.Service, users AuthViewLoader, limiter *RateLimiter, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /catalog-core/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /catalog-core/metrics", promhttp.Handler())

	// auth
	mux.HandleFunc("POST /catalog-core/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /catalog-core/auth/refresh", h.Auth.Refresh)
	mux.HandleFunc("POST /catalog-core/auth/logout", h.Auth.Logout)
	mux.HandleFunc("GET /catalog-core/auth/jwks.json", h.Auth.JWKS)
	mux.HandleFunc("GET /catalog-core/auth/permissions", RequireAuth(h.Auth.Permissions))

	// users and groups
	mux.HandleFunc("POST /catalog-core/users", h.User.Register)
	mux.HandleFunc("POST /catalog-core/users/{id}/deactivate", RequirePermission(authSvc, "users.manage", h.User.Deactivate))
	mux.HandleFunc("POST /catalog-core/users/{id}/reactivate", RequirePermission(authSvc, "users.manage", h.User.Reactivate))
	mux.HandleFunc("POST /catalog-core/users/{id}/revoke-sessions", RequirePermission(authSvc, "users.manage", h.Auth.RevokeUserSessions))
	mux.HandleFunc("GET /catalog-core/users/{id}/groups", RequirePermission(authSvc, "users.manage", h.User.ListUserGroups))
	mux.HandleFunc("POST /catalog-core/groups", RequirePermission(authSvc, "users.manage", h.User.CreateGroup))
	mux.HandleFunc("GET /catalog-core/groups", RequireAuth(h.User.ListGroups))
	mux.HandleFunc("DELETE /catalog-core/groups/{id}", RequirePermission(authSvc, "users.manage", h.User.DeleteGroup))
	mux.HandleFunc("POST /catalog-core/groups/{id}/members", RequirePermission(authSvc, "users.manage", h.User.AddGroupMember))
	mux.HandleFunc("DELETE /catalog-core/groups/{id}/members/{userID}", RequirePermission(authSvc, "users.manage", h.User.RemoveGroupMember))
	mux.HandleFunc("POST /catalog-core/groups/{id}/permissions", RequirePermission(authSvc, "users.manage", h.Auth.GrantGroupPermission))
	mux.HandleFunc("DELETE /catalog-core/groups/{id}/permissions/{code}", RequirePermission(authSvc, "users.manage", h.Auth.RevokeGroupPermission))

	// settings
	mux.HandleFunc("GET /catalog-core/settings", RequireAuth(h.Setting.List))
	mux.HandleFunc("PUT /catalog-core/settings", RequirePermission(authSvc, "settings.manage", h.Setting.Update))

	// audit log
	mux.HandleFunc("GET /catalog-core/audit-log", RequirePermission(authSvc, "audit.read", h.Audit.ListAuditLog))

	// catalog: products
	mux.HandleFunc("POST /catalog-core/regions/{regionID}/products", RequirePermission(authSvc, "catalog.manage", h.Catalog.CreateProduct))
	mux.HandleFunc("GET /catalog-core/regions/{regionID}/products", h.Catalog.ListProducts)
	mux.HandleFunc("GET /catalog-core/regions/{regionID}/products/{id}", h.Catalog.GetProduct)
	mux.HandleFunc("PUT /catalog-core/regions/{regionID}/products/{id}", RequirePermission(authSvc, "catalog.manage", h.Catalog.UpdateProduct))
	mux.HandleFunc("POST /catalog-core/regions/{regionID}/products/{id}/options", RequirePermission(authSvc, "catalog.manage", h.Catalog.AddOptionPair))
	mux.HandleFunc("DELETE /catalog-core/regions/{regionID}/products/{id}/options", RequirePermission(authSvc, "catalog.manage", h.Catalog.DeleteOptionPair))
	mux.HandleFunc("GET /catalog-core/regions/{regionID}/products/{id}/price", h.Catalog.ResolvePrice)

	// catalog: price lists
	mux.HandleFunc("POST /catalog-core/regions/{regionID}/price-lists", RequirePermission(authSvc, "catalog.manage", h.Catalog.CreatePriceList))
	mux.HandleFunc("GET /catalog-core/regions/{regionID}/price-lists", h.Catalog.ListPriceLists)
	mux.HandleFunc("GET /catalog-core/regions/{regionID}/price-lists/{id}", h.Catalog.GetPriceList)
	mux.HandleFunc("PUT /catalog-core/regions/{regionID}/price-lists/{id}/items", RequirePermission(authSvc, "catalog.manage", h.Catalog.SetPrice))
	mux.HandleFunc("DELETE /catalog-core/regions/{regionID}/price-lists/{id}/items/{productID}", RequirePermission(authSvc, "catalog.manage", h.Catalog.DeletePrice))

	var handler http.Handler = mux
	handler = limiter.Middleware()(handler)
	handler = AuthMiddleware(authSvc, users)(handler)
	handler = MetricsMiddleware()(handler)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
