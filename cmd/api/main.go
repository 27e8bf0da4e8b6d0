package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/arkova/catalog-core/internal/auth"
	"github.com/arkova/catalog-core/internal/catalog"
	"github.com/arkova/catalog-core/internal/event"
	eventrepo "github.com/arkova/catalog-core/internal/event/repo"
	"github.com/arkova/catalog-core/internal/router"
	"github.com/arkova/catalog-core/internal/setting"
	settingrepo "github.com/arkova/catalog-core/internal/setting/repo"
	"github.com/arkova/catalog-core/internal/user"
	"github.com/arkova/catalog-core/pkg/database"
	"github.com/arkova/catalog-core/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting catalog-core")

	cfg := database.ConfigFromEnv()
	sqlDB, err := database.Connect(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	if err := database.Migrate(sqlDB); err != nil {
		sugar.Fatalf("db migrate: %v", err)
	}

	sqlxDB := sqlx.NewDb(sqlDB, "postgres")
	defer sqlxDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// event bus with the audit trail and cache invalidation subscribers
	bus, err := event.NewBus(sugar)
	if err != nil {
		sugar.Fatalf("event bus: %v", err)
	}
	auditRepo := eventrepo.NewAuditRepo(sqlxDB)

	settingRepo := settingrepo.NewRepo(sqlxDB)
	settingSvc := setting.NewService(settingRepo, settingRepo, bus, setting.DefaultTTL, sugar)
	defer settingSvc.Close()

	if err := bus.Subscribe("audit_trail", event.SubscribeAll, event.NewAuditSubscriber(auditRepo)); err != nil {
		sugar.Fatalf("subscribe audit trail: %v", err)
	}
	if err := bus.Subscribe("settings_cache_invalidator", "settings.updated", setting.NewCacheInvalidator(settingSvc)); err != nil {
		sugar.Fatalf("subscribe cache invalidator: %v", err)
	}
	if err := bus.Start(ctx); err != nil {
		sugar.Fatalf("event bus start: %v", err)
	}

	// throttling config comes from the settings table; a broken section is a
	// startup failure, not a silent default
	rlCfg, err := router.LoadRateLimitConfig(ctx, settingSvc)
	if err != nil {
		sugar.Fatalf("rate limit config: %v", err)
	}
	limiter := router.NewRateLimiter(rlCfg, bus, sugar)
	limiter.StartCleanup(ctx, 5*time.Minute, 30*time.Minute)

	key, err := auth.LoadOrGenerateKey(os.Getenv("JWT_PRIVATE_KEY_FILE"))
	if err != nil {
		sugar.Fatalf("jwt key: %v", err)
	}
	accessTTL := auth.DefaultAccessTTL
	if minutes, err := settingSvc.GetInt(ctx, "Application.Security.SessionManagement", "session.access.token.minutes"); err == nil && minutes > 0 {
		accessTTL = time.Duration(minutes) * time.Minute
	}
	refreshTTL := auth.DefaultRefreshTTL
	if days, err := settingSvc.GetInt(ctx, "Application.Security.SessionManagement", "session.refresh.token.days"); err == nil && days > 0 {
		refreshTTL = time.Duration(days) * 24 * time.Hour
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "catalog-core"
	}
	authSvc := auth.NewService(sqlxDB, key, issuer, accessTTL, refreshTTL, bus, sugar)
	authSvc.StartSessionPruner(ctx, time.Hour)

	userSvc := user.NewUserService(sqlxDB, bus, sugar)
	catalogSvc := catalog.NewService(sqlxDB, bus, sugar)

	handler := router.RegisterRoutes(router.Handlers{
		Auth:    auth.NewHandler(authSvc, userSvc, sugar),
		User:    user.NewHandler(userSvc, sugar),
		Setting: setting.NewHandler(settingSvc, sugar),
		Catalog: catalog.NewHandler(catalogSvc, sugar),
		Audit:   event.NewHandler(auditRepo, sugar),
	}, authSvc, userSvc, limiter, sugar)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		sugar.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		sugar.Warnf("event bus close failed: %v", err)
	}

	sugar.Info("goodbye")
}
