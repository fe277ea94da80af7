package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/config"
	"crm-platform/internal/oauth"
	"crm-platform/internal/proxy"
	"crm-platform/internal/session"
	"crm-platform/internal/signing"
	"crm-platform/internal/tenant"
	"crm-platform/pkg/logger"
	"crm-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sessions, err := session.NewManager(cfg.Session, log)
	if err != nil {
		log.Error("session init failed", "err", err)
		os.Exit(1)
	}

	provider, err := oauth.NewProvider(cfg.OAuth)
	if err != nil {
		log.Error("oauth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	tenants := tenant.NewPostgresRepo(db)

	authHandlers := oauth.Handlers{
		Provider:   provider,
		States:     oauth.NewRedisStateStore(rdb),
		Sessions:   sessions,
		Audit:      auditSvc,
		AuthMode:   cfg.Session.Mode,
		StateTTL:   cfg.OAuth.StateTTL,
		Production: cfg.IsProduction(),
	}
	onboarding := tenant.Onboarding{
		Tenants:    tenants,
		Sessions:   sessions,
		Production: cfg.IsProduction(),
	}

	// Optional signed proxy to the CRM backend, kept warm by the
	// service-token keep-alive.
	var backend *proxy.Client
	if cfg.Backend.BaseURL != "" {
		signer, err := signing.NewSigner(cfg.Session.ProxySecret)
		if err != nil {
			log.Error("proxy signer init failed", "err", err)
			os.Exit(1)
		}
		serviceTokens := session.NewTokenStore()
		backend, err = proxy.NewClient(cfg.Backend.BaseURL, signer, serviceTokens)
		if err != nil {
			log.Error("proxy client init failed", "err", err)
			os.Exit(1)
		}
		keepAlive := proxy.NewKeepAlive(provider, serviceTokens, cfg.Refresh, cfg.Backend.ServiceRefreshToken, log)
		keepAlive.Start(rootCtx)
		defer keepAlive.Stop()
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		db:         db,
		rdb:        rdb,
		sessions:   sessions,
		auth:       authHandlers,
		onboarding: onboarding,
		tenants:    tenants,
		audit:      auditSvc,
		backend:    backend,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "auth_mode", cfg.Session.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
