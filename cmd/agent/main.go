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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"phone-assistant/internal/agent"
	"phone-assistant/internal/auth"
	"phone-assistant/internal/calllog"
	"phone-assistant/internal/config"
	"phone-assistant/internal/registry"
	"phone-assistant/pkg/logger"
	"phone-assistant/pkg/utils"
)

func main() {
	// Local overrides only; absence is fine everywhere else.
	_ = godotenv.Load(".env.local")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "phone-assistant")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// The call log falls back to memory when no database is configured.
	var callRepo calllog.Repository = calllog.NewMemoryRepo()
	if cfg.CallLogDBEnabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		callRepo = calllog.NewPostgresRepo(db)
	}
	calls := calllog.NewService(callRepo)

	var activeCalls *registry.ActiveCalls
	if cfg.RegistryEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		activeCalls = registry.NewActiveCalls(rdb, 0)
	}

	dispatcher, err := agent.NewDispatcher(agent.Deps{
		Config:   cfg,
		Calls:    calls,
		Registry: activeCalls,
		Log:      log,
	})
	if err != nil {
		log.Error("dispatcher init failed", "err", err)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, dispatcher, authManager, calls)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("agent listening", "addr", srv.Addr, "env", cfg.App.Env)
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

	// Live callers get their sessions closed out before the process exits.
	dispatcher.Close()
}
