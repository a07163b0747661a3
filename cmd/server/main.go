package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kuth-chi/eductionhub-sessions/internal/config"
	"github.com/kuth-chi/eductionhub-sessions/internal/cookie"
	"github.com/kuth-chi/eductionhub-sessions/internal/credential"
	"github.com/kuth-chi/eductionhub-sessions/internal/db"
	internalhttp "github.com/kuth-chi/eductionhub-sessions/internal/http"
	"github.com/kuth-chi/eductionhub-sessions/internal/logging"
	"github.com/kuth-chi/eductionhub-sessions/internal/principal"
	"github.com/kuth-chi/eductionhub-sessions/internal/registry"
	"github.com/kuth-chi/eductionhub-sessions/internal/revocation"
	"github.com/kuth-chi/eductionhub-sessions/internal/risk"
	"github.com/kuth-chi/eductionhub-sessions/internal/session"
	"github.com/kuth-chi/eductionhub-sessions/internal/sessioncache"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("schema setup failed", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatal("redis ping failed", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	codec, err := credential.NewCodec(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		log.Fatal("credential codec init failed", zap.Error(err))
	}

	policy := risk.DefaultPolicy()
	if len(cfg.HighRiskAgents) > 0 {
		policy.HighRiskAgents = cfg.HighRiskAgents
	}
	if len(cfg.ModerateRiskAgents) > 0 {
		policy.ModerateRiskAgents = cfg.ModerateRiskAgents
	}

	store := registry.NewPostgresStore(pool)
	directory := principal.NewPostgresDirectory(pool)
	cache := sessioncache.New(redisClient)
	revoker := revocation.New(store, cache, log)
	coord := session.NewCoordinator(directory, codec, store, cache, revoker, policy, session.Options{
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		RotateRefresh: cfg.RotateRefresh,
	}, log)
	guard := cookie.NewGuard(cookie.Config{
		Secure:               !cfg.Debug,
		SameSite:             cfg.SameSite(),
		CrossSubdomainDomain: cfg.CrossSubdomainCookieDomain,
		AccessTTL:            cfg.AccessTokenTTL,
		RefreshTTL:           cfg.RefreshTokenTTL,
	}, codec, log)

	server := internalhttp.NewServer(coord, codec, guard, directory, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("auth-sessions http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
}
