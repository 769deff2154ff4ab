// Command server runs the club notification API: token, API key and
// same-origin authentication, audience fan-out, per-recipient inboxes, and
// live WebSocket delivery.
//
//go:generate swag init -g cmd/server/main.go -o docs --parseInternal
//
// @title                      Club Notifications API
// @version                    1.0
// @description                Send notifications to club audiences and follow them live.
// @BasePath                   /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-Key
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                "Bearer <token>" issued by POST /auth/login
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-club-backend/internal/config"
	httpapi "github.com/tbourn/go-club-backend/internal/http"
	"github.com/tbourn/go-club-backend/internal/observability"
	"github.com/tbourn/go-club-backend/internal/ratelimit"
	"github.com/tbourn/go-club-backend/internal/repo"
	"github.com/tbourn/go-club-backend/internal/services"
	"github.com/tbourn/go-club-backend/internal/sysutil"
)

var version = "dev"

const shutdownGrace = 15 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	sysutil.InstallLogger(
		sysutil.NewLogger(os.Stdout, cfg.LogPretty, sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, observability.DefaultServiceName), ver),
		cfg.LogLevel,
	)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing disabled")
		}
	}

	if cfg.Seed.Enabled() {
		admin, err := services.SeedAdmin(ctx, db, cfg.Seed.AdminUsername, cfg.Seed.AdminPassword, cfg.Seed.AdminEmail)
		if err != nil {
			log.Fatal().Err(err).Msg("seed admin")
		}
		log.Info().Uint("user_id", admin.ID).Str("username", admin.Username).Msg("admin account ready")
	}

	var limiter *ratelimit.Limiter
	if cfg.Auth.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := ratelimit.OpenRedis(pingCtx, cfg.Auth.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer client.Close()
		limiter = ratelimit.New(ratelimit.NewRedisStore(client, "club:ratelimit:"), cfg.Auth.RateWindow, cfg.Auth.DefaultRateLimit)
		log.Info().Msg("api key rate windows shared via redis")
	}

	r := gin.New()
	rt := httpapi.RegisterRoutes(r, db, limiter, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server.
	rt.Shutdown("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
}
