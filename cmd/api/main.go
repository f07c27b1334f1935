package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "housing_sync/internal/adapters/http_server"
	"housing_sync/internal/adapters/observability"
	redisad "housing_sync/internal/adapters/redis"
	"housing_sync/internal/app"
	"housing_sync/internal/shared"
	mysqlrepo "housing_sync/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed; reads fall through to MySQL")
	}
	cancel()

	auth, err := app.NewAuthService(repo, cache, app.AuthConfig{Secret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL})
	if err != nil {
		log.Fatal().Err(err).Msg("auth service init failed")
	}

	// http
	srv := server.New(cfg.RequestTimeout)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:    app.NewQueryService(repo, cache, cfg.CacheTTL),
		C:    app.NewCommandService(repo, cache),
		Auth: auth,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
