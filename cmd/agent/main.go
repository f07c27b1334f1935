package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "housing_sync/internal/adapters/http_server"
	"housing_sync/internal/adapters/observability"
	"housing_sync/internal/adapters/remote"
	"housing_sync/internal/client"
	"housing_sync/internal/credentials"
	"housing_sync/internal/netstatus"
	"housing_sync/internal/offline"
	"housing_sync/internal/reqcache"
	"housing_sync/internal/shared"
	"housing_sync/internal/syncer"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// durable local state
	kv, err := offline.OpenBadger(cfg.OfflineDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.OfflineDir).Msg("open offline store failed")
	}
	defer kv.Close()
	store, err := offline.Open(kv)
	if err != nil {
		log.Fatal().Err(err).Msg("load offline store failed")
	}
	creds, err := credentials.New(kv, cfg.DeviceSecret, credentials.WithLogger(observability.Component(log.Logger, "credentials")))
	if err != nil {
		log.Fatal().Err(err).Msg("credential store init failed")
	}

	// remote
	// rate limit and breaker sit below the cache; hits never touch them
	transport := remote.NewTransport(&http.Client{Timeout: cfg.RequestTimeout}, cfg.RemoteRPS, observability.Component(log.Logger, "transport"))
	cache := reqcache.New(reqcache.Options{
		ResponseTTL: cfg.ResponseTTL,
		Doer:        transport,
		Clearer:     creds,
		Logger:      observability.Component(log.Logger, "reqcache"),
	})
	base := strings.TrimRight(cfg.RemoteBaseURL, "/")
	rc, err := remote.New(base, cache, creds, observability.Component(log.Logger, "remote"))
	if err != nil {
		log.Fatal().Err(err).Msg("remote client init failed")
	}

	// connectivity + sync
	monitor := netstatus.New(cfg.StartOnline)
	co := syncer.New(store, rc, observability.Component(log.Logger, "syncer"))
	detach := co.Attach(monitor)
	defer detach()
	prober := netstatus.NewProber(monitor, base+"/healthz", cfg.ProbeInterval, observability.Component(log.Logger, "prober"))
	go prober.Run(ctx)

	session := client.NewSession(rc, creds, cache, remote.IsUnreachable, observability.Component(log.Logger, "session"))
	agent, err := client.New(client.Deps{
		Properties:    rc,
		Uploader:      rc,
		Images:        rc,
		Store:         store,
		Monitor:       monitor,
		Syncer:        co,
		Session:       session,
		IsUnreachable: remote.IsUnreachable,
		PrefetchLimit: cfg.PrefetchLimit,
		Logger:        observability.Component(log.Logger, "agent"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("agent init failed")
	}

	if u, ok := session.AutoLogin(ctx); ok {
		log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("signed in from saved credentials")
	}

	// local API
	srv := server.New(cfg.RequestTimeout)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountAgent(&server.AgentHandlers{A: agent})

	httpSrv := &http.Server{Addr: cfg.AgentAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.AgentAddr).Str("remote", base).Msg("agent listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("agent http server failed")
	}

	// let an in-flight upload pass finish before the store closes
	co.Wait()
	log.Info().Msg("agent stopped")
}
