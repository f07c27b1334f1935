package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"housing_sync/internal/adapters/observability"
	redisad "housing_sync/internal/adapters/redis"
	"housing_sync/internal/app"
	"housing_sync/internal/domain"
	"housing_sync/internal/shared"
	mysqlrepo "housing_sync/internal/storage/mysql"
)

// seedAdmin only needs the role; commands never look the admin up.
var seedAdmin = domain.User{ID: "0", Name: "seed", Role: domain.RoleAdmin}

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.SeedWorkers).
		Int("properties", len(shared.SeedProperties)).
		Msg("seed starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	// seed tokens are thrown away; any secret will do when none is configured
	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
	}
	auth, err := app.NewAuthService(repo, cache, app.AuthConfig{Secret: secret})
	if err != nil {
		log.Fatal().Err(err).Msg("auth service init failed")
	}
	cmds := app.NewCommandService(repo, cache)

	// landlord accounts first, so listings can point at real users
	landlords := map[string]domain.User{}
	for _, p := range shared.SeedProperties {
		if _, ok := landlords[p.Landlord.ID]; ok {
			continue
		}
		u, err := ensureLandlord(ctx, auth, repo, p.Landlord, cfg.SeedPassword)
		if err != nil {
			log.Fatal().Err(err).Str("landlord", p.Landlord.Name).Msg("seed landlord failed")
		}
		landlords[p.Landlord.ID] = u
	}

	sem := semaphore.NewWeighted(int64(max(cfg.SeedWorkers, 1)))
	var wg sync.WaitGroup
	var failed atomic.Int32

	for _, p := range shared.SeedProperties {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		u := landlords[p.Landlord.ID]
		p.Landlord.ID = u.ID

		wg.Add(1)
		go func(p domain.Property) {
			defer wg.Done()
			defer sem.Release(1)

			out, err := cmds.CreateProperty(ctx, seedAdmin, p)
			if err != nil {
				failed.Add(1)
				log.Warn().Str("title", p.Title).Err(err).Msg("seed property failed")
				return
			}
			log.Info().Str("id", out.ID).Str("title", out.Title).Msg("seed property ok")
		}(p)
	}

	wg.Wait()
	log.Info().Int32("failed", failed.Load()).Msg("seed completed")
}

// ensureLandlord registers the landlord account or loads it when it exists.
func ensureLandlord(ctx context.Context, auth *app.AuthService, users domain.UserRepository, l domain.Landlord, password string) (domain.User, error) {
	email := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(l.Name), " ", ".")) + "@example.ug"
	res, err := auth.Register(ctx, domain.RegisterRequest{
		Name:                 l.Name,
		Email:                email,
		Password:             password,
		PasswordConfirmation: password,
		Phone:                l.Phone,
		Role:                 domain.RoleLandlord,
	})
	if err == nil {
		return res.User, nil
	}
	if !domain.IsValidation(err) {
		return domain.User{}, err
	}
	rec, lookupErr := users.GetUserByEmail(ctx, email)
	if lookupErr != nil {
		return domain.User{}, errors.Join(err, lookupErr)
	}
	return rec.User, nil
}
