// @title                       Ledger Gateway API
// @version                     1.0
// @description                 Token-authenticated, role-gated ledger with atomic transfers.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/99minutos/ledger-gateway/internal/api"
	"github.com/99minutos/ledger-gateway/internal/api/handler"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
	"github.com/99minutos/ledger-gateway/internal/core/service"
	"github.com/99minutos/ledger-gateway/internal/infrastructure/db/memory"
	mongostore "github.com/99minutos/ledger-gateway/internal/infrastructure/db/mongo"
	"github.com/99minutos/ledger-gateway/internal/infrastructure/db/postgres"
	redisstore "github.com/99minutos/ledger-gateway/internal/infrastructure/db/redis"
	"github.com/99minutos/ledger-gateway/internal/infrastructure/queue"
	"github.com/99minutos/ledger-gateway/internal/pkg/config"
	"github.com/99minutos/ledger-gateway/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, envconfig.OsLookuper())
	if err != nil {
		// logger is not configured yet
		bootLog := logger.Init(logger.Options{})
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "ledger-gateway",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

// stores bundles the adapters chosen by configuration.
type stores struct {
	users    ports.UserRepository
	accounts ports.AccountRepository
	audit    ports.AuditRepository
	idem     ports.IdempotencyStore
	checks   map[string]handler.CheckFunc
	closers  []func(context.Context)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, c := range st.closers {
			c(closeCtx)
		}
	}()

	auditService := service.NewAuditService(st.audit, logger.Component("audit"))
	dispatcher := queue.NewDispatcher(cfg.Ledger.AuditWorkers, auditService, logger.Component("audit"))
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	tokens := service.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, time.Now)
	authService, err := service.NewAuthService(st.users, tokens, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost, logger.Component("auth"))
	if err != nil {
		return err
	}
	ledgerService := service.NewLedgerService(st.accounts, st.idem, dispatcher, logger.Component("ledger"))

	if cfg.SeedAdmin.Username != "" {
		if err := authService.EnsureUser(ctx, ports.RegisterInput{
			Username: cfg.SeedAdmin.Username,
			Password: cfg.SeedAdmin.Password,
			Role:     "admin",
		}); err != nil {
			return err
		}
	}

	e := api.NewRouter(api.Deps{
		Auth:     authService,
		Ledger:   ledgerService,
		Audit:    auditService,
		Verifier: tokens,
		Checks:   st.checks,
		Log:      logger.Component("http"),
	})
	e.Use(echoprometheus.NewMiddleware("ledger_gateway"))
	e.GET("/metrics", echoprometheus.NewHandler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	st := &stores{checks: map[string]handler.CheckFunc{}}

	switch cfg.Store {
	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(ctx context.Context) { _ = client.Disconnect(ctx) })
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			return nil, err
		}
		st.users = mongostore.NewUserRepository(db)
		st.accounts = mongostore.NewAccountRepository(db)
		st.audit = mongostore.NewAuditRepository(db)
		st.checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		log.Info().Str("database", cfg.Mongo.Database).Msg("using mongo store")
	default:
		st.users = memory.NewUserRepository()
		st.accounts = memory.NewAccountRepository(cfg.Ledger.LockTimeout)
		st.audit = memory.NewAuditRepository()
		log.Info().Msg("using memory store")
	}

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) { pool.Close() })
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		st.accounts = postgres.NewAccountRepository(pool, cfg.Ledger.LockTimeout)
		st.checks["postgres"] = pool.Ping
		log.Info().Msg("using postgres ledger")
	}

	if cfg.Redis.Addr != "" {
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) { _ = client.Close() })
		st.idem = redisstore.NewIdempotencyStore(client, cfg.Ledger.IdempotencyTTL)
		st.checks["redis"] = redisstore.Ping(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis idempotency store")
		return st, nil
	}

	idem := memory.NewIdempotencyStore(cfg.Ledger.IdempotencyTTL)
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		if n := idem.Sweep(); n > 0 {
			log.Debug().Int("removed", n).Msg("expired idempotency keys swept")
		}
	}); err != nil {
		return nil, err
	}
	sweeper.Start()
	st.closers = append(st.closers, func(ctx context.Context) {
		select {
		case <-sweeper.Stop().Done():
		case <-ctx.Done():
		}
	})
	st.idem = idem
	return st, nil
}
