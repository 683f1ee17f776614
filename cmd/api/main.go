package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bank-ledger/config"
	httpHandler "bank-ledger/internal/adapter/http/handler"
	memStorage "bank-ledger/internal/adapter/storage/memory"
	pgStorage "bank-ledger/internal/adapter/storage/postgres"
	redisStorage "bank-ledger/internal/adapter/storage/redis"
	"bank-ledger/internal/core/ports"
	"bank-ledger/internal/service"
	"bank-ledger/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// storage bundles the repositories of one backend.
type storage struct {
	accounts   ports.AccountRepository
	ledger     ports.LedgerRepository
	users      ports.UserRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*storage, error) {
	switch cfg.Driver {
	case "memory":
		store := memStorage.NewStore()
		return &storage{
			accounts:   memStorage.NewAccountRepo(store),
			ledger:     memStorage.NewLedgerRepo(store),
			users:      memStorage.NewUserRepo(store),
			audit:      memStorage.NewAuditRepo(store),
			transactor: store,
			health:     store,
			close:      func() {},
		}, nil

	case "postgres", "":
		if cfg.AutoMigrate {
			if err := pgStorage.Migrate(cfg.MigrationDSN(), log); err != nil {
				return nil, fmt.Errorf("migrating schema: %w", err)
			}
		}
		pool, err := pgStorage.NewPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &storage{
			accounts:   pgStorage.NewAccountRepo(pool),
			ledger:     pgStorage.NewLedgerRepo(pool),
			users:      pgStorage.NewUserRepo(pool),
			audit:      pgStorage.NewAuditRepo(pool),
			transactor: pgStorage.NewTransactor(pool),
			health:     pgStorage.NewHealthCheck(pool),
			close:      pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func main() {
	cfg, err := config.Load(os.Getenv("BANK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("bank-ledger", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("driver", cfg.Database.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting bank ledger")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set (BANK_JWT_SECRET)")
	}
	gin.SetMode(cfg.Server.Mode)

	ctx := context.Background()

	store, err := openStorage(ctx, cfg.Database, logger.Component(log, "storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	ids, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		log.Fatal().Err(err).Int64("node_id", cfg.Server.NodeID).Msg("Invalid snowflake node id")
	}

	healthCheckers := []ports.HealthChecker{store.health}

	// Redis backs rate limiting and idempotent replays; both degrade to
	// pass-through when it is disabled or the breaker is open.
	var (
		rateLimitStore   ports.RateLimitStore
		idempotencyCache ports.IdempotencyCache
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		breaker := redisStorage.NewBreaker("redis", cfg.Redis.Breaker, logger.Component(log, "redis"))
		idempotencyCache = redisStorage.NewIdempotencyCache(rdb, breaker)
		if cfg.RateLimit.Enabled {
			rateLimitStore = redisStorage.NewRateLimitStore(rdb, breaker)
		}
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	hashSvc := service.NewArgon2HashService(service.DefaultArgon2Params)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	engineLog := logger.Component(log, "engine")
	ledgerSvc := service.NewLedgerService(store.accounts, store.ledger, store.users, store.transactor, ids, engineLog)
	authSvc := service.NewAuthService(store.users, hashSvc, tokenSvc, logger.Component(log, "auth"))
	userAdminSvc := service.NewUserAdminService(store.users, logger.Component(log, "auth"))
	reportingSvc := service.NewReportingService(store.accounts, store.ledger)
	auditSvc := service.NewAuditService(store.audit, logger.Component(log, "audit"))

	if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed admin user")
	}
	if n, err := ledgerSvc.ReconcileOrphans(ctx, cfg.Admin.Username); err != nil {
		log.Fatal().Err(err).Msg("Failed to assign owner-less accounts")
	} else if n > 0 {
		log.Info().Int64("accounts", n).Str("owner", cfg.Admin.Username).Msg("Assigned owner-less accounts to admin")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:          authSvc,
		LedgerSvc:        ledgerSvc,
		ReportingSvc:     reportingSvc,
		UserAdminSvc:     userAdminSvc,
		TokenSvc:         tokenSvc,
		RateLimitStore:   rateLimitStore,
		IdempotencyCache: idempotencyCache,
		IdempotencyTTL:   cfg.Idempotency.TTL,
		MaxInFlight:      cfg.Server.MaxInFlight,
		HealthCheckers:   healthCheckers,
		AuditSvc:         auditSvc,
		Logger:           logger.Component(log, "http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}
