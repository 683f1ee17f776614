package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bank-ledger/config"
	pgStorage "bank-ledger/internal/adapter/storage/postgres"
	"bank-ledger/internal/seed"
	"bank-ledger/internal/service"
	"bank-ledger/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
)

func main() {
	fixturePath := flag.String("fixture", "config/fixtures.yaml", "path to the YAML fixture")
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("bank-ledger-seeder", cfg.Log.Level, cfg.Log.Pretty)

	file, err := os.Open(*fixturePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *fixturePath).Msg("Failed to open fixture")
	}
	fixture, err := seed.Parse(file)
	_ = file.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid fixture")
	}

	res, err := run(context.Background(), cfg, fixture, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}

	log.Info().
		Int("users", res.Users).
		Int("accounts", res.Accounts).
		Int("skipped", res.Skipped).
		Msg("Fixture applied")
}

// run owns the pool so it is closed before main exits on any path.
func run(ctx context.Context, cfg *config.Config, fixture *seed.Fixture, log zerolog.Logger) (seed.Result, error) {
	ids, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		return seed.Result{}, fmt.Errorf("invalid snowflake node id: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(cfg.Database.MigrationDSN(), log); err != nil {
			return seed.Result{}, fmt.Errorf("migrating schema: %w", err)
		}
	}
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return seed.Result{}, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer pool.Close()

	users := pgStorage.NewUserRepo(pool)
	accounts := pgStorage.NewAccountRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	hashSvc := service.NewArgon2HashService(service.DefaultArgon2Params)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authSvc := service.NewAuthService(users, hashSvc, tokenSvc, log)
	ledgerSvc := service.NewLedgerService(accounts, pgStorage.NewLedgerRepo(pool), users, transactor, ids, log)

	return seed.NewSeeder(authSvc, ledgerSvc, accounts, transactor, log).Apply(ctx, fixture)
}
