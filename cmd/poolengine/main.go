// Command poolengine runs the accounting, fee, and rebalance engine
// with its HTTP query/admin surface.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/velora-fi/poolengine/api"
	"github.com/velora-fi/poolengine/internal/calculator"
	"github.com/velora-fi/poolengine/internal/config"
	"github.com/velora-fi/poolengine/internal/custody"
	"github.com/velora-fi/poolengine/internal/identity"
	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/internal/settlement"
	"github.com/velora-fi/poolengine/internal/supply"
	"github.com/velora-fi/poolengine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "poolengine: %v\n", err)
		os.Exit(1)
	}
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case "sqlite", "":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("POOLENGINE_CONFIG"))
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	ledgerStore, err := ledger.NewGormStore(db)
	if err != nil {
		return err
	}
	orderStore, err := settlement.NewGormOrderStore(db)
	if err != nil {
		return err
	}
	custodyPool, err := custody.NewPool(log, db)
	if err != nil {
		return err
	}
	whitelist, err := identity.NewWhitelist(log, db)
	if err != nil {
		return err
	}
	supplyTracker, err := supply.NewTracker(log, db)
	if err != nil {
		return err
	}

	feeFloor, err := cfg.MinimumFeeFloorAmount()
	if err != nil {
		return err
	}
	minRebalance, err := cfg.MinRebalanceAmount()
	if err != nil {
		return err
	}

	ledgerSvc := ledger.NewService(log, ledgerStore)
	calc := calculator.New(ledgerSvc, calculator.Policy{
		FloorBeforeFee:      cfg.Engine.FloorBeforeFee,
		ChargeOpenFeePeriod: cfg.Engine.ChargeOpenFeePeriod,
		MinimumFeeFloor:     feeFloor,
		MinRebalanceAmount:  minRebalance,
	})
	coordinator := settlement.NewCoordinator(log, ledgerSvc, calc, orderStore, custodyPool, whitelist, supplyTracker, settlement.Config{
		CashToken:  cfg.Engine.CashToken,
		PoolToken:  cfg.Engine.PoolToken,
		LockWindow: cfg.Engine.LockWindow,
	})

	server := api.NewServer(log, ledgerSvc, calc, coordinator)
	log.Info("engine started",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cash_token", cfg.Engine.CashToken),
		zap.String("pool_token", cfg.Engine.PoolToken),
	)
	return server.Run(cfg.ListenAddress)
}
