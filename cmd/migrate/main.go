package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
)

func main() {
	down := flag.Bool("down", false, "Roll back the most recent migration")
	status := flag.Bool("status", false, "Print the state of every migration without applying anything")
	timeout := flag.Duration("timeout", 30*time.Second, "Give up after this long")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "database", cfg.Postgres.DBName)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch {
	case *status:
		err = postgres.MigrationStatus(ctx, db)
	case *down:
		logger.Info("Rolling back the latest migration...")
		err = postgres.MigrateDown(ctx, db)
	default:
		logger.Info("Running database migrations...")
		err = postgres.Migrate(ctx, db)
	}
	if err != nil {
		logger.Fatalw("Migration failed", "error", err)
	}

	logger.Info("Migration finished")
}
