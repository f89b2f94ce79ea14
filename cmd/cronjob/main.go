// Manual job execution: runs the nightly jobs once and exits. Useful for
// backfills and for environments without a long-running scheduler.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	_ "github.com/lib/pq"

	"bookworm-backend/internal/config"
	"bookworm-backend/internal/jobs"
	"bookworm-backend/internal/logger"
	"bookworm-backend/internal/repository/postgres"
	"bookworm-backend/internal/repository/redismirror"
	"bookworm-backend/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unreachable", "addr", cfg.Redis.Addr, "error", err)
	}

	store := postgres.NewStore(db)
	mirror := redismirror.NewMirrorStore(rdb)
	emailSvc := service.NewEmailService(cfg.Email.APIKey, cfg.Email.From, cfg.Email.FromName)
	pool := service.NewInventoryPool(store.BookRepository)
	borrowSvc := service.NewBorrowService(
		store.LoanRepository,
		store.BookRepository,
		store.UserRepository,
		pool,
		mirror,
		emailSvc,
		service.BorrowPolicy{
			LoanPeriod:           cfg.LoanPeriod(),
			ExtensionPeriod:      cfg.ExtensionPeriod(),
			FineRateCentsPerHour: cfg.Borrowing.FineRateCentsPerHour,
		},
	)

	jobRunner := jobs.NewJobRunner(store.LoanRepository, borrowSvc, emailSvc, cfg)

	start := time.Now()
	jobRunner.RunAllNightlyJobs()
	logger.Info("Nightly jobs finished", "duration", time.Since(start))
}
