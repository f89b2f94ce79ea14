package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "github.com/lib/pq"

	httpapi "bookworm-backend/internal/api/http"
	"bookworm-backend/internal/config"
	"bookworm-backend/internal/jobs"
	"bookworm-backend/internal/logger"
	"bookworm-backend/internal/repository/postgres"
	"bookworm-backend/internal/repository/redismirror"
	"bookworm-backend/internal/scheduler"
	"bookworm-backend/internal/security"
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
	logger.Info("Starting BookWorm backend...", "address", cfg.GetServerAddress())

	// Database
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
	logger.Info("Database connection established")

	// Redis (loan mirror cache)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// The mirror is rebuildable; a cold cache degrades reads, not writes.
		logger.Warn("Redis unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}

	store := postgres.NewStore(db)
	mirror := redismirror.NewMirrorStore(rdb)

	tokens := security.NewTokenManager(
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute,
		time.Duration(cfg.JWT.RefreshTokenExpiry)*time.Minute,
	)

	emailSvc := service.NewEmailService(cfg.Email.APIKey, cfg.Email.From, cfg.Email.FromName)
	authSvc := service.NewAuthService(store.UserRepository, emailSvc, tokens)
	userSvc := service.NewUserService(store.UserRepository)
	bookSvc := service.NewBookService(store.BookRepository)
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
	sched := scheduler.NewScheduler(jobRunner)
	sched.Start()
	defer sched.Stop()

	router := httpapi.NewRouter(cfg, tokens, authSvc, userSvc, bookSvc, borrowSvc)
	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}
