/**
 * @description
 * This is the main entry point for the bank-linking-service. Its responsibility
 * is to initialize all components and run the HTTP API alongside the RabbitMQ
 * consumer for verification results.
 *
 * Key features:
 * - Loads application configuration from environment variables.
 * - Runs pending schema migrations before accepting traffic.
 * - Establishes and manages a connection pool to the PostgreSQL database.
 * - Wires up the linking service with its repositories, event producer, and
 *   the customer-service client used for display data.
 * - Starts the verification-result consumer and implements graceful shutdown.
 *
 * @dependencies
 * - The service's internal packages for config, app logic, storage, and API.
 * - pgxpool for database connection, golang-migrate for schema, godotenv for
 *   local config, go-redis for rate limiting, and rabbitmq for messaging.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/arthapay/bank-linking-service/internal/api"
	"github.com/arthapay/bank-linking-service/internal/app"
	"github.com/arthapay/bank-linking-service/internal/config"
	"github.com/arthapay/bank-linking-service/internal/store"
	"github.com/arthapay/bank-linking-service/pkg/customerclient"
	"github.com/arthapay/bank-linking-service/pkg/middleware"
	"github.com/arthapay/bank-linking-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	// Apply pending schema migrations before serving traffic.
	if err := runMigrations(cfg); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Establish database connection pool.
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database URL: %v\n", err)
	}
	dbConfig.MaxConns = 50
	dbConfig.MinConns = 10
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer dbpool.Close()
	log.Println("Database connection established")

	// Set up dependencies.
	accountRepo := store.NewPostgresAccountRepository(dbpool)
	bankRepo := store.NewPostgresBankRepository(dbpool)
	customerClient := customerclient.NewClient(cfg.CustomerServiceURL)

	// RabbitMQ producer is optional: without it activation events are
	// simply not published.
	var producer *rabbitmq.EventProducer
	if cfg.RabbitMQURL != "" {
		producer, err = rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect RabbitMQ producer: %v", err)
		}
		defer producer.Close()
	}

	var events app.EventPublisher
	if producer != nil {
		events = producer
	}
	linkingService := app.NewLinkingService(accountRepo, bankRepo, events, cfg.MaxAccountsPerCustomer)
	verificationHandler := app.NewVerificationEventHandler(accountRepo)

	// Consume verification results published by the KYC pipeline. The
	// context lets the shutdown path below stop the consumer; a nil-free
	// return also surfaces a dropped broker connection in the logs.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if cfg.RabbitMQURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer consumer.Close()

		go func() {
			log.Printf("Starting consumer for event 'bank_account.verification.updated'...")
			err := consumer.Consume(consumerCtx, "kyc_events", "bank_linking_verification_results", "bank_account.verification.updated", verificationHandler.HandleVerificationResult)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("ERROR: Consumer stopped, verification results are no longer processed: %v", err)
			}
		}()
	}

	// Redis-backed rate limiting is optional as well.
	var limiter *middleware.RateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		limiter = middleware.NewRateLimiter(redisClient, "bank_linking:rate_limit", cfg.RateLimitPerMinute, time.Minute)
		log.Println("Redis rate limiting enabled")
	}

	// Setup and start HTTP server.
	accountHandler := api.NewAccountHandler(linkingService, bankRepo, customerClient)
	bankHandler := api.NewBankHandler(bankRepo)
	router := api.NewRouter(cfg, accountHandler, bankHandler, limiter)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	log.Println("Bank linking service is running with API and event consumer.")

	// Wait for termination signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down bank-linking-service...")
	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// runMigrations applies the file-based migrations in cfg.MigrationsPath.
// An up-to-date schema is not an error.
func runMigrations(cfg *config.Config) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", cfg.MigrationsPath), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("could not create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not apply migrations: %w", err)
	}
	log.Println("Database migrations applied")
	return nil
}
