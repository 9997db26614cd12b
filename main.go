package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-pricing/internal/analytics"
	analytics_api "ms-pricing/internal/analytics/api"
	"ms-pricing/internal/auth"
	"ms-pricing/internal/config"
	"ms-pricing/internal/database/migrations"
	"ms-pricing/internal/kafka"
	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"
	"ms-pricing/internal/pricing"
	pricing_api "ms-pricing/internal/pricing/api"
	rules_db "ms-pricing/internal/rules/db"
	"ms-pricing/internal/rules/rule_api"
	usage_redis "ms-pricing/internal/usage/redis"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func main() {
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	if err := godotenv.Load(); err != nil {
		appLogger.Warn("CONFIG", "No .env file found, relying on environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()

	// ---------------- DATABASE ----------------
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to open database: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	if err := bunDB.PingContext(ctx); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to ping database: %v", err))
	}
	appLogger.Info("DATABASE", "Connected to Postgres")

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to run migrations: %v", err))
	}
	defer runner.Close()

	if os.Getenv("SEED_DATA") == "true" {
		seedDemoRules(ctx, bunDB, appLogger)
	}

	// ---------------- REDIS ----------------
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err))
	}
	appLogger.Info("REDIS", fmt.Sprintf("Connected to Redis at %s", cfg.Redis.Addr))

	// ---------------- CORE SERVICES ----------------
	ruleStore := &rules_db.DB{Bun: bunDB}
	counter := usage_redis.NewCounter(rdb, appLogger)

	engine := pricing.NewEngine(ruleStore, counter, nil, appLogger, cfg.Pricing.Currency)

	// ---------------- KAFKA ----------------
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		topics := []string{
			cfg.Kafka.Topics.PricingCommitted,
			cfg.Kafka.Topics.PricingReleased,
			cfg.Kafka.Topics.BookingCancelled,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			appLogger.Error("KAFKA", fmt.Sprintf("Failed to ensure topics exist: %v", err))
		}

		publisher := kafka.NewPublisher(cfg.Kafka.Brokers,
			cfg.Kafka.Topics.PricingCommitted, cfg.Kafka.Topics.PricingReleased)
		defer publisher.Close()
		engine.Events = publisher

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers,
			cfg.Kafka.Topics.BookingCancelled, cfg.Kafka.GroupID)
	} else {
		appLogger.Warn("KAFKA", "Kafka disabled or in mock mode, pricing events will not be published")
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if consumer != nil {
		go consumer.Start(consumerCtx, func(event models.BookingCancelledEvent) {
			if err := engine.ReleaseBooking(context.Background(), event.BookingID); err != nil {
				appLogger.Error("USAGE", fmt.Sprintf("Failed to release usage for booking %s: %v", event.BookingID, err))
			}
		})
	}

	// ---------------- HTTP ----------------
	pricingHandler := &pricing_api.Handler{Engine: engine, Logger: appLogger}
	ruleHandler := &rule_api.Handler{DB: ruleStore, Logger: appLogger}
	statsHandler := &analytics_api.Handler{
		Service: analytics.NewService(analytics.NewDB(bunDB), appLogger),
	}

	authMiddleware := auth.Middleware(cfg.Auth)
	adminOnly := auth.RequireRole(cfg.Auth.AdminRole)

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Customer-facing preview surface, no side effects.
	r.Post("/pricing/calculate", pricingHandler.CalculatePricing)
	r.Post("/pricing/validate-promo", pricingHandler.ValidatePromo)

	// Internal commit path, invoked by the booking service.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/internal/v1/pricing/commit", pricingHandler.CommitPricing)
	})

	// Admin surface.
	r.Route("/discount-rules", func(r chi.Router) {
		r.Use(authMiddleware, adminOnly)
		r.Get("/", ruleHandler.ListRules)
		r.Post("/", ruleHandler.CreateRule)
		r.Get("/{ruleId}", ruleHandler.GetRule)
		r.Put("/{ruleId}", ruleHandler.UpdateRule)
		r.Delete("/{ruleId}", ruleHandler.DeleteRule)
		r.Get("/{ruleId}/stats", statsHandler.GetRuleStats)
	})
	r.Route("/analytics", func(r chi.Router) {
		r.Use(authMiddleware, adminOnly)
		r.Get("/redemptions", statsHandler.GetRedemptions)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", fmt.Sprintf("Pricing service listening on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("SERVER", fmt.Sprintf("Server failed: %v", err))
		}
	}()

	// ---------------- SHUTDOWN ----------------
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("SERVER", "Shutting down...")
	stopConsumer()
	if consumer != nil {
		consumer.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("SERVER", fmt.Sprintf("Graceful shutdown failed: %v", err))
	}

	rdb.Close()
	bunDB.Close()
	appLogger.Info("SERVER", "Shutdown complete")
}
