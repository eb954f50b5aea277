/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll cycle engine: admin API, trigger bus,
  generator workers and the catch-up scheduler. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env, .env) and apply flag overrides
  2. Initialize SQL store (sqlite3 or postgres)
  3. Pick the per-config lock (Redis when REDIS_ADDR is set)
  4. Build the generator and the trigger bus that runs it
  5. Wire Pub/Sub publisher/subscriber when configured
  6. Start the catch-up scheduler and the HTTP server

COMMAND-LINE FLAGS:
  --port     HTTP server port (overrides PORT)
  --db       Database DSN or SQLite path (overrides DATABASE_URL)
             Use ":memory:" for in-memory SQLite
  --driver   sqlite3 or postgres (overrides DB_DRIVER)

TRIGGER TOPOLOGY:
  Without Pub/Sub:  API/scheduler -> Bus -> Generator
  With Pub/Sub:     API/scheduler -> topic -> subscription -> Bus -> Generator

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler and the Pub/Sub receiver
  2. Stop accepting new connections, wait for requests (30s timeout)
  3. Drain the trigger bus
  4. Close database connection

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - payroll/generator.go: Generation loop
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/lock"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlstore"
	"github.com/warp/payroll-engine/trigger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	port := pflag.Int("port", cfg.Port, "HTTP server port")
	dsn := pflag.String("db", cfg.DatabaseURL, "Database DSN or SQLite path")
	driver := pflag.String("driver", cfg.DBDriver, "Database driver (sqlite3 or postgres)")
	pflag.Parse()
	cfg.Port, cfg.DatabaseURL, cfg.DBDriver = *port, *dsn, *driver
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)

	// Initialize store
	store, err := sqlstore.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Generator
	gen := payroll.NewGenerator(store, log.WithField("component", "generator"))
	gen.MaxIterations = cfg.MaxIterations
	gen.Timeout = cfg.RunTimeout

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		gen.Locker = lock.NewRedisLocker(rdb, cfg.RunTimeout+15*time.Second, log.WithField("component", "lock"))
		log.WithField("addr", cfg.RedisAddr).Info("Using Redis per-config lock")
	}

	// Trigger bus
	bus := trigger.NewBus(trigger.GeneratorHandler(gen), cfg.TriggerWorkers, trigger.DefaultBufferSize, log.WithField("component", "trigger"))
	bus.Start()

	var emitter trigger.Emitter = bus
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var receivers sync.WaitGroup

	if cfg.UsePubSub() {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Pub/Sub client")
		}
		defer client.Close()

		publisher := trigger.NewPubSubPublisher(client, cfg.PubSubTopic, log.WithField("component", "pubsub"))
		defer publisher.Stop()
		emitter = publisher

		if cfg.PubSubSubscription != "" {
			source := trigger.NewPubSubSource(client, cfg.PubSubSubscription, bus, log.WithField("component", "pubsub"))
			receivers.Add(1)
			go func() {
				defer receivers.Done()
				if err := source.Run(ctx); err != nil {
					log.WithError(err).Error("Pub/Sub trigger source stopped")
				}
			}()
		}
		log.WithField("topic", cfg.PubSubTopic).Info("Triggers routed through Pub/Sub")
	}

	// Scheduler
	scheduler, err := api.NewCatchUpScheduler(store, emitter, cfg.CronSpecCatchUp, log.WithField("component", "scheduler"))
	if err != nil {
		log.WithError(err).Fatal("Failed to create catch-up scheduler")
	}
	scheduler.Start()

	// Initialize handler and router
	handler := api.NewHandler(store, emitter, log.WithField("component", "api"))
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.DBDriver,
			"env":    cfg.Environment,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	scheduler.Stop()
	cancel()
	receivers.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	bus.Stop()
	log.Info("Server stopped")
}
