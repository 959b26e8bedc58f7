/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lodge booking engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment (config.Load), then parse flags
  2. Build the zap logger
  3. Open the SQLite store
  4. Pick the counter store: Redis when REDIS_ADDR is set and reachable,
     else the SQLite period_counters table
  5. Load payment rules (PAYMENT_POLICY_FILE or defaults)
  6. Wire booking services, API handler and router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  ./server -db="./data/lodge.db"
  REDIS_ADDR=localhost:6379 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/lodge-engine/api"
	"github.com/warp/lodge-engine/booking"
	"github.com/warp/lodge-engine/config"
	"github.com/warp/lodge-engine/factory"
	"github.com/warp/lodge-engine/logging"
	redisstore "github.com/warp/lodge-engine/store/redis"
	"github.com/warp/lodge-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log, err := logging.New(cfg.IsDevelopment(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.String("path", *dbPath), zap.Error(err))
	}
	defer store.Close()

	checks := map[string]api.Pinger{"database": store}

	// Counters: shared Redis when configured, else the local table
	var counters booking.CounterStore = store
	if cfg.Redis.Enabled() {
		client, err := redisstore.NewClient(context.Background(), redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("redis unavailable, numbering uses the local database", zap.Error(err))
		} else {
			defer client.Close()
			rc := redisstore.NewCounterStore(client, "")
			counters = rc
			checks["redis"] = rc
			log.Info("numbering uses redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	rules, err := factory.NewPolicyFactory().LoadFile(cfg.PaymentPolicyFile)
	if err != nil {
		log.Fatal("failed to load payment policy", zap.String("file", cfg.PaymentPolicyFile), zap.Error(err))
	}

	clock := booking.SystemClock()
	numbers := booking.NewNumberer(counters, clock, log.Named("numbering"))
	numbers.MaxAttempts = cfg.NumberingMaxAttempts

	reconciler := booking.NewReconciler(store, log.Named("reconcile"))
	reconciler.Tolerance = cfg.ReconcileTolerance

	handler := api.NewHandler(api.Services{
		Reservations: booking.NewReservationDesk(store, numbers, store, clock, log.Named("reservations")),
		Rooms:        booking.NewRoomStatusMachine(store, store, clock, log.Named("rooms")),
		Ledger:       booking.NewPaymentLedger(store, numbers, store, clock, log.Named("payments"), rules),
		Reconciler:   reconciler,
		Clock:        clock,
	}, log.Named("api"), checks)

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
