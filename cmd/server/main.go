/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the settlement engine server: SQLite store, timer
  engine, settlement assembler, HTTP router, and the free-time promotion
  scheduler. Handles configuration and graceful shutdown.

CONFIGURATION:
  Flags, with environment variable defaults (a .env file is loaded when
  present):
    -port      / PORT              HTTP server port (default 8080)
    -db        / DB_PATH           SQLite path (default settlements.db,
                                   ":memory:" for in-memory)
    -sweep     / SWEEP_INTERVAL    Promotion sweep interval (default 1m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, drain active requests
  (30s timeout), stop the scheduler, close the database.
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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/haulline/settlement-engine/api"
	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/payroll"
	"github.com/haulline/settlement-engine/store/sqlite"
	"github.com/haulline/settlement-engine/timer"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// .env is optional; flags and real env vars win.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DB_PATH", "settlements.db"), "SQLite database path")
	sweepInterval := flag.Duration("sweep", envDuration("SWEEP_INTERVAL", time.Minute), "promotion sweep interval")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	clock := finance.SystemClock{}
	engine := timer.NewEngine(store, clock)
	assembler := payroll.NewAssembler(store, clock)

	handler := api.NewHandler(engine, store, assembler, store, log)
	router := api.NewRouter(handler)

	scheduler := api.NewPromotionScheduler(engine, log)
	scheduler.CheckInterval = *sweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}
	log.Info("server stopped")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
