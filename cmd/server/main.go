/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan servicing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store and metrics
  3. Load the waterfall configuration
  4. Pick the impact cache (Redis when configured, in-memory otherwise)
  5. Create API handler, router, and reversion scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port               HTTP server port (default: 8080)
  -db                 SQLite database path (default: loans.db)
                      Use ":memory:" for in-memory database
  -waterfall          Waterfall YAML path (default: WATERFALL_CONFIG
                      env, falling back to the standard sequence)
  -redis              Redis address for the impact cache (default:
                      unset, in-memory cache)
  -cache-ttl          Impact cache TTL (default: 5m)
  -reversion-interval Reversion scheduler interval (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reversion scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/loans.db"

  # Run with a custom waterfall sequence
  ./server -waterfall="./config/waterfall.yaml"

  # Run with Redis-backed impact caching
  ./server -redis="localhost:6379" -cache-ttl=10m

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian/loan-engine/api"
	"github.com/meridian/loan-engine/cache"
	"github.com/meridian/loan-engine/metrics"
	"github.com/meridian/loan-engine/store/sqlite"
	"github.com/meridian/loan-engine/waterfall"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "loans.db", "SQLite database path")
	waterfallPath := flag.String("waterfall", "", "waterfall YAML path")
	redisAddr := flag.String("redis", "", "Redis address for the impact cache")
	cacheTTL := flag.Duration("cache-ttl", 5*time.Minute, "impact cache TTL")
	reversionInterval := flag.Duration("reversion-interval", time.Hour, "reversion scheduler interval")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metrics.Init(store.DB(), log.Default())

	// Load the waterfall sequence
	cfg, err := waterfall.LoadConfig(*waterfallPath)
	if err != nil {
		log.Fatalf("Failed to load waterfall config: %v", err)
	}
	allocator, err := waterfall.NewAllocator(cfg.Sequence())
	if err != nil {
		log.Fatalf("Invalid waterfall config: %v", err)
	}

	// Pick the impact cache
	var impactCache cache.Cache
	if *redisAddr != "" {
		redis := cache.NewRedis(*redisAddr, *cacheTTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := redis.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Printf("Warning: Redis unavailable (%v), using in-memory cache", err)
			impactCache = cache.NewMemory()
		} else {
			defer redis.Close()
			impactCache = redis
			log.Printf("Impact cache: redis at %s (ttl %v)", *redisAddr, *cacheTTL)
		}
	} else {
		impactCache = cache.NewMemory()
	}

	// Initialize handler and scheduler
	handler := api.NewHandler(store, allocator, impactCache)

	scheduler := api.NewReversionScheduler(store)
	scheduler.CheckInterval = *reversionInterval
	scheduler.Start()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	scheduler.Stop()

	log.Println("Server stopped")
}
