package main

import (
	"autosave-sync-engine/auth"
	"autosave-sync-engine/internal/autosave"
	"autosave-sync-engine/internal/config"
	"autosave-sync-engine/internal/db"
	"autosave-sync-engine/internal/document"
	"autosave-sync-engine/internal/middleware"
	"autosave-sync-engine/internal/perf"
	"autosave-sync-engine/internal/sync"
	"autosave-sync-engine/internal/worker"
	"autosave-sync-engine/redis"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.LoadConfig()
	auth.SetSecret(config.AppConfig.JWTSecret)

	// Pick the document store backend
	var docRepo document.Repository
	var conflictRepo sync.ConflictRepository
	var recordRepo autosave.RecordRepository

	if config.AppConfig.StorageBackend == "memory" {
		log.Println("Using in-memory storage backend")
		docRepo = document.NewMemoryRepository()
		conflictRepo = sync.NewMemoryConflictRepository()
		recordRepo = autosave.NewMemoryRecordRepository()
	} else {
		// Connect to database
		db.ConnectDb()
		defer db.CloseDb()

		// Migrate database schema
		db.Migrate()

		docRepo = document.NewRepository(db.AppDb)
		conflictRepo = sync.NewConflictRepository(db.AppDb)
		recordRepo = autosave.NewRecordRepository(db.AppDb)
	}

	// Initialize Redis (degrades to a no-op cache when unavailable)
	cache := redis.NewCache(config.AppConfig.RedisAddress)

	// Performance monitoring and retry policy
	monitor := perf.NewMonitor(perf.Thresholds{
		SaveTime:    config.AppConfig.SaveTimeThreshold,
		SyncTime:    config.AppConfig.SyncTimeThreshold,
		SuccessRate: config.AppConfig.SuccessRateThreshold,
	})
	backoff := perf.NewBackoff(
		config.AppConfig.BackoffBase,
		config.AppConfig.BackoffMax,
		config.AppConfig.MaxRetries,
	)

	// Worker pool for background record appends
	pool := worker.NewWorkerPool(4, 256)
	defer pool.Shutdown()

	// Initialize service
	syncService := sync.NewService(docRepo, conflictRepo, cache, monitor)
	tracker := autosave.NewTracker(docRepo, recordRepo, conflictRepo, pool, monitor, autosave.Intervals{
		Base: config.AppConfig.AutosaveBaseInterval,
		Min:  config.AppConfig.AutosaveMinInterval,
		Max:  config.AppConfig.AutosaveMaxInterval,
	})

	// Initialize handler
	syncHandler := sync.NewHandler(syncService)
	autosaveHandler := autosave.NewHandler(tracker)
	perfHandler := perf.NewHandler(monitor, backoff)

	authMiddleware := &middleware.Auth{InternalSecret: config.AppConfig.InternalSecret}

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Response-Time", "X-Save-Count", "X-Version", "X-Compression-Ratio", "X-Conflict-Status"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// Sync routes
	router.POST("/api/sync", authMiddleware.AuthMiddleWare(), syncHandler.Sync)
	router.GET("/api/sync/conflicts", authMiddleware.AuthMiddleWare(), syncHandler.ConflictCheck)
	router.GET("/api/sync/conflicts/history", authMiddleware.AuthMiddleWare(), syncHandler.ConflictHistory)
	router.POST("/api/sync/resolve", authMiddleware.AuthMiddleWare(), syncHandler.ResolveConflict)
	router.GET("/api/sync/status", authMiddleware.AuthMiddleWare(), syncHandler.Status)

	// Autosave routes
	router.POST("/api/autosave/:guid", authMiddleware.AuthMiddleWare(), autosaveHandler.EnhancedAutosave)

	// internal use routes
	router.GET("/internal/perf/report", authMiddleware.InternalAuthMiddleware(), perfHandler.Report)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	<-ctx.Done()
	log.Println("Server shutdown complete")
}
