package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calorily/backend/config"
	"github.com/calorily/backend/internal/api"
	"github.com/calorily/backend/internal/database"
	"github.com/calorily/backend/internal/realtime"
	"github.com/calorily/backend/internal/router"
	"github.com/calorily/backend/internal/server"
	"github.com/calorily/backend/internal/service"
	"github.com/calorily/backend/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient, err := database.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	s3Config, err := config.NewS3Config(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize S3: %v", err)
	}

	vision, err := service.NewVisionService(cfg.EngineTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize vision service: %v", err)
	}

	mealStore := store.NewMealStore(db)
	cache := store.NewAnalysisCache(redisClient)
	images := service.NewS3ImageStore(s3Config)
	hub := realtime.NewHub()

	dispatcher := service.NewDispatcher(mealStore, cache, vision, hub, service.DispatcherConfig{
		Workers:     cfg.AnalysisWorkers,
		QueueSize:   cfg.AnalysisQueueSize,
		MaxAttempts: cfg.AnalysisMaxAttempts,
		BackoffBase: cfg.AnalysisBackoffBase,
		BackoffCap:  cfg.AnalysisBackoffCap,
	})

	meals := service.NewMealService(mealStore, cache, images, dispatcher)
	syncService := service.NewSyncService(mealStore)
	auth := service.NewAuthService(cfg.JWTSecret, cfg.AppleBundleID, cfg.DevMode)

	engine := router.SetupRouter(
		api.NewAuthHandler(auth),
		api.NewMealHandler(meals, syncService),
		api.NewWSHandler(hub),
		auth,
	)

	srv := server.New(engine, dispatcher, cfg.ServerHost+":"+cfg.ServerPort)

	// Channel to listen for errors coming from the server
	errChan := make(chan error, 1)

	go func() {
		log.Println("Starting server...")
		errChan <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-quit:
		log.Printf("Received signal: %v", sig)
	}

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
