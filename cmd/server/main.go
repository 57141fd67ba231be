package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashdeck-backend/internal/config"
	"flashdeck-backend/internal/database"
	"flashdeck-backend/internal/handlers"
	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/repository"
	"flashdeck-backend/internal/router"
	"flashdeck-backend/internal/services"
	"flashdeck-backend/internal/websocket"
	"flashdeck-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting flashdeck backend", "env", cfg.Env)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL, cfg.WorkerCount)
	if err != nil {
		log.Fatal("redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	deckRepo := repository.NewDeckRepo(pool)
	cardRepo := repository.NewCardRepo(pool)
	sourceRepo := repository.NewSourceRepo(pool)
	studyRepo := repository.NewStudyRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, log.With("component", "gemini"))
	if err != nil {
		log.Fatal("gemini client initialization failed", "error", err)
	}
	defer geminiService.Close()

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	notifier := services.NewNotifier(redisClients.Queue, log.With("component", "notifier"))
	jobQueue := services.NewJobQueue(jobRepo, redisClients.Queue)

	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth, log.With("component", "auth"))
	deckService := services.NewDeckService(deckRepo, cardRepo)
	sourceService := services.NewSourceService(
		sourceRepo,
		geminiService,
		services.NewFileExtractService(),
		services.NewYouTubeService(log.With("component", "youtube")),
		services.NewWebsiteService(cfg.WebsiteFetchTimeout),
		jobQueue,
		cfg.StoragePath,
		log.With("component", "sources"),
	)
	generationService := services.NewGenerationService(geminiService, sourceRepo, deckRepo, cardRepo, jobQueue, notifier, log.With("component", "generation"))
	studyService := services.NewStudyService(studyRepo, cardRepo, log.With("component", "study"))
	choiceService := services.NewChoiceService(cardRepo, geminiService, services.NewRedisChoiceCache(redisClients.Queue), cfg.ChoicesCacheTTL, log.With("component", "choices"))

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	deckHandler := handlers.NewDeckHandler(deckService)
	flashcardHandler := handlers.NewFlashcardHandler(deckService, generationService)
	sourceHandler := handlers.NewSourceHandler(sourceService)
	studyHandler := handlers.NewStudyHandler(studyService, choiceService)
	chatHandler := handlers.NewChatHandler(geminiService)
	userHandler := handlers.NewUserHandler(userRepo)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workerPool := worker.NewPool(redisClients.Queue, jobRepo, notifier, cfg.WorkerCount, log.With("component", "worker"))
	workerPool.Register(models.JobTypeSourceProcessing, sourceService)
	workerPool.Register(models.JobTypeFlashcardGeneration, generationService)
	workerPool.Start(workerCtx)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.FrontendURL, log.With("component", "ws"))

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		database.NewHealth(pool, redisClients),
		jwtAuth,
		authHandler,
		deckHandler,
		flashcardHandler,
		sourceHandler,
		studyHandler,
		chatHandler,
		userHandler,
		jobHandler,
		wsHub,
		cfg.FrontendURL,
		log.With("component", "http"),
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Long enough for SSE generation streams.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
		stopWorkers()
	}()

	log.Info("flashdeck backend ready", "port", cfg.Port, "api", "/api/v1", "ws", "/api/v1/ws")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", "error", err)
	}
	workerPool.Wait()
	log.Info("workers stopped")
}
