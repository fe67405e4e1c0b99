package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"thrivecoach/internal/config"
	"thrivecoach/internal/crypto"
	"thrivecoach/internal/database"
	"thrivecoach/internal/handlers"
	"thrivecoach/internal/jobs"
	"thrivecoach/internal/logging"
	"thrivecoach/internal/middleware"
	"thrivecoach/internal/services"
)

func main() {
	logging.Init()

	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	cfg := config.Load()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database schema: %v", err)
	}

	var encryption *crypto.EncryptionService
	if cfg.EncryptionMasterKey != "" {
		encryption, err = crypto.NewEncryptionService(cfg.EncryptionMasterKey)
		if err != nil {
			log.Fatalf("❌ Failed to initialize encryption: %v", err)
		}
		log.Println("🔐 Memory summary encryption enabled")
	} else {
		log.Println("⚠️ ENCRYPTION_MASTER_KEY not set, memory summaries stored in plaintext")
	}

	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable: %v (summarization locks disabled)", err)
			redisService = nil
		}
	}
	if redisService != nil {
		defer redisService.Close()
	}

	// Services
	profileService := services.NewProfileService(db, encryption)
	historyService := services.NewChatHistoryService(db)
	sessionTracker := services.NewSessionTracker(profileService, cfg.SessionTimeout, cfg.MinConversationSpan)
	classifier := services.NewClassifier(cfg.KeywordFile)
	personaService := services.NewPersonaService(cfg.PersonaFile)
	assembler := services.NewContextAssembler(personaService, classifier)
	responseCache := services.NewResponseCache(cfg.CacheTTL, cfg.CacheSweepThreshold)
	completionService := services.NewCompletionService(cfg)
	chunkService := services.NewChunkService(db)
	pruner := services.NewHistoryPruner(profileService, historyService, cfg)
	memoryService := services.NewMemoryService(
		profileService, historyService, completionService, classifier, pruner, redisService, cfg)
	chatService := services.NewChatService(
		profileService, historyService, sessionTracker, assembler,
		responseCache, completionService, chunkService, memoryService, cfg)

	services.InitMetrics(responseCache)

	// Background jobs
	scheduler, err := jobs.NewScheduler(cfg, profileService, sessionTracker, memoryService, pruner)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName:               "ThriveCoach Engine",
		DisableStartupMessage: false,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	prometheus := fiberprometheus.New("thrivecoach")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	chatHandler := handlers.NewChatHandler(chatService)
	adminHandler := handlers.NewAdminHandler(pruner)
	healthHandler := handlers.NewHealthHandler(db, redisService)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/chat", chatHandler.HandleTurn)
	api.Post("/chat/continue", chatHandler.HandleContinue)

	admin := api.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
	admin.Post("/cleanup", adminHandler.HandleCleanup)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Fiber shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 ThriveCoach engine listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}
