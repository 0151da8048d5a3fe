package main

import (
	"fmt"
	"log"

	"race-prediction-api/config"
	"race-prediction-api/handlers"
	"race-prediction-api/middleware"
	"race-prediction-api/models"
	"race-prediction-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get sql db handle: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Run{}, &models.Certificate{}); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// Cache is optional: a dead Redis degrades caching and the live feed,
	// nothing else.
	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("Redis unavailable, continuing without cache: %v", err)
	}

	store, err := services.NewDiskStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}

	authService := services.NewAuthService(cfg.JWT)
	predictor := services.NewPredictorClient(cfg.Predictor)
	history := services.NewHistoryService(db)
	trainer := services.NewTrainer(db, predictor, cfg.Trainer)

	if cfg.Trainer.Enabled {
		if err := trainer.Start(cfg.Trainer.Schedule); err != nil {
			log.Fatalf("Failed to start trainer: %v", err)
		}
		defer trainer.Stop()
	}

	authHandler := handlers.NewAuthHandler(db, authService)
	runsHandler := handlers.NewRunsHandler(db, cache, store, predictor, history)
	statsHandler := handlers.NewStatsHandler(db, cache)
	fitnessHandler := handlers.NewFitnessHandler(db, cache, predictor, history, trainer, runsHandler)
	certsHandler := handlers.NewCertificatesHandler(db, store)
	profileHandler := handlers.NewProfileHandler(db, cache, store)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "UP",
			"message": "Race Prediction API is running",
		})
	})

	auth := router.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
	}

	api := router.Group("/api", middleware.RequireAuth(authService))
	{
		api.POST("/runs", runsHandler.Upload)
		api.GET("/runs", runsHandler.List)
		api.GET("/runs/:id", runsHandler.Get)
		api.DELETE("/runs/:id", runsHandler.Delete)

		api.GET("/stats", statsHandler.Get)

		api.GET("/fitness", fitnessHandler.Get)
		api.POST("/fitness/refresh", fitnessHandler.Refresh)
		api.POST("/fitness/train", fitnessHandler.Train)

		api.GET("/certificates", certsHandler.List)
		api.POST("/certificates", certsHandler.Add)
		api.GET("/certificates/:id/file", certsHandler.GetFile)
		api.DELETE("/certificates/:id", certsHandler.Delete)

		api.GET("/profile", profileHandler.Get)
		api.PUT("/profile", profileHandler.Update)
		api.POST("/profile/avatar", profileHandler.UploadAvatar)
		api.GET("/profile/avatar", profileHandler.GetAvatar)
		api.DELETE("/profile/avatar", profileHandler.DeleteAvatar)
		api.DELETE("/account", profileHandler.DeleteAccount)
	}

	router.GET("/ws/live", handlers.LiveWebSocket(cache, authService))

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
