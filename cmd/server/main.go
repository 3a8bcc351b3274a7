package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"testcase-management-service/internal/config"
	"testcase-management-service/internal/handler"
	"testcase-management-service/internal/importer"
	"testcase-management-service/internal/logger"
	"testcase-management-service/internal/models"
	"testcase-management-service/internal/repository"
	"testcase-management-service/internal/rules"
	"testcase-management-service/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		zlog.Fatal("failed to initialize database", "error", err)
	}

	// Auto migrate models
	if err := db.AutoMigrate(
		&models.TestCase{},
		&models.Tag{},
		&models.Attachment{},
	); err != nil {
		zlog.Fatal("failed to migrate database", "error", err)
	}

	// Initialize repositories
	caseRepo := repository.NewTestCaseRepository(db)
	tagRepo := repository.NewTagRepository(db)
	attachRepo := repository.NewAttachmentRepository(db)

	// Rule store and import pipeline
	ruleStore := rules.NewStore(cfg.Import.RulesPath, zlog)
	caseImporter := importer.NewImporter(db, caseRepo, tagRepo, ruleStore, &cfg.Import, zlog)

	// Initialize service
	caseService := service.NewCaseService(db, caseRepo, tagRepo, attachRepo, ruleStore, cfg.Import.AttachmentDir, zlog)

	// Initialize handlers
	caseHandler := handler.NewCaseHandler(caseService, caseImporter)

	// Setup Gin router
	r := gin.Default()

	// Enable CORS
	r.Use(corsMiddleware())

	// Register routes
	caseHandler.RegisterRoutes(r)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "testcase-management-service",
		})
	})

	// Start server
	addr := cfg.Server.GetAddr()
	zlog.Info("starting testcase management service", "addr", addr)
	if err := r.Run(addr); err != nil {
		zlog.Fatal("failed to start server", "error", err)
	}
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Type {
	case "sqlite":
		// Ensure data directory exists
		dbPath := cfg.Database.DSN
		dbDir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
