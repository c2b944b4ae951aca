package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/localnerve/librarydb/internal/config"
	"github.com/localnerve/librarydb/internal/database"
	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/handlers"
	"github.com/localnerve/librarydb/internal/middleware"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/storage"
	applog "github.com/localnerve/librarydb/pkg/logger"
	"go.uber.org/zap"

	_ "github.com/localnerve/librarydb/docs/api" // Swagger docs
)

// @title LibraryDB API
// @version 1.0.0
// @description Library catalog, search and lending service
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/librarydb
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name library_session

func main() {
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	flag.Parse()

	if envFilename != "" {
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables from %s: %v", envFilename, err)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := applog.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer func() { _ = zlog.Sync() }()

	// Connect to database
	db, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		zlog.Fatal("Failed to run migrations", zap.Error(err))
	}

	files, err := storage.NewDiskStore(cfg.UploadDir)
	if err != nil {
		zlog.Fatal("Failed to open content store", zap.String("dir", cfg.UploadDir), zap.Error(err))
	}

	// Domain events go to RabbitMQ when configured
	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		amqp, err := events.NewAMQPPublisher(cfg.RabbitMQURL, zlog)
		if err != nil {
			zlog.Fatal("Failed to connect to event broker", zap.Error(err))
		}
		publisher = amqp
	}
	defer publisher.Close()

	// Authorizer sessions are optional
	var authz *services.Authorizer
	if cfg.AuthorizerEnabled() {
		redirect := fmt.Sprintf("http://localhost:%s", cfg.Port)
		authz, err = services.NewAuthorizer(cfg, redirect, zlog)
		if err != nil {
			zlog.Fatal("Failed to initialize authorizer", zap.Error(err))
		}
	}

	users := services.NewUsers(db, zlog)
	auth := &middleware.Auth{
		Sessions: middleware.NewSessionStore(cfg.SessionExpiration),
		Users:    users,
		Authz:    authz,
		Log:      zlog,
	}
	routes := &handlers.Routes{
		Auth: &handlers.AuthHandler{Users: users, Auth: auth, Log: zlog},
		Catalog: &handlers.CatalogHandler{
			Catalog: services.NewCatalog(db, files, publisher, zlog),
			Engine:  services.NewSearchEngine(db, zlog),
		},
		Lending: &handlers.LendingHandler{Lending: services.NewLending(db, files, publisher, zlog)},
		Health:  &handlers.HealthHandler{Config: cfg, DB: db, Events: publisher, Log: zlog},
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    64 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New(cfg.ServiceName)
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	routes.Register(app.Group("/api"), auth.Identify())

	// 404 handler
	app.Use(handlers.NotFound)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		zlog.Info("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	// Start server
	zlog.Info("Starting server",
		zap.String("port", cfg.Port),
		zap.String("db_type", cfg.DBType),
		zap.Bool("authorizer", authz != nil),
		zap.Bool("events", cfg.RabbitMQURL != ""),
	)
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("Failed to start server", zap.Error(err))
	}

	zlog.Info("Server stopped")
}
