package main

import (
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/naftal-tire/allocation-service/internal/cache"
	"github.com/naftal-tire/allocation-service/internal/handlers"
	"github.com/naftal-tire/allocation-service/internal/messaging"
	"github.com/naftal-tire/allocation-service/internal/repository"
	"github.com/naftal-tire/allocation-service/internal/service"
)

const serviceName = "allocation-service"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Info().Msg("🚀 Starting Allocation Service...")

	db, err := initDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	redisClient := initRedis()
	defer redisClient.Close()

	rabbitConfig := messaging.NewRabbitMQConfig()
	rabbitClient := messaging.NewRabbitMQClient(rabbitConfig)
	if err := rabbitClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection failed")
	}
	defer rabbitClient.Close()

	publisher := messaging.NewPublisher(rabbitClient, serviceName)

	cacheTTL, _ := time.ParseDuration(getEnvOrDefault("STOCK_CACHE_TTL", "15m"))
	mirror := cache.NewStockMirror(redisClient, cacheTTL)

	store := repository.NewStore(db)
	requestRepo := repository.NewRequestRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	tireRepo := repository.NewTireRepository(db)
	userRepo := repository.NewUserRepository(db)

	requestService := service.NewRequestService(
		store, tireRepo, userRepo, mirror, publisher, service.DefaultQuotaPolicy(),
	)

	verifyBaseURL := getEnvOrDefault("VERIFY_BASE_URL", "http://localhost:8004")
	requestHandler := handlers.NewRequestHandler(requestService, requestRepo, verifyBaseURL)
	inventoryHandler := handlers.NewInventoryHandler(inventoryRepo, tireRepo, mirror)

	app := setupFiberApp()
	setupRoutes(app, requestHandler, inventoryHandler)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down Allocation Service...")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	port := getEnvOrDefault("PORT", "8004")
	log.Info().Msgf("🌍 Allocation Service running on: http://localhost:%s", port)

	if err := app.Listen(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server startup failed")
	}
}

func initDatabase() (*sql.DB, error) {
	dbHost := getEnvOrDefault("DB_HOST", "localhost")
	dbPort := getEnvOrDefault("DB_PORT", "5432")
	dbUser := getEnvOrDefault("DB_USER", "postgres")
	dbPassword := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "allocation_db")

	connectionString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName,
	)

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	log.Info().Str("database", dbName).Msg("✅ Database connection successful")
	return db, nil
}

func initRedis() *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Password: getEnvOrDefault("REDIS_PASSWORD", ""),
	})
	return client
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Allocation Service v1.0",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	return app
}

func setupRoutes(app *fiber.App, requestHandler *handlers.RequestHandler, inventoryHandler *handlers.InventoryHandler) {
	api := app.Group("/api/v1")

	api.Get("/health", inventoryHandler.HealthCheck)

	api.Post("/requests", requestHandler.CreateRequest)
	api.Get("/requests", requestHandler.ListRequests)
	api.Get("/requests/verify/:token", requestHandler.VerifyToken)
	api.Get("/quota", requestHandler.GetQuota)
	api.Get("/requests/:id", requestHandler.GetRequest)
	api.Patch("/requests/:id/status", requestHandler.UpdateStatus)

	api.Get("/stations", inventoryHandler.ListStations)
	api.Get("/stations/:id/stock", inventoryHandler.ListStationStock)
	api.Get("/stations/:id/stock/:tireId", inventoryHandler.GetStock)
	api.Get("/tires", inventoryHandler.ListTires)

	app.Use("*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	log.Error().Err(err).Msg("unhandled http error")

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
