package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"strata-backend/internal/action"
	"strata-backend/internal/apperr"
	"strata-backend/internal/auth"
	"strata-backend/internal/catalog"
	"strata-backend/internal/config"
	"strata-backend/internal/event"
	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
	"strata-backend/internal/record"
	"strata-backend/internal/storage"
	"strata-backend/internal/store"
	"strata-backend/internal/template"
	"strata-backend/internal/trail"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap catalog tables and the first admin user
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap catalog tables: %v", err)
	}
	log.Println("Catalog tables ready")

	// 4. Tenant catalog cache
	cat := metadata.NewCatalog(db.Pool)

	// 5. File storage for generated artifacts
	files := storage.NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.BaseURL)

	// 6. Record store with its formula engine
	records := record.New(db.Pool, cat, formula.WithGeocodeEndpoint(cfg.Geocode.Endpoint))

	// 7. Event dispatcher feeding trails and webhooks
	dispatcher := event.NewDispatcher(cat, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
	defer dispatcher.Close()
	records.SetEmitter(dispatcher)

	// 8. Action executor and trail runtime
	executor := action.NewExecutor(records, files, cfg.Capabilities.AIEndpoint)
	runtime := trail.NewRuntime(executor, records.Engine())
	trails := trail.NewService(runtime, cat)
	dispatcher.SetTrailInvoker(trails)

	// 9. Catalog and template services
	catalogService := catalog.NewService(db, cat)
	templates := template.NewService(db, cat, catalogService)

	// 10. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 11. Health check and generated files
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Static("/files", files.Root())

	// 12. Auth routes (no auth required)
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	// 13. Protected routes
	authMW := auth.Middleware(cfg.JWTSecret)

	catalog.RegisterRoutes(app, catalog.NewHandler(catalogService), authMW)
	record.RegisterRoutes(app, record.NewHandler(records), authMW)
	action.RegisterRoutes(app, action.NewHandler(executor, cat), authMW)
	trail.RegisterRoutes(app, trail.NewHandler(trails), authMW)
	template.RegisterRoutes(app, template.NewHandler(templates), authMW)

	// 14. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
	}

	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(apperr.ErrorResponse{
			Error: &apperr.AppError{Code: "NOT_FOUND", Message: "Not found"},
		})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(apperr.ErrorResponse{
		Error: &apperr.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
