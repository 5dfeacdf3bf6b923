package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"biciadmin/internal/config"
	"biciadmin/internal/http/handlers"
	applog "biciadmin/internal/log"
	"biciadmin/internal/repos"
	"biciadmin/internal/storage"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			mw := io.MultiWriter(os.Stdout, f)
			log.SetOutput(mw)
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	uploads, err := storage.New(cfg.UploadsDir)
	if err != nil {
		log.Fatal(err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Error(c, "server.error", err, nil)
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": "Something went wrong. Please try again."})
		},
	})
	// Large enough for a 5-image multipart upload
	app.Server().MaxRequestBodySize = 60 << 20

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/uploads/")
		},
	}))

	// ---------- Static assets ----------
	log.Printf("[static] /admin -> ./web/admin")
	log.Printf("[static] /uploads -> %s", uploads.Dir)

	app.Static("/admin", "./web/admin")
	app.Get("/uploads/*", func(c *fiber.Ctx) error {
		path := c.Params("*")
		rawLower := strings.ToLower(path)
		// Block encoded traversal attempts as well as raw .. or null bytes
		if strings.Contains(rawLower, "..") || strings.Contains(rawLower, "%2e") || strings.Contains(rawLower, "\x00") {
			applog.Security(c, "uploads.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		clean := filepath.Clean(path)
		if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
			applog.Security(c, "uploads.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		full := filepath.Join(uploads.Dir, clean)
		return c.SendFile(full, true)
	})

	// ---------- App handlers ----------
	deps := handlers.NewDeps(db, cfg, uploads)

	api := app.Group("/api")

	// Catalog
	api.Get("/products", deps.ProductHandler.List)
	api.Get("/products/:id", deps.ProductHandler.Get)
	api.Post("/products", deps.ProductHandler.Create)
	api.Put("/products/:id", deps.ProductHandler.Update)
	api.Delete("/products/:id", deps.ProductHandler.Delete)

	api.Get("/categories", deps.CategoryHandler.List)
	api.Get("/categories/:id", deps.CategoryHandler.Get)
	api.Post("/categories", deps.CategoryHandler.Create)
	api.Put("/categories/:id", deps.CategoryHandler.Update)
	api.Delete("/categories/:id", deps.CategoryHandler.Delete)

	// Image uploads (throttled separately from the general API)
	api.Post("/upload", limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.upload.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}), deps.UploadHandler.Upload)
	api.Delete("/images/:filename", deps.UploadHandler.Delete)

	// MercadoLibre OAuth
	ml := api.Group("/ml")
	ml.Get("/auth/url", deps.MLAuthHandler.AuthURL)
	ml.Get("/auth/callback", deps.MLAuthHandler.Callback)
	ml.Get("/auth/status", deps.MLAuthHandler.Status)
	ml.Post("/auth/refresh", deps.MLAuthHandler.Refresh)
	ml.Post("/auth/logout", deps.MLAuthHandler.Logout)
	ml.Get("/user", deps.MLAuthHandler.User)
	ml.Get("/marketplace", deps.MLAuthHandler.Marketplace)

	// Category intelligence. /search is registered before /:categoryId so the
	// literal segment wins.
	ml.Post("/categories/predict", deps.MLCategoryHandler.Predict)
	ml.Get("/categories", deps.MLCategoryHandler.Roots)
	ml.Get("/categories/search", deps.MLCategoryHandler.Search)
	ml.Get("/categories/:categoryId", deps.MLCategoryHandler.Details)
	ml.Get("/categories/:categoryId/attributes", deps.MLCategoryHandler.Attributes)
	ml.Get("/categories/:categoryId/hierarchy", deps.MLCategoryHandler.Hierarchy)
	ml.Get("/categories/:categoryId/validate", deps.MLCategoryHandler.Validate)

	// Listing configuration and migration
	ml.Get("/products/:productId/config", deps.ProductHandler.MLConfigGet)
	ml.Post("/products/:productId/config", deps.ProductHandler.MLConfigSet)
	ml.Post("/products/:productId/migrate", deps.MigrateHandler.Migrate)
	ml.Post("/products/batch-migrate", deps.MigrateHandler.BatchMigrate)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	})

	log.Fatal(app.Listen(":" + cfg.Port))
}
