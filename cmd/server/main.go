package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"configtree/internal/admin"
	"configtree/internal/auth"
	"configtree/internal/config"
	"configtree/internal/engine"
	"configtree/internal/instrument"
	"configtree/internal/logger"
	"configtree/internal/metadata"
	"configtree/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "configtree: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	log.Info("config loaded", "port", cfg.Server.Port, "driver", cfg.Database.Driver, "database", cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// 3. Bootstrap catalog and tree tables
	if err := db.Bootstrap(ctx); err != nil {
		return err
	}
	log.Info("schema ready", "dialect", db.Dialect.Name())

	catalog := metadata.NewCatalog(db.Dialect)

	// 4. Seed enum families
	if cfg.Seed.File != "" {
		if err := seed(ctx, db, catalog, cfg.Seed.File, log); err != nil {
			return err
		}
	}

	// 5. Metrics
	var inst instrument.Instrumenter = &instrument.NoopInstrumenter{}
	var metrics *instrument.Metrics
	if cfg.Metrics.Enabled {
		metrics = instrument.NewMetrics()
		inst = metrics
	}

	// 6. Engines
	tree := engine.NewTreeStore(db.Dialect)
	importer := engine.NewImportEngine(db, catalog, tree, log, inst)
	exporter := engine.NewExportEngine(db, catalog, tree, log, inst)

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := db.DB.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if metrics != nil {
		app.Get(cfg.Metrics.Path, metrics.Handler())
	}

	// 8. Auth for mutating routes
	var guard fiber.Handler
	if cfg.AuthEnabled() {
		guard = auth.AuthMiddleware(cfg.Auth.JWTSecret)
		log.Info("bearer auth enabled for mutating routes")
	}

	// 9. Routes: import/export before the /api/config/:id CRUD routes
	engine.RegisterConfigRoutes(app, engine.NewHandler(importer, exporter, cfg.Server.PrettyExport), guard)
	admin.RegisterAdminRoutes(app, admin.NewHandler(db, catalog, tree, log), guard)

	// 10. Serve until interrupted
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting server", "addr", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

func seed(ctx context.Context, db *store.Store, catalog *metadata.Catalog, path string, log *logger.Logger) error {
	f, err := metadata.LoadSeedFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("seed file not found, skipping", "file", path)
			return nil
		}
		return err
	}
	var res metadata.SeedResult
	err = db.InTx(ctx, func(tx *sql.Tx) error {
		res, err = metadata.Seed(ctx, tx, catalog.Types, catalog.Enums, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("seed enum families: %w", err)
	}
	log.Info("enum families seeded", "file", path, "families", res.Families, "literals_added", res.Literals)
	return nil
}

func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr := engine.ToAppError(err); appErr != nil {
			return engine.RespondError(c, appErr)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return engine.RespondError(c, engine.NewAppError("HTTP_ERROR", fiberErr.Code, fiberErr.Message))
		}

		log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(engine.ErrorResponse{
			Error: &engine.AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}
