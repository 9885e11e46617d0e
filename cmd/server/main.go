package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"cabinet-admin/internal/admin"
	"cabinet-admin/internal/auth"
	"cabinet-admin/internal/config"
	"cabinet-admin/internal/connection"
	"cabinet-admin/internal/engine"
	"cabinet-admin/internal/instrument"
	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/metrics"
	"cabinet-admin/internal/ratelimit"
	"cabinet-admin/internal/store"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to cabinet.yaml")
	pflag.Parse()

	ctx := context.Background()

	// 1. Load config
	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.SetupLogging(cfg.Log)
	log.Infof("Config loaded (port: %d, db: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Open the repository
	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer repo.Close()

	// 3. Bootstrap system tables and the first admin
	seed := store.Seed{Email: cfg.Auth.BootstrapEmail, Password: cfg.Auth.BootstrapPassword}
	if err := repo.Bootstrap(ctx, seed); err != nil {
		log.Fatalf("Failed to bootstrap store: %v", err)
	}
	log.Info("System tables ready")

	// 4. Permission registry
	reg := metadata.NewRegistry()
	reg.Load(metadata.DefaultCatalog())
	log.Infof("Permission registry loaded: %d sections", len(reg.Sections()))

	// 5. Access engine
	resolver := engine.NewResolver(repo, cfg.Cache.Size, cfg.Cache.TTL)
	exprs := engine.NewExprLangEvaluator()
	counter, stopCounter := newCounter(cfg)
	defer stopCounter()
	evaluator := engine.NewPolicyEvaluator(repo, counter, exprs, engine.PolicyEvaluatorConfig{
		Location:   cfg.Policy.Location(),
		RateWindow: cfg.Policy.RateWindow,
	})

	// 6. Audit trail
	var recorder instrument.Recorder = instrument.NoopRecorder{}
	if cfg.Audit.Enabled {
		buf := instrument.NewAuditBuffer(repo, cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
		defer buf.Stop()
		recorder = buf
	}
	janitor := instrument.NewJanitor(repo, cfg.Audit.RetentionDays, time.Hour)
	janitor.Start()
	defer janitor.Stop()

	// 7. App config for the connection page
	apps, err := connection.NewSource(cfg.Connection.AppConfigPath)
	if err != nil {
		log.Fatalf("Failed to load app config: %v", err)
	}

	// 8. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	var m *metrics.Metrics
	if cfg.Server.EnableMetrics {
		m = metrics.New()
		app.Use(m.Middleware())
		app.Get(cfg.Server.MetricsPath, m.Handler())
	}

	// 9. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authMW := auth.AuthMiddleware(cfg.Auth.JWTSecret, resolver)

	// 10. Auth routes
	authHandler := auth.NewAuthHandler(repo, repo, resolver, cfg.Auth)
	auth.RegisterAuthRoutes(app, authHandler, authMW)

	// 11. Admin routes
	adminHandler := admin.NewHandler(admin.Deps{
		Roles:     repo,
		Policies:  repo,
		Registry:  reg,
		Resolver:  resolver,
		Evaluator: evaluator,
		Exprs:     exprs,
		Audit:     recorder,
		Metrics:   m,
	})
	admin.RegisterAdminRoutes(app, adminHandler, authMW)
	app.Get("/cabinet/admin/audit", authMW, auth.RequirePermission("audit", "read"), instrument.NewAuditHandler(repo).List)

	// 12. Connection page
	connHandler := connection.NewHandler(apps, cfg.Connection, recorder)
	connection.RegisterConnectionRoutes(app, connHandler, authMW)

	// 13. Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Infof("Starting server on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("Shutdown: %v", err)
	}
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (store.Repository, error) {
	switch {
	case cfg.IsMemory():
		log.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	case cfg.IsSQLite():
		db, err := store.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		log.Infof("SQLite database opened (%s)", cfg.Path)
		return db, nil
	}
	db, err := store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("Database connected")
	return db, nil
}

// newCounter picks the rate-limit backend. The returned func releases it.
func newCounter(cfg *config.Config) (ratelimit.Counter, func()) {
	if cfg.Redis.Enabled {
		client := ratelimit.NewRedisClient(cfg.Redis)
		log.Infof("Rate limits stored in redis %v", cfg.Redis.Addrs)
		return ratelimit.NewRedisCounter(client, cfg.Redis.Prefix), func() { _ = client.Close() }
	}

	mem := ratelimit.NewMemoryCounter()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mem.Sweep()
			case <-done:
				return
			}
		}
	}()
	return mem, func() { close(done) }
}
