package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpdesk-backend/internal/config"
	"helpdesk-backend/internal/database"
	"helpdesk-backend/internal/handler"
	"helpdesk-backend/internal/metrics"
	"helpdesk-backend/internal/middleware"
	"helpdesk-backend/internal/notify"
	"helpdesk-backend/internal/repository"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	// Database
	db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied successfully")

	// Event bus (optional; the core runs without a broker)
	var bus notify.Publisher
	if cfg.AMQPURL != "" {
		bus, err = notify.New(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Failed to connect to AMQP broker: %v", err)
		}
	} else {
		bus = notify.NewFallback()
	}
	defer bus.Close()

	// Repositories
	siteRepo := repository.NewSiteRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	deptRepo := repository.NewDepartmentRepository(db)
	agentRepo := repository.NewAgentRepository(db)
	faqRepo := repository.NewFAQRepository(db)

	// Services
	m := metrics.NewMetrics()
	hub := service.NewHub()
	resolver := service.NewSiteResolver(siteRepo)
	lifecycle := service.NewLifecycleService(convRepo, agentRepo, deptRepo, hub, bus)
	responder := service.NewAutoResponder(faqRepo, msgRepo, convRepo, hub, m, cfg.FAQMinScore)
	router := service.NewRouterService(lifecycle, convRepo, msgRepo, agentRepo, hub, responder, m)
	monitor := service.NewSLAMonitor(convRepo, hub, bus, m, cfg.SweepInterval)

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger())

	// Health + metrics
	healthH := handler.NewHealthHandler(db, hub)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket endpoints
	visitorH := handler.NewVisitorWSHandler(hub, resolver, lifecycle, router, m)
	agentH := handler.NewAgentWSHandler(hub, lifecycle, router, m, cfg.JWTSecret)
	app.Get("/ws/visitor", middleware.VisitorUpgradeLimit(), visitorH.Upgrade)
	app.Get("/ws/agent", agentH.Upgrade)

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Printf("Helpdesk backend running on :%s (%s)", cfg.Port, cfg.Env)

	<-quit
	log.Println("Shutting down...")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	monitor.Shutdown()
	log.Println("Server stopped")
}
