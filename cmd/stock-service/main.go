package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sokoflow/sokoflow-backend/internal/stock/events"
	"github.com/sokoflow/sokoflow-backend/internal/stock/handler"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/internal/stock/service"
	"github.com/sokoflow/sokoflow-backend/pkg/config"
	"github.com/sokoflow/sokoflow-backend/pkg/database"
	"github.com/sokoflow/sokoflow-backend/pkg/httputil"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
	"github.com/sokoflow/sokoflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	variantRepo := repository.NewVariantRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	stockTakeRepo := repository.NewStockTakeRepository(db, ledgerRepo)

	// Initialize services
	alertService := service.NewAlertService(alertRepo, variantRepo, publisher, log)
	ledgerService := service.NewLedgerService(ledgerRepo, alertService, publisher, log)
	stockTakeService := service.NewStockTakeService(stockTakeRepo, publisher, log)
	analyticsService := service.NewAnalyticsService(variantRepo)
	variantService := service.NewVariantService(variantRepo)

	// Initialize handlers
	stockHandler := handler.NewStockHandler(ledgerService, analyticsService, log)
	alertHandler := handler.NewAlertHandler(alertService, log)
	stockTakeHandler := handler.NewStockTakeHandler(stockTakeService, log)
	variantHandler := handler.NewVariantHandler(variantService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.ActorContext)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Email", "X-User-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Use(httputil.RequireAuth)

		// Ledger reads
		r.Get("/movements/{variantID}", stockHandler.Movements)
		r.Get("/low-stock", stockHandler.LowStock)
		r.Get("/value", stockHandler.StockValue)

		// Ledger mutations
		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireAdmin)
			r.Post("/{variantID}/add", stockHandler.Add)
			r.Post("/{variantID}/adjust", stockHandler.Adjust)
			r.Post("/{variantID}/damage", stockHandler.Damage)
			r.Post("/bulk-update", stockHandler.BulkUpdate)
		})

		// Stock take sessions
		r.Route("/stock-takes", func(r chi.Router) {
			r.Get("/", stockTakeHandler.List)
			r.Get("/{id}", stockTakeHandler.Get)
			r.Get("/{id}/report", stockTakeHandler.Report)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireAdmin)
				r.Post("/", stockTakeHandler.Create)
				r.Post("/{id}/start", stockTakeHandler.Start)
				r.Post("/{id}/items", stockTakeHandler.AddItems)
				r.Post("/{id}/complete", stockTakeHandler.Complete)
				r.Post("/{id}/cancel", stockTakeHandler.Cancel)
			})
		})

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/active", alertHandler.Active)
			r.Get("/history", alertHandler.History)
			r.Get("/stats", alertHandler.Stats)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireAdmin)
				r.Post("/{variantID}", alertHandler.Set)
				r.Delete("/{variantID}", alertHandler.Disable)
				r.Post("/{variantID}/resolve", alertHandler.Resolve)
			})
		})
	})

	// Variant registry
	r.Route("/api/v1/variants", func(r chi.Router) {
		r.Use(httputil.RequireAuth)

		r.Get("/", variantHandler.List)
		r.Get("/{id}", variantHandler.Get)
		r.Get("/sku/{sku}", variantHandler.GetBySKU)

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireAdmin)
			r.Post("/", variantHandler.Create)
			r.Patch("/{id}/price", variantHandler.UpdatePrice)
			r.Delete("/{id}", variantHandler.Deactivate)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
