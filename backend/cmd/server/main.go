package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/adapter"
	"cdr-graph/backend/internal/api"
	"cdr-graph/backend/internal/constants"
	"cdr-graph/backend/internal/graph"
	"cdr-graph/backend/internal/ingest"
	"cdr-graph/backend/internal/metrics"
	"cdr-graph/backend/internal/session"
	"cdr-graph/backend/pkg/config"
	"cdr-graph/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting ingestion API server...")

	// Connect to Neo4j
	ctx := context.Background()
	driver, err := graph.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Initialize dependencies
	reg := metrics.DefaultRegistry()
	repo := graph.NewRepository(driver, cfg.Neo4jDatabase)
	writer := graph.NewWriter(repo, graph.WriterOptions{
		Timeout:     cfg.WriteTimeout,
		Concurrency: cfg.WriteConcurrency,
		Logger:      logger.Named("writer"),
	})
	pipeline := ingest.NewService(writer, ingest.Options{
		Workers: cfg.ExtractWorkers,
		Metrics: reg,
		Logger:  logger.Named("ingest"),
	})

	sessions := session.NewManager(session.WithLogger(logger.Named("session")))
	janitor := session.NewJanitor(sessions, constants.JanitorInterval, cfg.SessionMaxAge)
	janitor.OnSweep = func(int) { reg.SetActiveSessions(sessions.Len()) }
	janitor.Start()
	defer janitor.Stop()

	ai := newAssistant(cfg)
	if ai == nil {
		log.Warn("LLM_API_KEY not set, AI endpoints disabled")
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Ingest:         pipeline,
		Sessions:       sessions,
		AI:             ai,
		Graph:          repo,
		Metrics:        reg,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SessionMaxAge:  cfg.SessionMaxAge,
		AITimeout:      constants.AIRequestTimeout,
		Logger:         logger.Named("api"),
	})

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.Int("write_concurrency", cfg.WriteConcurrency),
		zap.Int("extract_workers", cfg.ExtractWorkers),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// newAssistant returns nil when no LLM key is configured. The nil must stay
// an untyped interface so the router can detect it.
func newAssistant(cfg *config.Config) api.Assistant {
	if !cfg.AIEnabled() {
		return nil
	}
	return adapter.NewLLMAdapter(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
}
