package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/phuslu/log"

	"finetune-orchestrator/api/rest/routes"
	"finetune-orchestrator/backends"
	"finetune-orchestrator/backends/ghactions"
	"finetune-orchestrator/backends/hfjobs"
	"finetune-orchestrator/config"
	"finetune-orchestrator/core/estimator"
	"finetune-orchestrator/core/monitoring"
	"finetune-orchestrator/core/orchestrator"
	"finetune-orchestrator/core/repository"
)

func main() {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		log.DefaultLogger.SetLevel(log.ParseLevel(lvl))
	}

	cfg := config.Load()

	// Initialize registry. Without a database URL the server keeps jobs
	// in memory, which is enough for local use.
	var registry repository.JobRegistry
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database schema")
		}
		registry = repository.NewJobRepository(db)
		log.Info().Msg("Database connected successfully")
	} else {
		registry = repository.NewMemoryRegistry()
		log.Warn().Msg("DATABASE_URL not set, using in-memory job registry")
	}

	// Initialize pricing and estimator
	pricing, err := cfg.Pricing()
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.PricingFile).Msg("Failed to load pricing")
	}
	est := estimator.New(pricing, estimator.NewHubDatasetSizer(""))

	// Initialize backends
	primary := hfjobs.NewClient(cfg.HFJobsEndpoint, cfg.HFToken)
	secondary := ghactions.NewClient(ghactions.Options{
		Token:        cfg.GitHubToken,
		Owner:        cfg.RepoOwner,
		Repo:         cfg.RepoName,
		WorkflowFile: cfg.WorkflowFile,
		Ref:          cfg.WorkflowRef,
	})
	logBackend(primary)
	logBackend(secondary)

	orch := orchestrator.New(registry, est, primary, secondary, cfg.BudgetLimitUSD)
	streamer := monitoring.NewStreamer(orch, cfg.PollInterval)

	r := mux.NewRouter()
	routes.SetupRoutes(r, orch, streamer)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", cfg.ServerPort).Float64("budget_limit_usd", cfg.BudgetLimitUSD).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func logBackend(b backends.TrainingBackend) {
	if b.Available() {
		log.Info().Str("backend", string(b.Name())).Msg("Backend configured")
	} else {
		log.Warn().Str("backend", string(b.Name())).Msg("Backend not configured, submissions will not use it")
	}
}
