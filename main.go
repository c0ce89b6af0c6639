package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philippgille/chromem-go"

	"disaster-analysis-pipeline/internal/agents"
	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/handlers"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
	"disaster-analysis-pipeline/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("Starting disaster analysis pipeline",
		"environment", cfg.Environment,
		"port", cfg.HTTP.Port)

	ctx := context.Background()

	// Collaborators.
	stateStore, err := services.NewStateStore(cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init state store: %w", err)
	}
	defer stateStore.Close()

	embed := chromem.NewEmbeddingFuncOpenAI(cfg.Index.OpenAIAPIKey, chromem.EmbeddingModelOpenAI3Small)
	index, err := services.NewDocumentIndex(cfg.Index, embed, log)
	if err != nil {
		return fmt.Errorf("init document index: %w", err)
	}

	warehouse, err := services.NewWarehouseService(ctx, cfg.Warehouse, log)
	if err != nil {
		return fmt.Errorf("init warehouse: %w", err)
	}
	defer warehouse.Close()

	webSearch, err := services.NewWebSearchService(cfg.WebSearch, log)
	if err != nil {
		return fmt.Errorf("init web search: %w", err)
	}

	renderer := services.NewRendererService(cfg.Renderer, log)

	// Agents.
	descriptors, err := models.LoadAgentDescriptors(cfg.Orchestrator.AgentFile)
	if err != nil {
		return fmt.Errorf("load agent descriptors: %w", err)
	}

	registry := map[string]agents.Agent{
		models.AgentRetrieval:     agents.NewRetrievalAgent(index, cfg.Index.TopK, log),
		models.AgentForecast:      agents.NewForecastAgent(warehouse, log),
		models.AgentStatistics:    agents.NewStatisticsAgent(warehouse, log),
		models.AgentVisualization: agents.NewVisualizationAgent(warehouse, renderer, log),
		models.AgentWebSearch:     agents.NewWebSearchAgent(webSearch, log),
	}

	synthesizer := services.NewSynthesizer(nil, log)

	orchestrator, err := services.NewOrchestrator(
		descriptors,
		registry,
		synthesizer,
		stateStore,
		map[string]services.HealthChecker{
			"state_store":    stateStore,
			"document_index": index,
			"warehouse":      warehouse,
			"web_search":     webSearch,
			"renderer":       renderer,
		},
		cfg.Orchestrator,
		log,
	)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	// HTTP surface.
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.NewAnalysisHandler(orchestrator, stateStore, log)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		log.Info("Shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err.Error())
	}
	if err := orchestrator.Close(25 * time.Second); err != nil {
		log.Warn("Orchestrator close", "error", err.Error())
	}

	log.Info("Shutdown complete")
	return nil
}
