// cmd/memory-mcp is the entry point for the memory MCP server. It
// wires the Postgres store, the OpenAI-compatible LLM client, and the
// agent runtime behind a stdio JSON-RPC transport.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout
// that are not valid JSON-RPC 2.0 response frames corrupt the protocol.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/agent"
	"github.com/gregpriday/memory-mcp/internal/api/mcp"
	"github.com/gregpriday/memory-mcp/internal/config"
	"github.com/gregpriday/memory-mcp/internal/files"
	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/internal/storage/postgres"
)

func main() {
	// Best-effort: a missing .env just means the environment is already set.
	_ = godotenv.Load()

	// zap's production config writes to stderr, keeping stdout clean for
	// the protocol.
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:              cfg.LLM.APIKey,
		BaseURL:             cfg.LLM.BaseURL,
		Model:               cfg.LLM.Model,
		AnalysisModel:       cfg.LLM.AnalysisModel,
		EmbeddingModel:      cfg.LLM.EmbeddingModel,
		EmbeddingDimensions: cfg.LLM.EmbeddingDimensions,
		Timeout:             cfg.LLM.Timeout(),
	})

	store, err := postgres.New(cfg.Storage.DatabaseURL,
		postgres.WithLogger(logger.Named("storage")),
		postgres.WithEmbedder(client),
		postgres.WithProject(cfg.Storage.Project),
		postgres.WithDimensions(cfg.Storage.EmbeddingDimensions),
		postgres.WithAccessTracking(cfg.Storage.AccessTrackingEnabled, cfg.Storage.AccessTrackingTopN),
		postgres.WithSlowQueryThreshold(cfg.Storage.SlowQueryThreshold()),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := postgres.ClosePools(); err != nil {
			logger.Warn("pool shutdown", zap.Error(err))
		}
	}()

	loader, err := files.NewLoader(cfg.Files.ProjectRoot)
	if err != nil {
		return err
	}

	runtime := agent.New(agent.Deps{
		Repo:     store,
		Chat:     client,
		Simple:   client,
		Analysis: client,
		Files:    loader,
		Logger:   logger.Named("agent"),
		Config: agent.Config{
			MaxToolIterations:     cfg.Agent.MaxToolIterations,
			MaxSearchIterations:   cfg.Agent.MaxSearchIterations,
			QueryExpansionEnabled: cfg.Agent.QueryExpansionEnabled,
			QueryExpansionCount:   cfg.Agent.QueryExpansionCount,
			RefineBudget:          cfg.Agent.RefineBudget,
			AccessTrackingTopN:    cfg.Storage.AccessTrackingTopN,
		},
	})

	server := mcp.NewServer(runtime, store,
		mcp.WithLogger(logger.Named("mcp")),
		mcp.WithDefaultIndex(cfg.Storage.DefaultIndex),
		mcp.WithFiles(loader),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("ready, serving JSON-RPC 2.0 on stdin/stdout",
		zap.String("project", cfg.Storage.Project),
		zap.String("defaultIndex", cfg.Storage.DefaultIndex),
	)

	transport := mcp.NewStdioTransport(server, logger.Named("transport"))
	if err := transport.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
