// Package app wires configuration, storage, the model client and the
// pipeline components into one runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dbchat-dev/dbchat/db"
	"github.com/dbchat-dev/dbchat/internal/chat"
	"github.com/dbchat-dev/dbchat/internal/config"
	"github.com/dbchat-dev/dbchat/internal/database"
	"github.com/dbchat-dev/dbchat/internal/gate"
	"github.com/dbchat-dev/dbchat/internal/knowledge"
	"github.com/dbchat-dev/dbchat/internal/llm"
	"github.com/dbchat-dev/dbchat/internal/session"
)

// App holds the assembled runtime. Construction is the only place components
// learn about each other; none of them reads ambient global state.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Pool         *pgxpool.Pool
	Sessions     *session.Store
	Knowledge    *knowledge.Store
	LLM          *llm.Client
	Orchestrator *chat.Orchestrator
	Gate         *gate.Gate
}

// New connects to storage, runs migrations and assembles the pipeline.
//
// The model service may still be warming up when the process starts, so an
// unreachable service is a warning here, not a startup failure; the first
// turn that needs it reports the unavailability to the user.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	client := llm.New(llm.Config{
		BaseURL:       cfg.LLMBaseURL,
		Model:         cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
		Timeout:       cfg.CallTimeout,
		Logger:        logger,
	})

	modelReady := true
	if err := client.Ping(ctx); err != nil {
		modelReady = false
		if errors.Is(err, llm.ErrUnavailable) {
			logger.Warn("model service not reachable yet", "base_url", cfg.LLMBaseURL)
		} else {
			logger.Warn("model service ping failed", "error", err)
		}
	}

	knowledgeStore := knowledge.New(pool, client, cfg.EmbeddingDimension, logger)
	if modelReady {
		count, err := knowledgeStore.EmbedMissing(ctx)
		if err != nil {
			// A dimension disagreement means config and stored vectors have
			// diverged; running on would produce garbage retrieval.
			if errors.Is(err, knowledge.ErrDimensionMismatch) {
				pool.Close()
				return nil, err
			}
			logger.Warn("embedding backfill failed", "error", err)
		} else if count > 0 {
			logger.Info("backfilled document embeddings", "count", count)
		}
	}

	sessions := session.New(pool, logger)

	orchestrator := chat.New(chat.Config{
		Generator:    client,
		Retriever:    knowledgeStore,
		Conversation: sessions,
		Schema: func(ctx context.Context) (string, error) {
			return database.SchemaInfo(ctx, pool)
		},
		HistoryWindow: cfg.HistoryWindow,
		TopK:          cfg.TopK,
		Logger:        logger,
	})

	executionGate := gate.New(
		database.NewExecutor(pool, cfg.CallTimeout),
		cfg.MaxDisplayRows,
		logger,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Sessions:     sessions,
		Knowledge:    knowledgeStore,
		LLM:          client,
		Orchestrator: orchestrator,
		Gate:         executionGate,
	}, nil
}

// SchemaInfo describes the queryable schema for the /schema command.
func (a *App) SchemaInfo(ctx context.Context) (string, error) {
	return database.SchemaInfo(ctx, a.Pool)
}

// Close releases the connection pool.
func (a *App) Close() {
	a.Pool.Close()
	a.Logger.Debug("closed database pool")
}
