package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxaide/taxaide/db"
	"github.com/taxaide/taxaide/internal/assistant"
	"github.com/taxaide/taxaide/internal/cache"
	"github.com/taxaide/taxaide/internal/config"
	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
	"github.com/taxaide/taxaide/internal/retrieval"
)

// Setup creates and initializes the application in dependency order:
// database, Genkit, embedder, knowledge store, retriever, generator,
// cache, assistant. On failure everything already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	queries := knowledge.NewQueries(pool)
	a.Knowledge = knowledge.NewStore(queries, embedder, cfg.ModelVersion(), logger)

	weights := retrieval.Weights{Vector: cfg.VectorWeight, Keyword: cfg.KeywordWeight}
	a.Retriever = retrieval.New(a.Knowledge, weights, logger)

	var respCache *cache.Cache[*assistant.Response]
	if cfg.CacheEnabled {
		respCache = cache.New[*assistant.Response](cfg.CacheSize, time.Duration(cfg.CacheTTLMinutes)*time.Minute)
	}

	a.Assistant = assistant.New(
		a.Knowledge,
		a.Retriever,
		newModelGenerator(g, cfg),
		respCache,
		assistant.Options{
			TopK:         cfg.TopK,
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		},
		logger,
	)

	logger.Info("application initialized",
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel,
		"cache_enabled", cfg.CacheEnabled)
	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment; config validation has already
// checked it is set.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	logger.Debug("genkit initialized", "model", cfg.ModelName)
	return g, nil
}
