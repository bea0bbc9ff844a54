package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	"github.com/kailas-cloud/ragdex/internal/transport/hashembed"
	openaiT "github.com/kailas-cloud/ragdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/ragdex/internal/vectorstore/chromem"
	"github.com/kailas-cloud/ragdex/internal/vectorstore/qdrant"
	vsRedis "github.com/kailas-cloud/ragdex/internal/vectorstore/redis"
)

// app is the assembled retrieval stack shared by all commands.
type app struct {
	engine   *retrieval.Engine
	embedder *embeddinguc.InstrumentedEmbedder
	model    string
}

func (a *app) Close() error {
	return a.engine.Close() //nolint:wrapcheck // composition root
}

// buildApp wires the vector store, the embedder chain and the engine.
func buildApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	metrics.RegisterHTTPMetrics()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	var redisStore *dbRedis.Store
	if cfg.Database.Driver == config.DriverRedis {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Redis.Addrs,
			Username: cfg.Database.Redis.Username,
			Password: cfg.Database.Redis.Password,
			DB:       cfg.Database.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		redisStore = s
	}

	catalog := embeddinguc.NewCatalog(cfg.Embedding.Models)

	docEmbedder, model, err := buildEmbedder(cfg, catalog, redisStore, logger)
	if err != nil {
		return nil, err
	}

	// Instruction prefix applies to queries only
	var queryEmbedder domain.Embedder = docEmbedder
	if cfg.Embedding.QueryInstruction != "" {
		queryEmbedder = domain.NewInstructionEmbedder(docEmbedder, cfg.Embedding.QueryInstruction)
	}

	engine := retrieval.New(connector(cfg, redisStore, logger), catalog, docEmbedder, queryEmbedder, model).
		WithMinScore(*cfg.Retrieval.MinScore).
		WithMaxLimit(cfg.Retrieval.MaxLimit).
		WithDefaultCollection(cfg.Retrieval.DefaultCollection).
		WithObserver(metrics.RetrievalObserver{}).
		WithLogger(logger.Named("retrieval"))

	logger.Info("Retrieval engine created",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("model", model),
	)

	return &app{engine: engine, embedder: docEmbedder, model: model}, nil
}

// buildEmbedder assembles the decorator chain: provider -> cached -> instrumented.
func buildEmbedder(
	cfg config.Config,
	catalog *embeddinguc.Catalog,
	redisStore *dbRedis.Store,
	logger *zap.Logger,
) (*embeddinguc.InstrumentedEmbedder, string, error) {
	var (
		base  domain.Embedder
		model string
	)

	switch cfg.Embedding.Provider {
	case config.ProviderHash:
		h := hashembed.New(cfg.Embedding.Dimensions)
		catalog.Register(h.Model(), h.Dimensions())
		base, model = h, h.Model()
	case config.ProviderOpenAI:
		model = cfg.Embedding.Model
		if cfg.Embedding.Dimensions > 0 {
			catalog.Register(model, cfg.Embedding.Dimensions)
		}
		if _, err := catalog.Dimensions(model); err != nil {
			return nil, "", fmt.Errorf("embedding model: %w", err)
		}
		base = openaiT.NewEmbedder(&openaiT.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      model,
			Dimensions: cfg.Embedding.Dimensions,
			Provider:   cfg.Embedding.Provider,
			MaxRetries: cfg.Embedding.MaxRetries,
			Logger:     logger.Named("openai"),
		})
	default:
		return nil, "", fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	embedder := base
	if cfg.Embedding.Cache.Enabled && redisStore != nil {
		embedder = embcache.New(base, redisStore, model, metrics.EmbeddingCacheTotal, logger.Named("embcache")).
			WithTTL(time.Duration(cfg.Embedding.Cache.TTLSec) * time.Second)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Embedding.Provider, model, logger), model, nil
}

// connector opens the configured vector store on first use.
func connector(cfg config.Config, redisStore *dbRedis.Store, logger *zap.Logger) retrieval.ConnectorFunc {
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second

	return func(ctx context.Context) (retrieval.Store, error) {
		switch cfg.Database.Driver {
		case config.DriverRedis:
			if err := redisStore.WaitForReady(ctx, readiness); err != nil {
				return nil, fmt.Errorf("redis not ready: %w", err)
			}
			logger.Info("Connected to redis", zap.Strings("addrs", cfg.Database.Redis.Addrs))
			return vsRedis.New(redisStore).
				WithHNSW(vsRedis.HNSWConfig{
					M:           cfg.Database.Redis.HNSWM,
					EFConstruct: cfg.Database.Redis.HNSWEFConstruct,
				}).
				WithCloser(redisStore.Close), nil

		case config.DriverChromem:
			st, err := chromem.Open(ctx, chromem.Config{
				Persistent: cfg.Database.Chromem.Path != "",
				Path:       cfg.Database.Chromem.Path,
				Compress:   cfg.Database.Chromem.Compress,
			})
			if err != nil {
				return nil, fmt.Errorf("open chromem: %w", err)
			}
			logger.Info("Opened chromem store", zap.String("path", cfg.Database.Chromem.Path))
			return st, nil

		case config.DriverQdrant:
			st, err := qdrant.New(qdrant.Config{
				URL:     cfg.Database.Qdrant.URL,
				APIKey:  cfg.Database.Qdrant.APIKey,
				Timeout: time.Duration(cfg.Database.Qdrant.TimeoutSec) * time.Second,
			})
			if err != nil {
				return nil, domain.Configuration(domain.ErrInvalidArgument, "qdrant: %v", err)
			}
			if err := st.Ping(ctx); err != nil {
				return nil, fmt.Errorf("qdrant not ready: %w", err)
			}
			logger.Info("Connected to qdrant", zap.String("url", cfg.Database.Qdrant.URL))
			return st, nil

		default:
			return nil, domain.Configuration(domain.ErrInvalidArgument, "unknown database driver %q", cfg.Database.Driver)
		}
	}
}
