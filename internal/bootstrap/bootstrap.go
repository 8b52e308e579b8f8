package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ymatsuda/docsearch/internal/config"
	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/core/ports"
	"github.com/ymatsuda/docsearch/internal/core/usecase"
	"github.com/ymatsuda/docsearch/internal/infrastructure/cache"
	"github.com/ymatsuda/docsearch/internal/infrastructure/embedding"
	"github.com/ymatsuda/docsearch/internal/infrastructure/embedding/ollama"
	"github.com/ymatsuda/docsearch/internal/infrastructure/graph/neo4j"
	"github.com/ymatsuda/docsearch/internal/infrastructure/index/qdrant"
	"github.com/ymatsuda/docsearch/internal/infrastructure/keywords"
	"github.com/ymatsuda/docsearch/internal/infrastructure/queue/nats"
	"github.com/ymatsuda/docsearch/internal/infrastructure/repository/postgres"
	"github.com/ymatsuda/docsearch/internal/infrastructure/resilience"
	"github.com/ymatsuda/docsearch/internal/observability/metrics"
)

type App struct {
	Config   config.Config
	Searcher ports.DocumentSearcher
	Defaults domain.FusionConfig
	Metrics  *metrics.SearchMetrics
	Cache    *cache.Manager

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	defaults := fusionDefaults(cfg)
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("fusion defaults: %w", err)
	}

	manager := cache.NewManager(time.Duration(cfg.CacheSweepIntervalMs)*time.Millisecond, logger)

	embeddingCache, err := cache.NewNamespace(manager, "embedding",
		cfg.EmbedCacheMaxSize, time.Duration(cfg.EmbedCacheTTLMs)*time.Millisecond, cache.CloneSlice[float32])
	if err != nil {
		manager.Stop()
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	keywordCache, err := cache.NewNamespace(manager, "keywords",
		cfg.KeywordCacheMaxSize, time.Duration(cfg.KeywordCacheTTLMs)*time.Millisecond, cloneKeywords)
	if err != nil {
		manager.Stop()
		return nil, fmt.Errorf("keyword cache: %w", err)
	}
	resultCache, err := cache.NewNamespace(manager, "results",
		cfg.ResultCacheMaxSize, time.Duration(cfg.ResultCacheTTLMs)*time.Millisecond, domain.CloneFusedResults)
	if err != nil {
		manager.Stop()
		return nil, fmt.Errorf("result cache: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		manager.Stop()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	labelRepo := postgres.NewLabelRepository(db)
	if err := labelRepo.EnsureSchema(ctx); err != nil {
		manager.Stop()
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	source := keywords.NewSource()
	if err := source.InitializeFromFile(cfg.KeywordsPath); err != nil {
		logger.Warn("keyword_vocabulary_unavailable", "path", cfg.KeywordsPath, "error", err)
	}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerMinRequests:  uint32(cfg.BreakerMinRequests),
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerOpenTimeout:  time.Duration(cfg.BreakerOpenTimeoutMs) * time.Millisecond,
	})

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{
		Rate:     rate.Limit(cfg.EmbedRateLimit),
		Burst:    cfg.EmbedRateBurst,
		Executor: executor,
	})
	embedder := embedding.NewCachedEmbedder(ollamaClient, embeddingCache)

	qdrantClient := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	vectorIndex := qdrant.NewVectorIndex(qdrantClient)
	lexicalIndex := qdrant.NewLexicalIndex(qdrantClient)

	searchMetrics := metrics.NewSearchMetrics("docsearch-api")

	preprocessor := usecase.NewPreprocessor(source, keywordCache)

	options := []usecase.SearchOption{
		usecase.WithResultCache(resultCache),
		usecase.WithObserver(searchMetrics),
		usecase.WithPathTimeout(time.Duration(cfg.RetrievalTimeoutMs) * time.Millisecond),
	}

	var graphClient *neo4j.Client
	if cfg.Neo4jURI != "" {
		graphClient, err = neo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			// graph is an enrichment path; the pipeline degrades without it
			logger.Warn("knowledge_graph_unavailable", "uri", cfg.Neo4jURI, "error", err)
		} else {
			options = append(options, usecase.WithGraphIndex(graphClient))
		}
	}

	searcher := usecase.NewSearchUseCase(
		preprocessor,
		embedder,
		vectorIndex,
		lexicalIndex,
		labelRepo,
		source,
		logger,
		options...,
	)

	invalidator, err := nats.New(cfg.NATSURL, cfg.NATSSubject, manager, logger, nats.Options{})
	if err != nil {
		logger.Warn("cache_invalidation_unavailable", "url", cfg.NATSURL, "error", err)
		invalidator = nil
	} else if err := invalidator.Start(); err != nil {
		logger.Warn("cache_invalidation_subscribe_failed", "subject", cfg.NATSSubject, "error", err)
		invalidator.Close()
		invalidator = nil
	}

	return &App{
		Config:   cfg,
		Searcher: searcher,
		Defaults: defaults,
		Metrics:  searchMetrics,
		Cache:    manager,

		closeFn: func() {
			if invalidator != nil {
				invalidator.Close()
			}
			if graphClient != nil {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = graphClient.Close(closeCtx)
				cancel()
			}
			manager.Stop()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func fusionDefaults(cfg config.Config) domain.FusionConfig {
	defaults := domain.DefaultFusionConfig()
	defaults.TopK = cfg.SearchTopK
	defaults.VectorWeight = cfg.VectorWeight
	defaults.LexicalWeight = cfg.LexicalWeight
	defaults.TitleWeight = cfg.TitleWeight
	defaults.LabelWeight = cfg.LabelWeight
	defaults.KGWeight = cfg.KGWeight
	defaults.MaxVectorDistance = cfg.MaxVectorDistance
	defaults.MaxLexicalScore = cfg.MaxLexicalScore
	defaults.RRFK = cfg.RRFK
	defaults.Strategy = domain.FusionStrategy(cfg.FusionStrategy)
	defaults.DistanceThreshold = cfg.DistanceThreshold
	defaults.QualityThreshold = cfg.QualityThreshold
	defaults.CacheTTL = time.Duration(cfg.ResultCacheTTLMs) * time.Millisecond
	return defaults
}

func cloneKeywords(k domain.Keywords) domain.Keywords {
	return domain.Keywords{
		Core:     cache.CloneSlice(k.Core),
		Removed:  cache.CloneSlice(k.Removed),
		Priority: cache.CloneSlice(k.Priority),
	}
}
