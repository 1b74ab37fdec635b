package bootstrap

import (
	"context"
	"fmt"
	"time"

	"assist_server/adapter/out/blob"
	"assist_server/adapter/out/extract"
	"assist_server/adapter/out/messaging"
	"assist_server/adapter/out/mongodb"
	"assist_server/adapter/out/persistence"
	"assist_server/config"
	"assist_server/core/agent/llm"
	"assist_server/core/agent/rag"
	"assist_server/core/port/out"
	"assist_server/core/service/canonical"
	"assist_server/core/service/document"
	"assist_server/core/service/draft"
	"assist_server/core/service/retrieval"
	"assist_server/infra/database"
	"assist_server/pkg/cache"
	"assist_server/pkg/httputil"
	"assist_server/pkg/logger"
	"assist_server/pkg/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	streamMaxLen      = 100000
	auditStreamMaxLen = 500000
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Log     zerolog.Logger

	// Adapters
	DocumentRepo  out.DocumentRepository
	CanonicalRepo out.CanonicalQARepository
	VectorStore   out.VectorStore
	BlobStore     out.BlobStore
	Extractor     out.TextExtractor
	AuditLog      out.AuditLog
	JobPublisher  out.JobPublisher

	// Agent
	Embedder  rag.Embedder
	Indexer   *rag.Indexer
	Retriever *rag.Retriever
	LLMClient *llm.Client

	// Services
	DocumentService  *document.Service
	CanonicalService *canonical.Service
	RetrievalService *retrieval.Service
	DraftService     *draft.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config: cfg,
		Log:    logger.Default().Zerolog(),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Postgres: pgx pool for vectors, sqlx for the relational repositories
	pgCfg := database.DefaultPostgresConfig()
	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return fail(err)
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	sqlDB, err := database.NewSQLX(cfg.DatabaseURL, pgCfg)
	if err != nil {
		return fail(err)
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { _ = sqlDB.Close() })
	metrics.RegisterPool("postgres", sqlDB.DB)
	logger.Info("postgres connected (max_conns=%d)", pgCfg.MaxConns)

	redisClient, err := database.NewRedis(ctx, cfg.RedisURL, nil)
	if err != nil {
		return fail(err)
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { _ = redisClient.Close() })

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
	if err != nil {
		return fail(err)
	}
	deps.MongoDB = mongoClient
	cleanups = append(cleanups, func() { _ = mongoClient.Disconnect(context.Background()) })

	// Audit: Mongo is the record of truth, the stream mirror feeds consumers
	auditAdapter := mongodb.NewAuditAdapter(mongoClient.Database(cfg.MongoDBName))
	if err := auditAdapter.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("audit index creation failed")
	}
	deps.AuditLog = auditAdapter
	if cfg.AuditStreamMirror {
		deps.AuditLog = messaging.NewAuditStream(redisClient, auditAdapter, auditStreamMaxLen, deps.Log)
	}

	blobStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	deps.BlobStore = blobStore

	deps.DocumentRepo = persistence.NewDocumentAdapter(sqlDB)
	deps.CanonicalRepo = persistence.NewCanonicalQAAdapter(sqlDB)
	deps.VectorStore = rag.NewPgVectorStore(db)
	deps.Extractor = extract.NewRegistry()
	deps.JobPublisher = messaging.NewRedisProducer(redisClient, streamMaxLen)

	openaiHTTP := httputil.NewOptimizedClient(httputil.OpenAIClientConfig(time.Duration(cfg.LLMTimeoutSec) * time.Second))

	embedder := rag.NewOpenAIEmbedder(rag.OpenAIEmbedderConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		MaxBatch:   cfg.EmbeddingMaxBatch,
		HTTPClient: openaiHTTP,
	})
	deps.Embedder = rag.NewCachedEmbedder(
		embedder,
		cfg.EmbeddingModel,
		rag.NewEmbeddingCache(rag.EmbeddingCacheConfig{TTL: cfg.EmbeddingCacheTTL}),
		cache.NewRedisCache(redisClient, "assist:"),
		cfg.EmbeddingCacheTTL,
	)

	deps.Indexer = rag.NewIndexer(
		rag.NewChunker(rag.ChunkerConfig{
			TargetTokens:  cfg.ChunkTargetTokens,
			OverlapTokens: cfg.ChunkOverlapTokens,
			CharsPerToken: cfg.ChunkCharsPerToken,
		}),
		deps.Embedder,
		deps.VectorStore,
		rag.IndexerConfig{
			BatchSize:          cfg.IngestBatchSize,
			MaxParallelBatches: cfg.IngestMaxParallelBatches,
		},
	)
	deps.Retriever = rag.NewRetriever(deps.Embedder, deps.VectorStore, rag.RetrieverConfig{
		DefaultTopK:   cfg.RetrievalDefaultTopK,
		MaxTopK:       cfg.RetrievalMaxTopK,
		ExcerptLength: cfg.RetrievalExcerptLength,
	})
	deps.LLMClient = llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
		HTTPClient:  openaiHTTP,
	})

	deps.DocumentService = document.NewService(
		deps.DocumentRepo,
		deps.BlobStore,
		deps.Extractor,
		deps.Indexer,
		deps.JobPublisher,
		document.Config{MaxUploadBytes: int64(cfg.IngestMaxUploadBytes)},
		deps.Log,
	)
	deps.CanonicalService = canonical.NewService(deps.CanonicalRepo, deps.Embedder, deps.Log)
	deps.RetrievalService = retrieval.NewService(deps.Retriever, deps.AuditLog, deps.Log)
	deps.DraftService = draft.NewService(deps.Retriever, deps.LLMClient, deps.AuditLog, draft.Config{
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: float32(cfg.LLMTemperature),
	}, deps.Log)

	return deps, cleanup, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (out.BlobStore, error) {
	switch cfg.BlobBackend {
	case "local":
		store, err := blob.NewLocalStore(cfg.BlobLocalDir)
		if err != nil {
			return nil, err
		}
		logger.Info("blob store: local (%s)", cfg.BlobLocalDir)
		return store, nil
	case "azure":
		store, err := blob.NewAzureStore(blob.AzureConfig{
			ConnectionString: cfg.AzureConnString,
			Container:        cfg.AzureContainer,
			Prefix:           cfg.BlobKeyPrefix,
			HTTPClient:       httputil.NewOptimizedClient(httputil.BlobClientConfig()),
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		logger.Info("blob store: azure (container=%s)", cfg.AzureContainer)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
