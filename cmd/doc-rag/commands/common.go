package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/doc-rag/internal/core/chunk"
	"github.com/jinford/doc-rag/internal/core/embedding"
	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/retrieval"
	"github.com/jinford/doc-rag/internal/core/vector"
	"github.com/jinford/doc-rag/internal/infra/googleai"
	"github.com/jinford/doc-rag/internal/infra/ollama"
	"github.com/jinford/doc-rag/internal/infra/openai"
	"github.com/jinford/doc-rag/internal/infra/postgres"
	"github.com/jinford/doc-rag/internal/infra/qdrant"
	"github.com/jinford/doc-rag/internal/platform/logger"
	"github.com/jinford/doc-rag/pkg/config"
	"github.com/jinford/doc-rag/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Logger    *slog.Logger
	Database  *db.DB
	Store     vector.Store
	Cascade   *embedding.Cascade
	Ingestion *ingestion.Service
	Retrieval *retrieval.Service

	closers []func()
}

// NewAppContext は設定ファイルを読み込み、依存をすべて組み立てて AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.DefaultConfig())

	ac := &AppContext{
		Config: cfg,
		Logger: appLogger,
	}

	// ドキュメントメタデータは常にPostgreSQLに保存する
	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	ac.Database = database
	ac.closers = append(ac.closers, database.Close)

	// Embeddingプロバイダのカスケードを構築
	cascade, err := embedding.NewCascade(ctx, providerFactories(cfg), cfg.Embedding.Provider,
		embedding.WithCascadeLogger(appLogger),
	)
	if err != nil {
		ac.Close()
		return nil, fmt.Errorf("embeddingプロバイダの初期化に失敗: %w", err)
	}
	ac.Cascade = cascade

	// ベクトルストアの選択
	switch cfg.VectorBackend {
	case "qdrant":
		store, err := qdrant.NewStore(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cascade.Dimension(),
			qdrant.WithCollection(cfg.Qdrant.Collection),
			qdrant.WithStoreLogger(appLogger),
		)
		if err != nil {
			ac.Close()
			return nil, fmt.Errorf("qdrantへの接続に失敗: %w", err)
		}
		ac.Store = store
		ac.closers = append(ac.closers, func() { store.Close() })
	case "postgres":
		ac.Store = postgres.NewStore(database.Pool, cascade.Dimension(),
			postgres.WithStoreLogger(appLogger),
		)
	default:
		ac.Close()
		return nil, fmt.Errorf("不明なベクトルストアバックエンド: %s", cfg.VectorBackend)
	}

	chunker, err := chunk.NewChunker(
		chunk.WithChunkSize(cfg.Chunking.ChunkSize),
		chunk.WithOverlap(cfg.Chunking.Overlap),
	)
	if err != nil {
		ac.Close()
		return nil, fmt.Errorf("チャンカーの初期化に失敗: %w", err)
	}

	docs := postgres.NewDocumentRepository(database.Pool)
	extractor := ingestion.NewTextExtractor()

	ac.Ingestion = ingestion.NewService(extractor, chunker, cascade, ac.Store, docs,
		ingestion.WithServiceLogger(appLogger),
	)
	ac.Retrieval = retrieval.NewService(cascade, ac.Store,
		retrieval.WithServiceLogger(appLogger),
	)

	return ac, nil
}

// providerFactories は設定から優先順のプロバイダファクトリ一覧を構築する
func providerFactories(cfg *config.Config) []embedding.ProviderFactory {
	return []embedding.ProviderFactory{
		{
			Name: googleai.ProviderName,
			New: func(ctx context.Context) (embedding.Provider, error) {
				return googleai.NewEmbedder(ctx, cfg.Embedding.GoogleAPIKey)
			},
		},
		{
			Name: ollama.ProviderName,
			New: func(ctx context.Context) (embedding.Provider, error) {
				return ollama.NewEmbedder(ctx,
					ollama.WithServerURL(cfg.Embedding.OllamaServerURL),
					ollama.WithEmbeddingModel(cfg.Embedding.OllamaModel),
				)
			},
		},
		{
			Name: openai.ProviderName,
			New: func(ctx context.Context) (embedding.Provider, error) {
				return openai.NewEmbedder(cfg.Embedding.OpenAIAPIKey,
					openai.WithEmbeddingModel(cfg.Embedding.OpenAIModel),
					openai.WithEmbeddingDimension(cfg.Embedding.OpenAIDimension),
				)
			},
		},
	}
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	for i := len(ac.closers) - 1; i >= 0; i-- {
		ac.closers[i]()
	}
}
