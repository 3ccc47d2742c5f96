package ollama

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/jinford/doc-rag/internal/core/embedding"
)

const (
	// ProviderName はプロバイダ識別子
	ProviderName = "ollama"

	// DefaultServerURL はローカルOllamaサーバのデフォルトURL
	DefaultServerURL = "http://localhost:11434"
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "all-minilm"
	// DefaultEmbeddingDimension は all-minilm の次元数
	DefaultEmbeddingDimension = 384
	// DefaultWorkerCount は埋め込み計算のワーカー数
	DefaultWorkerCount = 4

	maxBatchSize = 64
)

// Embedder はローカルで動作する Ollama サーバを使用してテキストをベクトルに変換する
//
// ローカルモデルの推論はCPUバウンドのため、バッチ埋め込みは
// ワーカープールに分散してリクエスト処理を塞がないようにする。
type Embedder struct {
	embedder  embeddings.Embedder
	pool      *ants.Pool
	model     string
	dimension int
}

type embedderOptions struct {
	serverURL string
	model     string
	dimension int
	workers   int
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithServerURL はOllamaサーバのURLを上書きする
func WithServerURL(url string) EmbedderOption {
	return func(o *embedderOptions) {
		o.serverURL = url
	}
}

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithWorkerCount はワーカープールのサイズを上書きする
func WithWorkerCount(workers int) EmbedderOption {
	return func(o *embedderOptions) {
		o.workers = workers
	}
}

// NewEmbedder は新しい Embedder を作成する
//
// 作成時に1件の埋め込みを試行してサーバへの到達性とモデルの存在を確認する。
// サーバが起動していない場合はここで失敗する。
func NewEmbedder(ctx context.Context, opts ...EmbedderOption) (*Embedder, error) {
	options := embedderOptions{
		serverURL: DefaultServerURL,
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		workers:   DefaultWorkerCount,
	}
	for _, opt := range opts {
		opt(&options)
	}

	client, err := ollama.New(
		ollama.WithServerURL(options.serverURL),
		ollama.WithModel(options.model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	// 到達性の確認
	if _, err := embedder.EmbedQuery(ctx, "ping"); err != nil {
		return nil, fmt.Errorf("ollama server not available: %w", err)
	}

	pool, err := ants.NewPool(options.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Embedder{
		embedder:  embedder,
		pool:      pool,
		model:     options.model,
		dimension: options.dimension,
	}, nil
}

// Name はプロバイダ識別子を返す
func (e *Embedder) Name() string {
	return ProviderName
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	return vec, nil
}

// BatchEmbed はバッチで Embedding を生成する
//
// 各テキストをワーカープールに分散し、全件の完了を待ってから返す。
// いずれかが失敗した場合はバッチ全体を失敗として扱う（部分結果は返さない）。
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	vecs := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		if err := e.pool.Submit(func() {
			defer wg.Done()
			vec, err := e.embedder.EmbedQuery(ctx, text)
			if err != nil {
				errs[i] = err
				return
			}
			vecs[i] = vec
		}); err != nil {
			wg.Done()
			return nil, fmt.Errorf("failed to submit embedding task: %w", err)
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
	}

	return vecs, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxBatchSize
}

// Close はワーカープールを解放する
func (e *Embedder) Close() {
	e.pool.Release()
}

// インターフェース実装の確認
var _ embedding.Provider = (*Embedder)(nil)
