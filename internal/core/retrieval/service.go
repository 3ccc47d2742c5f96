package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/doc-rag/internal/core/vector"
)

// DefaultTopK はデフォルトの検索件数
const DefaultTopK = 5

// Embedder はクエリのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service は類似検索と文脈組み立てのビジネスロジックを提供する
type Service struct {
	embedder Embedder
	store    vector.Store
	logger   *slog.Logger
}

// ServiceOption はServiceのオプション設定
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(embedder Embedder, store vector.Store, opts ...ServiceOption) *Service {
	s := &Service{
		embedder: embedder,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve はクエリに基づいて類似パッセージを検索し、引用付きの文脈を組み立てる
//
// 一致するパッセージがない場合は空の文脈と空のソース一覧を返す。
// これは正常な結果であり、呼び出し側は「根拠なしで回答する」シグナルとして扱う。
func (s *Service) Retrieve(ctx context.Context, query string, topK int, filter *vector.Filter) (*Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, queryVector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if len(hits) == 0 {
		s.logger.Info("一致するパッセージなし", "query", query)
		return &Result{Sources: []Source{}, Passages: []Passage{}}, nil
	}

	passages := make([]Passage, 0, len(hits))
	for _, hit := range hits {
		passages = append(passages, Passage{
			FileID:     hit.FileID,
			FileName:   metadataString(hit.Metadata, "file_name"),
			ChunkIndex: hit.ChunkIndex,
			Text:       hit.Text,
			Score:      hit.Score,
		})
	}

	result := &Result{
		ContextText: BuildContext(passages),
		Sources:     collectSources(passages),
		Passages:    passages,
	}

	s.logger.Info("文脈を組み立てた",
		"query", query,
		"passages", len(result.Passages),
		"sources", len(result.Sources),
	)

	return result, nil
}

// collectSources はパッセージの出現順にファイルを重複なく収集する
func collectSources(passages []Passage) []Source {
	seen := make(map[string]struct{}, len(passages))
	sources := make([]Source, 0, len(passages))
	for _, p := range passages {
		if _, ok := seen[p.FileID]; ok {
			continue
		}
		seen[p.FileID] = struct{}{}
		sources = append(sources, Source{FileID: p.FileID, Name: p.FileName})
	}
	return sources
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
