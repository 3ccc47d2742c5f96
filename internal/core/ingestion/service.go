package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/chunk"
	"github.com/jinford/doc-rag/internal/core/vector"
)

// Chunker はテキストのパッセージ分割インターフェース
type Chunker interface {
	// Chunk はテキストを順序付きのチャンク列に分割する
	Chunk(text string) []chunk.Piece
}

// Embedder はチャンク本文のバッチ埋め込み生成インターフェース
type Embedder interface {
	// BatchEmbed はバッチでEmbeddingを生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Service は1ドキュメントの取り込み（抽出→分割→埋め込み→保存）を統括する
type Service struct {
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	store     vector.Store
	docs      DocumentRepository
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい取り込みサービスを作成する
func NewService(
	extractor Extractor,
	chunker Chunker,
	embedder Embedder,
	store vector.Store,
	docs DocumentRepository,
	opts ...ServiceOption,
) *Service {
	svc := &Service{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		docs:      docs,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Ingest は1ファイルを取り込む
//
// 抽出・分割・埋め込みのいずれかが失敗した場合、ベクトルは一切書き込まれず
// ドキュメントレコードも作成されない。保存が成功した後にのみ ChunkCount と
// Indexed=true を持つレコードを作成する。同じチャンク構成での再取り込みは
// upsert の冪等性により安全に行える。
func (s *Service) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	fileID := params.FileID
	if fileID == "" {
		fileID = uuid.NewString()
	}

	// 1. テキスト抽出
	text, err := s.extractor.Extract(ctx, params.Content, params.DeclaredType)
	if err != nil {
		return nil, err
	}

	// 2. チャンク分割
	pieces := s.chunker.Chunk(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced (file=%s)", ErrExtractionFailed, params.Name)
	}

	return s.indexPieces(ctx, fileID, params, pieces)
}

// indexPieces はチャンク列の埋め込み生成・保存・ドキュメント作成を行う
// 取り込みの後半（埋め込み以降）を Ingest とバルクパイプラインで共有する
func (s *Service) indexPieces(ctx context.Context, fileID string, params IngestParams, pieces []chunk.Piece) (*IngestResult, error) {
	// 3. 埋め込み生成
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
	}

	uploadTime := time.Now().UTC()

	// 4. ベクトル保存（1ファイル分を単一トランザクションで）
	records := make([]*vector.Record, len(pieces))
	for i, piece := range pieces {
		records[i] = &vector.Record{
			ID:         vector.ChunkID(fileID, piece.Index),
			FileID:     fileID,
			ChunkIndex: piece.Index,
			Text:       piece.Text,
			TextSize:   len([]rune(piece.Text)),
			Embedding:  vectors[i],
			Metadata: map[string]any{
				"file_id":     fileID,
				"chunk_index": piece.Index,
				"file_name":   params.Name,
				"file_type":   params.DeclaredType,
				"uploaded_by": params.UploadedBy,
				"upload_date": uploadTime.Format(time.RFC3339),
				"description": params.Description,
				"tokens":      piece.Tokens,
			},
		}
	}
	if err := s.store.Upsert(ctx, fileID, records); err != nil {
		return nil, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	// 5. ドキュメントレコードの作成（保存成功後にのみ indexed=true）
	doc := &Document{
		FileID:       fileID,
		Name:         params.Name,
		DeclaredType: params.DeclaredType,
		SizeBytes:    int64(len(params.Content)),
		ChunkCount:   len(pieces),
		UploadTime:   uploadTime,
		UploadedBy:   params.UploadedBy,
		Description:  params.Description,
		Indexed:      true,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.Info("ファイルを取り込み",
		"fileID", fileID,
		"name", params.Name,
		"chunks", len(pieces),
	)

	return &IngestResult{
		FileID:     fileID,
		ChunkCount: len(pieces),
		Indexed:    true,
	}, nil
}

// GetDocument は fileID でドキュメントを取得する
func (s *Service) GetDocument(ctx context.Context, fileID string) (*Document, error) {
	opt, err := s.docs.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc, ok := opt.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, fileID)
	}
	return doc, nil
}

// ListDocuments はドキュメント一覧と総件数を返す
func (s *Service) ListDocuments(ctx context.Context, filter ListFilter, offset, limit int) ([]*Document, int, error) {
	if limit <= 0 {
		limit = 20
	}
	docs, total, err := s.docs.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

// DeleteFile はファイルの全パッセージとドキュメントレコードを削除する
// パッセージがドキュメントより生き残ることはない
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	opt, err := s.docs.GetByFileID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if opt.IsAbsent() {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, fileID)
	}

	// ベクトル削除は冪等（対象が無くても成功する）
	if err := s.store.DeleteByFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	if _, err := s.docs.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	s.logger.Info("ファイルを削除", "fileID", fileID)
	return nil
}
