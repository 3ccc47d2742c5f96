package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/jinford/doc-rag/internal/core/vector"
)

const (
	// DefaultCollection はデフォルトのコレクション名
	DefaultCollection = "document_chunks"

	upsertBatchSize = 100
)

// ペイロードの予約キー。これ以外のキーはチャンクのメタデータとして扱う
const (
	payloadFileID      = "file_id"
	payloadChunkIndex  = "chunk_index"
	payloadContent     = "content"
	payloadContentSize = "content_size"
	payloadCreatedAt   = "created_at"
)

// Store は core/vector.Store を実装する Qdrant ストア
//
// PostgreSQL + pgvector の代替バックエンド。gRPC クライアントを使い、
// 起動時にヘルスチェックとコレクション作成を行う。
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// StoreOption はStoreのオプション設定
type StoreOption func(*Store)

// WithCollection はコレクション名を設定する
func WithCollection(name string) StoreOption {
	return func(s *Store) {
		s.collection = name
	}
}

// WithStoreLogger はロガーを設定する
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore は新しいStoreを作成する
//
// 接続確認をリトライ付きで行い、到達できない場合は即座に失敗する。
// コレクションが存在しない場合はコサイン距離・dimension 次元で作成する。
func NewStore(ctx context.Context, host string, port int, dimension int, opts ...StoreOption) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: DefaultCollection,
		dimension:  dimension,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return s, nil
}

var _ vector.Store = (*Store)(nil)

// healthCheckWithRetry は指数バックオフ付きで接続確認を行う
// 初期間隔 500ms、最大間隔 10s、最大 30s で打ち切る
func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		result, err := s.client.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// ensureCollection はコレクションとペイロードインデックスを作成する（冪等）
func (s *Store) ensureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// フィルタ対象フィールドのインデックス。無いと絞り込みが大幅に遅くなる
	for _, field := range []string{payloadFileID, "file_type", "uploaded_by"} {
		if _, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// Upsert はファイルのパッセージ群を保存する
// 同じポイントIDは上書きされるため再取り込みは冪等になる
func (s *Store) Upsert(ctx context.Context, fileID string, records []*vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("%w: got %d, want %d (chunk %s)",
				vector.ErrDimensionMismatch, len(r.Embedding), s.dimension, r.ID)
		}
	}

	for i := 0; i < len(records); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(records))
		batch := records[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, r := range batch {
			payload := map[string]any{
				payloadFileID:      fileID,
				payloadChunkIndex:  r.ChunkIndex,
				payloadContent:     r.Text,
				payloadContentSize: r.TextSize,
				payloadCreatedAt:   r.CreatedAt.Format(time.RFC3339),
			}
			for k, v := range r.Metadata {
				if _, reserved := payload[k]; reserved {
					continue
				}
				payload[k] = v
			}
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(r.ID.String()),
				Vectors: qdrant.NewVectors(r.Embedding...),
				Payload: qdrant.NewValueMap(payload),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	s.logger.Debug("チャンクを保存", "fileID", fileID, "count", len(records))
	return nil
}

// upsertWithRetry は指数バックオフ付きで upsert を行う
func (s *Store) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}, backoff.WithContext(bo, ctx))
}

// Search はコサイン類似度による近傍検索を実行する
// Qdrant のコサインスコアはそのまま類似度（1 - 距離）として扱える
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int, filter *vector.Filter) ([]*vector.Hit, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			vector.ErrDimensionMismatch, len(queryVector), s.dimension)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]*vector.Hit, 0, len(results))
	for _, result := range results {
		payload := result.Payload

		id, err := uuid.Parse(result.Id.GetUuid())
		if err != nil {
			return nil, fmt.Errorf("failed to parse point id: %w", err)
		}

		metadata := make(map[string]any)
		for k, v := range payload {
			switch k {
			case payloadFileID, payloadChunkIndex, payloadContent, payloadContentSize, payloadCreatedAt:
				continue
			}
			metadata[k] = valueToAny(v)
		}

		hits = append(hits, &vector.Hit{
			ID:         id,
			FileID:     payload[payloadFileID].GetStringValue(),
			ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
			Text:       payload[payloadContent].GetStringValue(),
			Metadata:   metadata,
			Score:      float64(result.Score),
		})
	}

	// 同スコアは chunk_index 昇順に揃える
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})

	return hits, nil
}

// DeleteByFile はファイルの全パッセージを削除する（冪等）
func (s *Store) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadFileID, fileID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	s.logger.Debug("チャンクを削除", "fileID", fileID)
	return nil
}

// Stats はストア全体の統計情報を返す
//
// ユニークファイル数はペイロードをスクロールして数える。
// コレクションが大規模な場合は相応のコストがかかる
func (s *Store) Stats(ctx context.Context) (*vector.Stats, error) {
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}

	files := make(map[string]struct{})
	var offset *qdrant.PointId
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          qdrant.PtrOf(uint32(256)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude(payloadFileID),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			if fileID := p.Payload[payloadFileID].GetStringValue(); fileID != "" {
				files[fileID] = struct{}{}
			}
		}
		if len(points) < 256 {
			break
		}
		offset = points[len(points)-1].Id
	}

	return &vector.Stats{
		TotalVectors: int(total),
		UniqueFiles:  len(files),
		Dimension:    s.dimension,
	}, nil
}

// Close はクライアント接続を閉じる
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// buildFilter は検索フィルタを Qdrant の条件に変換する
func buildFilter(filter *vector.Filter) *qdrant.Filter {
	if filter == nil {
		return nil
	}
	var must []*qdrant.Condition
	if filter.FileID != nil {
		must = append(must, qdrant.NewMatch(payloadFileID, *filter.FileID))
	}
	if filter.DeclaredType != nil {
		must = append(must, qdrant.NewMatch("file_type", *filter.DeclaredType))
	}
	if filter.UploadedBy != nil {
		must = append(must, qdrant.NewMatch("uploaded_by", *filter.UploadedBy))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// valueToAny はQdrantのペイロード値をGoの値に変換する
func valueToAny(v *qdrant.Value) any {
	switch v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return v.GetStringValue()
	case *qdrant.Value_IntegerValue:
		return v.GetIntegerValue()
	case *qdrant.Value_DoubleValue:
		return v.GetDoubleValue()
	case *qdrant.Value_BoolValue:
		return v.GetBoolValue()
	default:
		return nil
	}
}
