package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/doc-rag/internal/core/vector"
)

// Store は core/vector.Store を実装する PostgreSQL + pgvector ストア
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// StoreOption はStoreのオプション設定
type StoreOption func(*Store)

// WithStoreLogger はロガーを設定する
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore は新しいStoreを作成する
//
// dimension はベクトル列の次元数。Upsert時に照合され、
// 一致しない埋め込みは vector.ErrDimensionMismatch で拒否される。
func NewStore(pool *pgxpool.Pool, dimension int, opts ...StoreOption) *Store {
	s := &Store{
		pool:      pool,
		dimension: dimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ vector.Store = (*Store)(nil)

// Upsert はファイルのパッセージ群を単一トランザクションで置き換える
//
// 同一 chunk_id の既存行を削除してから挿入するため、
// 同じファイルの再取り込みは冪等になる。途中で失敗した場合は
// ロールバックされ、部分的に書き込まれた状態は残らない。
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if _, err := tx.Exec(ctx,
			`DELETE FROM document_chunks WHERE chunk_id = $1`,
			r.ID,
		); err != nil {
			return fmt.Errorf("failed to delete existing chunk: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO document_chunks (chunk_id, file_id, chunk_index, content, content_size, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID,
			r.FileID,
			r.ChunkIndex,
			r.Text,
			r.TextSize,
			pgvector.NewVector(r.Embedding),
			r.Metadata,
		); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("チャンクを保存", "fileID", fileID, "count", len(records))

	return nil
}

// Search はコサイン類似度による近傍検索を実行する
//
// スコアは 1 - コサイン距離。スコア降順、同点は chunk_index 昇順で返す。
// 一致がない場合は空のスライスを返す（エラーではない）。
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int, filter *vector.Filter) ([]*vector.Hit, error) {
	query := `SELECT chunk_id, file_id, chunk_index, content, metadata,
		1 - (embedding <=> $1) AS score
		FROM document_chunks`
	args := []any{pgvector.NewVector(queryVector)}

	conditions := ""
	if filter != nil {
		if filter.FileID != nil {
			args = append(args, *filter.FileID)
			conditions += fmt.Sprintf(" AND file_id = $%d", len(args))
		}
		if filter.DeclaredType != nil {
			args = append(args, *filter.DeclaredType)
			conditions += fmt.Sprintf(" AND metadata->>'file_type' = $%d", len(args))
		}
		if filter.UploadedBy != nil {
			args = append(args, *filter.UploadedBy)
			conditions += fmt.Sprintf(" AND metadata->>'uploaded_by' = $%d", len(args))
		}
	}
	if conditions != "" {
		query += " WHERE" + conditions[4:]
	}

	args = append(args, topK)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1, chunk_index LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]*vector.Hit, 0, topK)
	for rows.Next() {
		hit := &vector.Hit{}
		if err := rows.Scan(
			&hit.ID,
			&hit.FileID,
			&hit.ChunkIndex,
			&hit.Text,
			&hit.Metadata,
			&hit.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	return hits, nil
}

// DeleteByFile はファイルの全パッセージを削除する
//
// 該当行がない場合も成功として扱う（冪等）。
func (s *Store) DeleteByFile(ctx context.Context, fileID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE file_id = $1`,
		fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	s.logger.Debug("チャンクを削除", "fileID", fileID, "count", tag.RowsAffected())
	return nil
}

// Stats はストア全体の統計情報を返す
func (s *Store) Stats(ctx context.Context) (*vector.Stats, error) {
	stats := &vector.Stats{Dimension: s.dimension}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT file_id) FROM document_chunks`,
	).Scan(&stats.TotalVectors, &stats.UniqueFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return stats, nil
}
