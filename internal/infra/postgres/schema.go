package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Init はpgvector拡張の有効化とテーブル・インデックスの作成を行う
//
// dimension はベクトル列の次元数。既存テーブルの次元とは照合しないため、
// 次元の異なるプロバイダへ切り替える場合はテーブルの再作成が必要になる。
func Init(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension: %d", dimension)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			chunk_id UUID PRIMARY KEY,
			file_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			content_size INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (file_id, chunk_index)
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_file_id ON document_chunks (file_id)`,
		`CREATE TABLE IF NOT EXISTS documents (
			file_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			declared_type TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			chunk_count INTEGER NOT NULL,
			uploaded_by TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			indexed BOOLEAN NOT NULL DEFAULT FALSE,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}
