package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// DocumentRepository は core/ingestion.DocumentRepository を実装する PostgreSQL リポジトリ
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository は新しい DocumentRepository を返す
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

var _ ingestion.DocumentRepository = (*DocumentRepository)(nil)

// Create はドキュメントレコードを作成する
// 同じ fileID の既存レコードは再取り込みとみなして上書きする
func (r *DocumentRepository) Create(ctx context.Context, doc *ingestion.Document) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO documents (file_id, name, declared_type, size_bytes, chunk_count, uploaded_by, description, indexed, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (file_id) DO UPDATE SET
			name = EXCLUDED.name,
			declared_type = EXCLUDED.declared_type,
			size_bytes = EXCLUDED.size_bytes,
			chunk_count = EXCLUDED.chunk_count,
			uploaded_by = EXCLUDED.uploaded_by,
			description = EXCLUDED.description,
			indexed = EXCLUDED.indexed,
			uploaded_at = EXCLUDED.uploaded_at`,
		doc.FileID,
		doc.Name,
		doc.DeclaredType,
		doc.SizeBytes,
		doc.ChunkCount,
		doc.UploadedBy,
		doc.Description,
		doc.Indexed,
		doc.UploadTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByFileID は fileID でドキュメントを取得する
func (r *DocumentRepository) GetByFileID(ctx context.Context, fileID string) (mo.Option[*ingestion.Document], error) {
	doc := &ingestion.Document{}
	err := r.pool.QueryRow(ctx,
		`SELECT file_id, name, declared_type, size_bytes, chunk_count, uploaded_by, description, indexed, uploaded_at
		 FROM documents WHERE file_id = $1`,
		fileID,
	).Scan(
		&doc.FileID,
		&doc.Name,
		&doc.DeclaredType,
		&doc.SizeBytes,
		&doc.ChunkCount,
		&doc.UploadedBy,
		&doc.Description,
		&doc.Indexed,
		&doc.UploadTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[*ingestion.Document](), nil
	}
	if err != nil {
		return mo.None[*ingestion.Document](), fmt.Errorf("failed to get document: %w", err)
	}
	return mo.Some(doc), nil
}

// List はドキュメント一覧をアップロード日時の降順で返す
// 2番目の戻り値はフィルタ適用後の総件数
func (r *DocumentRepository) List(ctx context.Context, filter ingestion.ListFilter, offset, limit int) ([]*ingestion.Document, int, error) {
	where := ""
	args := []any{}
	if filter.DeclaredType != nil {
		args = append(args, *filter.DeclaredType)
		where += fmt.Sprintf(" AND declared_type = $%d", len(args))
	}
	if filter.UploadedBy != nil {
		args = append(args, *filter.UploadedBy)
		where += fmt.Sprintf(" AND uploaded_by = $%d", len(args))
	}
	if where != "" {
		where = " WHERE" + where[4:]
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT file_id, name, declared_type, size_bytes, chunk_count, uploaded_by, description, indexed, uploaded_at
		 FROM documents%s ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*ingestion.Document, 0, limit)
	for rows.Next() {
		doc := &ingestion.Document{}
		if err := rows.Scan(
			&doc.FileID,
			&doc.Name,
			&doc.DeclaredType,
			&doc.SizeBytes,
			&doc.ChunkCount,
			&doc.UploadedBy,
			&doc.Description,
			&doc.Indexed,
			&doc.UploadTime,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return docs, total, nil
}

// Delete はドキュメントレコードを削除する
func (r *DocumentRepository) Delete(ctx context.Context, fileID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM documents WHERE file_id = $1`,
		fileID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
