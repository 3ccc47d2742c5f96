package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/chunk"
	"github.com/jinford/doc-rag/internal/core/vector"
)

// stubChunker は固定サイズでテキストを分割するテスト用チャンカー
type stubChunker struct {
	pieceSize int
}

func (s *stubChunker) Chunk(text string) []chunk.Piece {
	size := s.pieceSize
	if size <= 0 {
		size = 10
	}
	runes := []rune(text)
	var pieces []chunk.Piece
	for i := 0; i*size < len(runes); i++ {
		end := min((i+1)*size, len(runes))
		pieces = append(pieces, chunk.Piece{
			Text:  string(runes[i*size : end]),
			Index: i,
		})
	}
	if pieces == nil {
		return []chunk.Piece{}
	}
	return pieces
}

// stubEmbedder はテスト用の埋め込み生成
type stubEmbedder struct {
	dimension int
	err       error
	calls     int
}

func (s *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, s.dimension)
	}
	return vectors, nil
}

// memoryStore はテスト用のインメモリベクトルストア
type memoryStore struct {
	mu      sync.Mutex
	records map[string][]*vector.Record
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string][]*vector.Record)}
}

func (m *memoryStore) Upsert(ctx context.Context, fileID string, records []*vector.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records[fileID] = records
	return nil
}

func (m *memoryStore) Search(ctx context.Context, queryVector []float32, topK int, filter *vector.Filter) ([]*vector.Hit, error) {
	return []*vector.Hit{}, nil
}

func (m *memoryStore) DeleteByFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, fileID)
	return nil
}

func (m *memoryStore) Stats(ctx context.Context) (*vector.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, recs := range m.records {
		total += len(recs)
	}
	return &vector.Stats{TotalVectors: total, UniqueFiles: len(m.records)}, nil
}

// memoryRepository はテスト用のインメモリドキュメントリポジトリ
type memoryRepository struct {
	mu   sync.Mutex
	docs map[string]*Document
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{docs: make(map[string]*Document)}
}

func (m *memoryRepository) Create(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.FileID] = doc
	return nil
}

func (m *memoryRepository) GetByFileID(ctx context.Context, fileID string) (mo.Option[*Document], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[fileID]
	if !ok {
		return mo.None[*Document](), nil
	}
	return mo.Some(doc), nil
}

func (m *memoryRepository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]*Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []*Document
	for _, doc := range m.docs {
		docs = append(docs, doc)
	}
	return docs, len(docs), nil
}

func (m *memoryRepository) Delete(ctx context.Context, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[fileID]
	delete(m.docs, fileID)
	return ok, nil
}

func newTestService(store *memoryStore, repo *memoryRepository, embedder *stubEmbedder) *Service {
	return NewService(
		NewTextExtractor(),
		&stubChunker{pieceSize: 10},
		embedder,
		store,
		repo,
	)
}

func TestIngestStoresChunksAndDocument(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{dimension: 8})

	result, err := svc.Ingest(context.Background(), IngestParams{
		Name:         "notes.txt",
		DeclaredType: "txt",
		Content:      []byte("this is a test document with enough text for several chunks"),
		UploadedBy:   "tester",
		Description:  "test doc",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.FileID)
	assert.True(t, result.Indexed)
	assert.Greater(t, result.ChunkCount, 1)

	records := store.records[result.FileID]
	require.Len(t, records, result.ChunkCount)
	for i, rec := range records {
		assert.Equal(t, i, rec.ChunkIndex)
		assert.Equal(t, vector.ChunkID(result.FileID, i), rec.ID)
		assert.Equal(t, "notes.txt", rec.Metadata["file_name"])
		assert.Equal(t, "tester", rec.Metadata["uploaded_by"])
	}

	doc, err := svc.GetDocument(context.Background(), result.FileID)
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, doc.ChunkCount)
	assert.True(t, doc.Indexed)
}

func TestIngestKeepsExplicitFileID(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{dimension: 8})

	result, err := svc.Ingest(context.Background(), IngestParams{
		FileID:       "f1",
		Name:         "a.txt",
		DeclaredType: "txt",
		Content:      []byte("short but valid content"),
	})
	require.NoError(t, err)
	assert.Equal(t, "f1", result.FileID)
}

func TestIngestExtractionFailureStoresNothing(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	embedder := &stubEmbedder{dimension: 8}
	svc := newTestService(store, repo, embedder)

	_, err := svc.Ingest(context.Background(), IngestParams{
		Name:         "empty.txt",
		DeclaredType: "txt",
		Content:      []byte("   "),
	})
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Empty(t, store.records)
	assert.Empty(t, repo.docs)
	assert.Zero(t, embedder.calls)
}

func TestIngestEmbeddingFailureStoresNothing(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{err: fmt.Errorf("all providers down")})

	_, err := svc.Ingest(context.Background(), IngestParams{
		Name:         "a.txt",
		DeclaredType: "txt",
		Content:      []byte("some valid content here"),
	})
	require.Error(t, err)
	assert.Empty(t, store.records)
	assert.Empty(t, repo.docs)
}

func TestIngestStorageFailureCreatesNoDocument(t *testing.T) {
	store := newMemoryStore()
	store.err = fmt.Errorf("connection lost")
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{dimension: 8})

	_, err := svc.Ingest(context.Background(), IngestParams{
		Name:         "a.txt",
		DeclaredType: "txt",
		Content:      []byte("some valid content here"),
	})
	require.Error(t, err)
	assert.Empty(t, repo.docs)
}

func TestDeleteFileRemovesVectorsAndDocument(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{dimension: 8})

	result, err := svc.Ingest(context.Background(), IngestParams{
		Name:         "a.txt",
		DeclaredType: "txt",
		Content:      []byte("some valid content here for three chunks"),
	})
	require.NoError(t, err)

	err = svc.DeleteFile(context.Background(), result.FileID)
	require.NoError(t, err)
	assert.Empty(t, store.records)
	assert.Empty(t, repo.docs)
}

func TestDeleteFileNotFound(t *testing.T) {
	svc := newTestService(newMemoryStore(), newMemoryRepository(), &stubEmbedder{dimension: 8})

	err := svc.DeleteFile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestGetDocumentNotFound(t *testing.T) {
	svc := newTestService(newMemoryStore(), newMemoryRepository(), &stubEmbedder{dimension: 8})

	_, err := svc.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}
