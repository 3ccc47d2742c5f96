package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/vector"
)

// stubEmbedder はテスト用のクエリ埋め込み
type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

// stubStore は固定のヒットを返すテスト用ストア
type stubStore struct {
	hits []*vector.Hit
	err  error

	lastTopK   int
	lastFilter *vector.Filter
}

func (s *stubStore) Upsert(ctx context.Context, fileID string, records []*vector.Record) error {
	return nil
}

func (s *stubStore) Search(ctx context.Context, queryVector []float32, topK int, filter *vector.Filter) ([]*vector.Hit, error) {
	s.lastTopK = topK
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func (s *stubStore) DeleteByFile(ctx context.Context, fileID string) error { return nil }

func (s *stubStore) Stats(ctx context.Context) (*vector.Stats, error) {
	return &vector.Stats{}, nil
}

func hit(fileID, fileName string, index int, text string, score float64) *vector.Hit {
	return &vector.Hit{
		ID:         vector.ChunkID(fileID, index),
		FileID:     fileID,
		ChunkIndex: index,
		Text:       text,
		Score:      score,
		Metadata:   map[string]any{"file_name": fileName},
	}
}

func TestRetrieveAssemblesContextWithCitations(t *testing.T) {
	store := &stubStore{hits: []*vector.Hit{
		hit("f1", "report.txt", 0, "first passage", 0.92),
		hit("f2", "notes.txt", 3, "second passage", 0.85),
		hit("f1", "report.txt", 4, "third passage", 0.71),
	}}
	svc := NewService(&stubEmbedder{}, store)

	result, err := svc.Retrieve(context.Background(), "what is this about", 5, nil)
	require.NoError(t, err)

	assert.Contains(t, result.ContextText, "[Source 1 - report.txt (Score: 0.92)]:")
	assert.Contains(t, result.ContextText, "[Source 2 - notes.txt (Score: 0.85)]:")
	assert.Contains(t, result.ContextText, "[Source 3 - report.txt (Score: 0.71)]:")
	assert.Contains(t, result.ContextText, "first passage")

	// ソースは重複なしで初出順
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "f1", result.Sources[0].FileID)
	assert.Equal(t, "report.txt", result.Sources[0].Name)
	assert.Equal(t, "f2", result.Sources[1].FileID)

	require.Len(t, result.Passages, 3)
	assert.Equal(t, 0.92, result.Passages[0].Score)
}

func TestRetrieveEmptyStoreIsNotAnError(t *testing.T) {
	store := &stubStore{hits: []*vector.Hit{}}
	svc := NewService(&stubEmbedder{}, store)

	result, err := svc.Retrieve(context.Background(), "unrelated query", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, result.ContextText)
	assert.Empty(t, result.Sources)
	assert.Empty(t, result.Passages)
}

func TestRetrieveDefaultsTopK(t *testing.T) {
	store := &stubStore{hits: []*vector.Hit{}}
	svc := NewService(&stubEmbedder{}, store)

	_, err := svc.Retrieve(context.Background(), "query", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, store.lastTopK)
}

func TestRetrievePassesFilter(t *testing.T) {
	store := &stubStore{hits: []*vector.Hit{}}
	svc := NewService(&stubEmbedder{}, store)

	fileID := "f1"
	_, err := svc.Retrieve(context.Background(), "query", 3, &vector.Filter{FileID: &fileID})
	require.NoError(t, err)
	require.NotNil(t, store.lastFilter)
	assert.Equal(t, "f1", *store.lastFilter.FileID)
}

func TestRetrieveRequiresQuery(t *testing.T) {
	svc := NewService(&stubEmbedder{}, &stubStore{})

	_, err := svc.Retrieve(context.Background(), "", 5, nil)
	assert.Error(t, err)
}

func TestRetrieveEmbedFailure(t *testing.T) {
	svc := NewService(&stubEmbedder{err: fmt.Errorf("providers down")}, &stubStore{})

	_, err := svc.Retrieve(context.Background(), "query", 5, nil)
	assert.Error(t, err)
}

func TestRetrieveUnknownFileName(t *testing.T) {
	store := &stubStore{hits: []*vector.Hit{
		{FileID: "f1", ChunkIndex: 0, Text: "body", Score: 0.5},
	}}
	svc := NewService(&stubEmbedder{}, store)

	result, err := svc.Retrieve(context.Background(), "query", 5, nil)
	require.NoError(t, err)
	assert.Contains(t, result.ContextText, "[Source 1 - Unknown (Score: 0.50)]:")
}

func TestBuildContextEmpty(t *testing.T) {
	assert.Empty(t, BuildContext(nil))
	assert.Empty(t, BuildContext([]Passage{}))
}
