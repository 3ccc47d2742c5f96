package ingestion

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams(name, content string) IngestParams {
	return IngestParams{
		Name:         name,
		DeclaredType: "txt",
		Content:      []byte(content),
	}
}

func TestPipelineIngestsAllFiles(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{dimension: 8})

	pipeline := NewPipeline(svc, nil, nil)
	stats, err := pipeline.Run(context.Background(), []IngestParams{
		testParams("a.txt", "content of the first file"),
		testParams("b.txt", "content of the second file"),
		testParams("c.txt", "content of the third file"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ProcessedFiles)
	assert.Zero(t, stats.FailedFiles)
	assert.Positive(t, stats.TotalChunks)
	assert.Len(t, repo.docs, 3)
	assert.Len(t, store.records, 3)
}

func TestPipelineContinuesAfterFileFailure(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{dimension: 8})

	pipeline := NewPipeline(svc, nil, nil)
	stats, err := pipeline.Run(context.Background(), []IngestParams{
		testParams("good.txt", "valid content"),
		testParams("empty.txt", "   "),
		testParams("also-good.txt", "more valid content"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ProcessedFiles)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.Len(t, repo.docs, 2)
}

func TestPipelineFailFastAbortsOnError(t *testing.T) {
	store := newMemoryStore()
	repo := newMemoryRepository()
	svc := newTestService(store, repo, &stubEmbedder{err: fmt.Errorf("providers down")})

	config := DefaultPipelineConfig()
	config.FailFast = true

	pipeline := NewPipeline(svc, config, nil)
	files := make([]IngestParams, 10)
	for i := range files {
		files[i] = testParams(fmt.Sprintf("f%d.txt", i), "valid content for this file")
	}

	stats, err := pipeline.Run(context.Background(), files)
	require.Error(t, err)
	assert.Zero(t, stats.ProcessedFiles)
	assert.Empty(t, repo.docs)
}

func TestPipelineEmptyInput(t *testing.T) {
	svc := newTestService(newMemoryStore(), newMemoryRepository(), &stubEmbedder{dimension: 8})

	pipeline := NewPipeline(svc, nil, nil)
	stats, err := pipeline.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.ProcessedFiles)
	assert.Zero(t, stats.TotalChunks)
}

func TestDefaultPipelineConfig(t *testing.T) {
	config := DefaultPipelineConfig()
	assert.Equal(t, DefaultChunkWorkerCount, config.ChunkWorkerCount)
	assert.Equal(t, DefaultEmbedWorkerCount, config.EmbedWorkerCount)
	assert.False(t, config.FailFast)
}
