package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/vector"
)

const testDimension = 3

var testPool *pgxpool.Pool

// TestMain は pgvector 入りの PostgreSQL コンテナを起動してテストを実行する
// Docker が利用できない環境では全テストをスキップする
func TestMain(m *testing.M) {
	dockerPool, err := dockertest.NewPool("")
	if err != nil {
		log.Printf("skipping postgres integration tests: %v", err)
		os.Exit(0)
	}
	if err := dockerPool.Client.Ping(); err != nil {
		log.Printf("skipping postgres integration tests: %v", err)
		os.Exit(0)
	}

	resource, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=docrag",
			"POSTGRES_PASSWORD=docrag",
			"POSTGRES_DB=docrag_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Printf("skipping postgres integration tests: could not start container: %v", err)
		os.Exit(0)
	}

	connString := fmt.Sprintf(
		"host=localhost port=%s user=docrag password=docrag dbname=docrag_test sslmode=disable",
		resource.GetPort("5432/tcp"),
	)

	ctx := context.Background()
	dockerPool.MaxWait = 60 * time.Second
	if err := dockerPool.Retry(func() error {
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		testPool = pool
		return nil
	}); err != nil {
		_ = dockerPool.Purge(resource)
		log.Printf("skipping postgres integration tests: could not connect: %v", err)
		os.Exit(0)
	}

	if err := Init(ctx, testPool, testDimension); err != nil {
		log.Fatalf("failed to initialize schema: %v", err)
	}

	code := m.Run()

	testPool.Close()
	_ = dockerPool.Purge(resource)
	os.Exit(code)
}

func cleanTables(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx, `TRUNCATE document_chunks, documents`)
	require.NoError(t, err)
}

func testRecords(fileID string, embeddings [][]float32) []*vector.Record {
	records := make([]*vector.Record, len(embeddings))
	for i, emb := range embeddings {
		records[i] = &vector.Record{
			ID:         vector.ChunkID(fileID, i),
			FileID:     fileID,
			ChunkIndex: i,
			Text:       fmt.Sprintf("passage %d of %s", i, fileID),
			TextSize:   20,
			Embedding:  emb,
			Metadata: map[string]any{
				"file_name": fileID + ".txt",
				"file_type": "txt",
			},
		}
	}
	return records
}

func TestUpsertAndSelfSimilaritySearch(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewStore(testPool, testDimension)

	embeddings := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	require.NoError(t, store.Upsert(ctx, "f1", testRecords("f1", embeddings)))

	// 保存済みの埋め込みそのもので検索すると自分自身が1位でスコア ≈ 1.0
	hits, err := store.Search(ctx, []float32{0, 1, 0}, 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 1, hits[0].ChunkIndex)
	assert.GreaterOrEqual(t, hits[0].Score, 0.999)
	assert.Equal(t, "f1.txt", hits[0].Metadata["file_name"])

	// スコア降順
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewStore(testPool, testDimension)

	records := testRecords("f1", [][]float32{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, store.Upsert(ctx, "f1", records))
	require.NoError(t, store.Upsert(ctx, "f1", records))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, 1, stats.UniqueFiles)
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewStore(testPool, testDimension)

	records := testRecords("f1", [][]float32{{1, 0, 0, 0}})
	err := store.Upsert(ctx, "f1", records)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalVectors)
}

func TestSearchWithFileFilter(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewStore(testPool, testDimension)

	require.NoError(t, store.Upsert(ctx, "f1", testRecords("f1", [][]float32{{1, 0, 0}})))
	require.NoError(t, store.Upsert(ctx, "f2", testRecords("f2", [][]float32{{1, 0, 0}})))

	fileID := "f2"
	hits, err := store.Search(ctx, []float32{1, 0, 0}, 10, &vector.Filter{FileID: &fileID})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "f2", hits[0].FileID)
}

func TestSearchEmptyStoreReturnsEmpty(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewStore(testPool, testDimension)

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteByFileRemovesAllPassages(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewStore(testPool, testDimension)

	require.NoError(t, store.Upsert(ctx, "f1", testRecords("f1", [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})))

	before, err := store.Stats(ctx)
	require.NoError(t, err)

	require.NoError(t, store.DeleteByFile(ctx, "f1"))

	after, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalVectors-3, after.TotalVectors)

	fileID := "f1"
	hits, err := store.Search(ctx, []float32{1, 0, 0}, 5, &vector.Filter{FileID: &fileID})
	require.NoError(t, err)
	assert.Empty(t, hits)

	// 削除は冪等
	require.NoError(t, store.DeleteByFile(ctx, "f1"))
}

func TestDocumentRepositoryCRUD(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	repo := NewDocumentRepository(testPool)

	doc := &ingestion.Document{
		FileID:       "f1",
		Name:         "report.txt",
		DeclaredType: "txt",
		SizeBytes:    1024,
		ChunkCount:   3,
		UploadTime:   time.Now().UTC().Truncate(time.Second),
		UploadedBy:   "tester",
		Description:  "integration test",
		Indexed:      true,
	}
	require.NoError(t, repo.Create(ctx, doc))

	opt, err := repo.GetByFileID(ctx, "f1")
	require.NoError(t, err)
	got, ok := opt.Get()
	require.True(t, ok)
	assert.Equal(t, "report.txt", got.Name)
	assert.Equal(t, 3, got.ChunkCount)
	assert.True(t, got.Indexed)

	docs, total, err := repo.List(ctx, ingestion.ListFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)

	declaredType := "pdf"
	_, total, err = repo.List(ctx, ingestion.ListFilter{DeclaredType: &declaredType}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	deleted, err := repo.Delete(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, deleted)

	opt, err = repo.GetByFileID(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, opt.IsAbsent())

	deleted, err = repo.Delete(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
