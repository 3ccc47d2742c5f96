package vector

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestChunkIDIsDeterministic(t *testing.T) {
	id1 := ChunkID("file-1", 0)
	id2 := ChunkID("file-1", 0)
	assert.Equal(t, id1, id2)
}

func TestChunkIDVariesByFileAndIndex(t *testing.T) {
	base := ChunkID("file-1", 0)
	assert.NotEqual(t, base, ChunkID("file-1", 1))
	assert.NotEqual(t, base, ChunkID("file-2", 0))

	// 連結の曖昧さでIDが衝突しないこと
	assert.NotEqual(t, ChunkID("file_1", 2), ChunkID("file", 12))
}

func TestChunkIDIsValidUUID(t *testing.T) {
	id := ChunkID("file-1", 3)
	assert.NotEmpty(t, id.String())
	assert.Equal(t, uuid.Version(5), id.Version()) // SHA1ベースのUUIDv5
}
