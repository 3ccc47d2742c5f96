package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBySectionsMarkdownHeaders(t *testing.T) {
	c, err := NewChunker()
	require.NoError(t, err)

	text := `# Introduction
This is the intro.

# Details
More content here.
Second line.

# Conclusion
The end.`

	sections := c.ChunkBySections(text, nil)
	require.Len(t, sections, 3)
	assert.Contains(t, sections[0].Text, "Introduction")
	assert.Contains(t, sections[1].Text, "Details")
	assert.Contains(t, sections[2].Text, "Conclusion")
	for i, s := range sections {
		assert.Equal(t, i, s.Index)
	}
}

func TestChunkBySectionsNumberedHeaders(t *testing.T) {
	c, err := NewChunker()
	require.NoError(t, err)

	text := `1. First section
content one

2. Second section
content two`

	sections := c.ChunkBySections(text, nil)
	require.Len(t, sections, 2)
}

func TestChunkBySectionsNoHeaders(t *testing.T) {
	c, err := NewChunker()
	require.NoError(t, err)

	text := "just a plain paragraph\nwith two lines"
	sections := c.ChunkBySections(text, nil)
	require.Len(t, sections, 1)
	assert.Contains(t, sections[0].Text, "plain paragraph")
}

func TestChunkBySectionsEmptyInput(t *testing.T) {
	c, err := NewChunker()
	require.NoError(t, err)

	assert.Empty(t, c.ChunkBySections("", nil))
	assert.Empty(t, c.ChunkBySections("   \n  ", nil))
}
