/**
 * Chunker Tests
 */

package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunksShortText(t *testing.T) {
	chunks := SplitChunks("short text", 2000)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestSplitChunksEmpty(t *testing.T) {
	assert.Nil(t, SplitChunks("", 2000))
	assert.Nil(t, SplitChunks("   \n\t  ", 2000))
}

func TestSplitChunksRespectsSizeAndWordBoundaries(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 100)
	chunks := SplitChunks(text, 50)

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 50, "chunk %d exceeds size", i)
		assert.False(t, strings.HasPrefix(chunk, " "))
		assert.False(t, strings.HasSuffix(chunk, " "))
	}

	// No word may be split across chunks.
	rejoined := strings.Fields(strings.Join(chunks, " "))
	assert.Equal(t, strings.Fields(text), rejoined)
}

func TestSplitChunksOverlongWord(t *testing.T) {
	word := strings.Repeat("x", 80)
	chunks := SplitChunks("start "+word+" end", 20)

	require.Len(t, chunks, 3)
	assert.Equal(t, "start", chunks[0])
	assert.Equal(t, word, chunks[1])
	assert.Equal(t, "end", chunks[2])
}

func TestSplitChunksDeterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 40)
	first := SplitChunks(text, 64)
	second := SplitChunks(text, 64)
	assert.Equal(t, first, second)
}
