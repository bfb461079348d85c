package rag

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_EmptyText(t *testing.T) {
	assert.Nil(t, Chunk("   \n\t  "))
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	text := "A short piece of text."
	chunks := Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunk_NoSentenceBoundaryNeverExceedsChunkSize(t *testing.T) {
	text := strings.Repeat("a", 5000)
	chunks := Chunk(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkSize)
	}
}

func TestChunk_PrefersSentenceBoundaryInSecondHalf(t *testing.T) {
	sentence := strings.Repeat("word ", 10) + "."
	text := strings.Repeat(sentence, 40)
	chunks := Chunk(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks[:len(chunks)-1] {
		trimmed := strings.TrimRight(c, " ")
		last := trimmed[len(trimmed)-1]
		assert.True(t, last == '.' || last == ' ' || c[len(c)-1] == ' ',
			"chunk should end at a sentence or whitespace boundary, got: %q", c[len(c)-20:])
	}
}

func TestChunk_Terminates(t *testing.T) {
	text := strings.Repeat("x", 100000)
	done := make(chan []string, 1)
	go func() { done <- Chunk(text) }()

	select {
	case chunks := <-done:
		assert.NotEmpty(t, chunks)
	case <-time.After(2 * time.Second):
		t.Fatal("Chunk did not terminate")
	}
}
