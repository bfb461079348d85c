package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagegenio/orchestrator/internal/domain"
)

type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func TestEmbedChunks_BatchesBy10(t *testing.T) {
	chunks := make([]domain.DocumentChunk, 25)
	vectors := map[string][]float64{}
	for i := range chunks {
		chunks[i].Content = string(rune('a' + i))
		vectors[chunks[i].Content] = []float64{float64(i)}
	}

	embedder := &fakeEmbedder{vectors: vectors}
	err := EmbedChunks(context.Background(), embedder, chunks)
	require.NoError(t, err)

	for i, c := range chunks {
		require.Len(t, c.Embedding, 1)
		assert.Equal(t, float64(i), c.Embedding[0])
	}
}

func TestRetrieve_FiltersSortsAndLimits(t *testing.T) {
	docs := []domain.AgentDocument{
		{Chunks: []domain.DocumentChunk{
			{ID: "low", Embedding: []float64{1, 0}},
			{ID: "high", Embedding: []float64{0.99, 0.01}},
			{ID: "orthogonal", Embedding: []float64{0, 1}},
		}},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float64{"brief": {1, 0}}}

	results, err := Retrieve(context.Background(), embedder, "brief", docs, domain.RAGConfig{TopK: 1, SimilarityThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "low", results[0].Chunk.ID)
}
