package rag

import (
	"context"
	"sort"

	"github.com/imagegenio/orchestrator/internal/domain"
)

// EmbeddingBatchSize is the number of chunks embedded per backend call.
const EmbeddingBatchSize = 10

// Embedder turns text into a fixed-length embedding vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedChunks fills in the Embedding field of each chunk, batching calls to
// the embedder EmbeddingBatchSize at a time.
func EmbedChunks(ctx context.Context, embedder Embedder, chunks []domain.DocumentChunk) error {
	for start := 0; start < len(chunks); start += EmbeddingBatchSize {
		end := start + EmbeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}

		for i := range vectors {
			chunks[start+i].Embedding = vectors[i]
		}
	}
	return nil
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk      domain.DocumentChunk
	Similarity float64
}

// Retrieve embeds query, scores it against every chunk in documents, filters
// by similarityThreshold, sorts descending, and returns the top K.
func Retrieve(ctx context.Context, embedder Embedder, query string, documents []domain.AgentDocument, cfg domain.RAGConfig) ([]ScoredChunk, error) {
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	var scored []ScoredChunk
	for _, doc := range documents {
		for _, chunk := range doc.Chunks {
			sim, err := CosineSimilarity(queryVec, chunk.Embedding)
			if err != nil {
				return nil, err
			}
			if sim >= cfg.SimilarityThreshold {
				scored = append(scored, ScoredChunk{Chunk: chunk, Similarity: sim})
			}
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	topK := cfg.TopK
	if topK <= 0 {
		topK = domain.DefaultRAGConfig().TopK
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}

	return scored, nil
}
