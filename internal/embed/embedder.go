// Package embed turns loaded documents into embedded chunks.
package embed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/burrow-ai/burrow/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Embedder chunks documents and produces embedded chunks for a knowledge
// item.
type Embedder struct {
	client EmbeddingClient
	cfg    ChunkConfig
}

// NewEmbedder creates an Embedder with default chunking.
func NewEmbedder(client EmbeddingClient) *Embedder {
	return NewEmbedderWithConfig(client, DefaultChunkConfig())
}

// NewEmbedderWithConfig creates an Embedder with explicit chunking.
func NewEmbedderWithConfig(client EmbeddingClient, cfg ChunkConfig) *Embedder {
	return &Embedder{
		client: client,
		cfg:    cfg,
	}
}

// Embed splits the documents and embeds every chunk. Chunks inherit the
// knowledge item's tenant and space so they can be cascaded with it.
func (e *Embedder) Embed(ctx context.Context, k *domain.Knowledge, docs []*domain.Document) ([]*domain.Chunk, error) {
	now := time.Now().UTC()

	var chunks []*domain.Chunk
	for _, doc := range docs {
		pieces := chunkText(doc.Content, e.cfg)
		for i, piece := range pieces {
			embedding, err := e.client.GenerateEmbedding(ctx, piece)
			if err != nil {
				return nil, fmt.Errorf("failed to embed chunk %d of knowledge %s: %w", i, k.KnowledgeID, err)
			}

			metadata := map[string]string{
				"knowledge_name": k.Name,
				"chunk_index":    strconv.Itoa(i),
			}
			for key, value := range doc.Metadata {
				metadata[key] = value
			}

			chunks = append(chunks, &domain.Chunk{
				ChunkID:     uuid.NewString(),
				KnowledgeID: k.KnowledgeID,
				TenantID:    k.TenantID,
				SpaceID:     k.SpaceID,
				Content:     piece,
				Embedding:   embedding,
				ModelName:   e.client.ModelName(),
				Metadata:    metadata,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
	}

	return chunks, nil
}
