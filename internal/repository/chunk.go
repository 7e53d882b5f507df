package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/service"
)

// ChunkRepository handles persistence and similarity search of embedded
// chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// SaveChunks inserts the chunks in order.
func (r *ChunkRepository) SaveChunks(ctx context.Context, chunks []*domain.Chunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks
				(chunk_id, knowledge_id, tenant_id, space_id, content, embedding, model_name, metadata, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ChunkID, c.KnowledgeID, c.TenantID, c.SpaceID, c.Content,
			pgvector.NewVector(c.Embedding), c.ModelName, c.Metadata, createdAt, updatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteByKnowledge removes every chunk belonging to a knowledge item.
func (r *ChunkRepository) DeleteByKnowledge(ctx context.Context, knowledgeID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE knowledge_id = $1`, knowledgeID)
	return err
}

func (r *ChunkRepository) GetByID(ctx context.Context, tenantID, chunkID string) (*domain.Chunk, error) {
	var c domain.Chunk
	var vec pgvector.Vector
	err := r.db.QueryRow(ctx,
		`SELECT chunk_id, knowledge_id, tenant_id, space_id, content, embedding, model_name, metadata, created_at, updated_at
		 FROM chunks WHERE tenant_id = $1 AND chunk_id = $2`,
		tenantID, chunkID,
	).Scan(&c.ChunkID, &c.KnowledgeID, &c.TenantID, &c.SpaceID, &c.Content, &vec, &c.ModelName, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	c.Embedding = vec.Slice()
	return &c, nil
}

// Search returns the chunks nearest to the query embedding within a tenant's
// space, ordered by similarity. Chunks of disabled knowledge are excluded.
func (r *ChunkRepository) Search(ctx context.Context, tenantID, spaceID string, embedding []float32, limit int) ([]*service.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.chunk_id, c.knowledge_id, c.tenant_id, c.space_id, c.content, c.model_name, c.metadata, c.created_at, c.updated_at,
		        1.0 / (1.0 + (c.embedding <=> $1)) AS score
		 FROM chunks c
		 JOIN knowledge k ON k.knowledge_id = c.knowledge_id
		 WHERE c.tenant_id = $2 AND c.space_id = $3 AND k.enabled
		 ORDER BY score DESC
		 LIMIT $4`,
		pgvector.NewVector(embedding), tenantID, spaceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.RetrievedChunk
	for rows.Next() {
		var c domain.Chunk
		var score float64
		if err := rows.Scan(&c.ChunkID, &c.KnowledgeID, &c.TenantID, &c.SpaceID, &c.Content,
			&c.ModelName, &c.Metadata, &c.CreatedAt, &c.UpdatedAt, &score); err != nil {
			return nil, err
		}
		results = append(results, &service.RetrievedChunk{Chunk: &c, Score: score})
	}
	return results, rows.Err()
}
