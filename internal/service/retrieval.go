package service

import (
	"context"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/telemetry"
)

// RetrievedChunk is one similarity search hit with its score.
type RetrievedChunk struct {
	Chunk *domain.Chunk
	Score float64
}

// ChunkSearchRepository runs vector similarity search over persisted chunks.
type ChunkSearchRepository interface {
	Search(ctx context.Context, tenantID, spaceID string, embedding []float32, limit int) ([]*RetrievedChunk, error)
}

// QueryEmbedder embeds retrieval queries.
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// HitCounter records retrieval hits per knowledge item without blocking the
// query path.
type HitCounter interface {
	Incr(knowledgeID string, count int64)
}

// RetrievalService answers similarity queries and feeds the hit counter.
type RetrievalService struct {
	chunkRepo ChunkSearchRepository
	embedder  QueryEmbedder
	counter   HitCounter
}

func NewRetrievalService(chunkRepo ChunkSearchRepository, embedder QueryEmbedder, counter HitCounter) *RetrievalService {
	return &RetrievalService{
		chunkRepo: chunkRepo,
		embedder:  embedder,
		counter:   counter,
	}
}

// SearchInput describes one retrieval query.
type SearchInput struct {
	TenantID string
	SpaceID  string
	Question string
	TopK     int
}

// Search embeds the question, returns the nearest chunks, and records one hit
// per contributing knowledge item.
func (s *RetrievalService) Search(ctx context.Context, input SearchInput) ([]*RetrievedChunk, error) {
	if input.Question == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "question is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Search", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		SpaceID:   input.SpaceID,
		Operation: "search",
	})
	defer span.End()

	embedding, err := s.embedder.GenerateEmbedding(ctx, input.Question)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	hits, err := s.chunkRepo.Search(ctx, input.TenantID, input.SpaceID, embedding, input.TopK)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	perKnowledge := make(map[string]int64)
	for _, hit := range hits {
		perKnowledge[hit.Chunk.KnowledgeID]++
	}
	for knowledgeID, count := range perKnowledge {
		s.counter.Incr(knowledgeID, count)
	}

	return hits, nil
}
