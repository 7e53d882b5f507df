package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/burrow-ai/burrow/internal/domain"
)

// MockChunkSearchRepository is a mock implementation of ChunkSearchRepository
type MockChunkSearchRepository struct {
	mock.Mock
}

func (m *MockChunkSearchRepository) Search(ctx context.Context, tenantID, spaceID string, embedding []float32, limit int) ([]*RetrievedChunk, error) {
	args := m.Called(ctx, tenantID, spaceID, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RetrievedChunk), args.Error(1)
}

// MockQueryEmbedder is a mock implementation of QueryEmbedder
type MockQueryEmbedder struct {
	mock.Mock
}

func (m *MockQueryEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// recordingCounter records Incr calls.
type recordingCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newRecordingCounter() *recordingCounter {
	return &recordingCounter{counts: make(map[string]int64)}
}

func (c *recordingCounter) Incr(knowledgeID string, count int64) {
	c.mu.Lock()
	c.counts[knowledgeID] += count
	c.mu.Unlock()
}

// TestRetrievalService_Search verifies the query is embedded, hits are
// returned, and each contributing knowledge item is counted once per chunk.
func TestRetrievalService_Search(t *testing.T) {
	mockRepo := new(MockChunkSearchRepository)
	mockEmbedder := new(MockQueryEmbedder)
	counter := newRecordingCounter()

	embedding := []float32{0.1, 0.2, 0.3}
	hits := []*RetrievedChunk{
		{Chunk: &domain.Chunk{ChunkID: "c1", KnowledgeID: "k1"}, Score: 0.9},
		{Chunk: &domain.Chunk{ChunkID: "c2", KnowledgeID: "k1"}, Score: 0.8},
		{Chunk: &domain.Chunk{ChunkID: "c3", KnowledgeID: "k2"}, Score: 0.7},
	}

	mockEmbedder.On("GenerateEmbedding", mock.Anything, "what is burrow?").Return(embedding, nil)
	mockRepo.On("Search", mock.Anything, "tenant-1", "space-1", embedding, 5).Return(hits, nil)

	svc := NewRetrievalService(mockRepo, mockEmbedder, counter)

	results, err := svc.Search(context.Background(), SearchInput{
		TenantID: "tenant-1",
		SpaceID:  "space-1",
		Question: "what is burrow?",
		TopK:     5,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	assert.Equal(t, int64(2), counter.counts["k1"])
	assert.Equal(t, int64(1), counter.counts["k2"])
	mockRepo.AssertExpectations(t)
	mockEmbedder.AssertExpectations(t)
}

// TestRetrievalService_Search_EmptyQuestion verifies validation.
func TestRetrievalService_Search_EmptyQuestion(t *testing.T) {
	svc := NewRetrievalService(new(MockChunkSearchRepository), new(MockQueryEmbedder), newRecordingCounter())

	_, err := svc.Search(context.Background(), SearchInput{TenantID: "tenant-1", SpaceID: "space-1"})
	assert.Error(t, err)
}

// TestRetrievalService_Search_EmbeddingError verifies provider failures
// propagate and nothing is counted.
func TestRetrievalService_Search_EmbeddingError(t *testing.T) {
	mockRepo := new(MockChunkSearchRepository)
	mockEmbedder := new(MockQueryEmbedder)
	counter := newRecordingCounter()

	mockEmbedder.On("GenerateEmbedding", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	svc := NewRetrievalService(mockRepo, mockEmbedder, counter)

	_, err := svc.Search(context.Background(), SearchInput{
		TenantID: "tenant-1",
		SpaceID:  "space-1",
		Question: "anything",
	})
	assert.Error(t, err)
	assert.Empty(t, counter.counts)
	mockRepo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
