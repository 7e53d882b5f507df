package domain

import (
	"fmt"
	"time"
)

// Chunk represents one embedded, retrievable fragment produced from a
// Knowledge item. Chunks are written only after their owning task reaches a
// terminal state and are replaced wholesale when the item is re-ingested.
type Chunk struct {
	ChunkID     string
	KnowledgeID string
	TenantID    string
	SpaceID     string
	Content     string
	Embedding   []float32
	ModelName   string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ChunkID == "" {
		return fmt.Errorf("chunk ChunkID is required")
	}

	if c.KnowledgeID == "" {
		return fmt.Errorf("chunk KnowledgeID is required")
	}

	if c.TenantID == "" {
		return fmt.Errorf("chunk TenantID is required")
	}

	if c.Content == "" {
		return fmt.Errorf("chunk Content is required")
	}

	return nil
}

// Document is the raw unit of content a loader produces before chunking and
// embedding.
type Document struct {
	Content  string
	Metadata map[string]string
}
