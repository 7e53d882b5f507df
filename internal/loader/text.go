package loader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/burrow-ai/burrow/internal/domain"
)

// TextSourceConfig is the source descriptor for inline text knowledge.
type TextSourceConfig struct {
	Text string `json:"text"`
}

// TextLoader serves knowledge whose content is carried inline in the source
// descriptor (user_input_text).
type TextLoader struct{}

// NewTextLoader creates a new TextLoader instance
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

func (l *TextLoader) Load(ctx context.Context, k *domain.Knowledge) ([]*domain.Document, error) {
	var cfg TextSourceConfig
	if err := json.Unmarshal(k.SourceConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse text source config: %w", err)
	}
	if cfg.Text == "" {
		return nil, fmt.Errorf("text source for knowledge %s is empty", k.KnowledgeID)
	}

	return []*domain.Document{
		{
			Content: cfg.Text,
			Metadata: map[string]string{
				"knowledge_name": k.Name,
				"source_type":    string(k.SourceType),
			},
		},
	}, nil
}
