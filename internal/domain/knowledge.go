package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// KnowledgeSourceType identifies where a knowledge item's content comes from.
// It selects the loader implementation at runtime.
type KnowledgeSourceType string

const (
	SourceTypeUserInputText KnowledgeSourceType = "user_input_text"
	SourceTypeGithubRepo    KnowledgeSourceType = "github_repo"
	SourceTypeGithubFile    KnowledgeSourceType = "github_file"
	SourceTypeS3Object      KnowledgeSourceType = "s3_object"
)

// KnowledgeType represents the content type of a knowledge item
type KnowledgeType string

const (
	KnowledgeTypeText     KnowledgeType = "text"
	KnowledgeTypeMarkdown KnowledgeType = "markdown"
	// KnowledgeTypeFolder marks a container item (e.g. a repository). Folders
	// are decomposed into child items and are never processed directly.
	KnowledgeTypeFolder KnowledgeType = "folder"
)

// Knowledge represents one ingestible content unit tracked by the system.
// (TenantID, KnowledgeID) is globally unique. FileSHA is the content identity
// used by reconciliation; FileSize is the admission-control cost unit.
type Knowledge struct {
	KnowledgeID    string
	TenantID       string
	SpaceID        string
	ParentID       string // set for items decomposed from a container item
	Name           string
	SourceType     KnowledgeSourceType
	Type           KnowledgeType
	SourceConfig   json.RawMessage // opaque, loader-specific
	FileSHA        string
	FileSize       int64
	Enabled        bool
	EmbeddingModel string
	RetrievalCount int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsContainer reports whether the item is decomposed into children rather
// than ingested directly.
func (k *Knowledge) IsContainer() bool {
	return k.Type == KnowledgeTypeFolder
}

// NewKnowledge creates a new Knowledge instance
func NewKnowledge(
	knowledgeID, tenantID, spaceID, name string,
	sourceType KnowledgeSourceType,
	knowledgeType KnowledgeType,
	sourceConfig json.RawMessage,
	fileSHA string,
	fileSize int64,
	createdAt time.Time,
) *Knowledge {
	return &Knowledge{
		KnowledgeID:  knowledgeID,
		TenantID:     tenantID,
		SpaceID:      spaceID,
		Name:         name,
		SourceType:   sourceType,
		Type:         knowledgeType,
		SourceConfig: sourceConfig,
		FileSHA:      fileSHA,
		FileSize:     fileSize,
		Enabled:      true,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// ValidateKnowledge validates a Knowledge instance
func ValidateKnowledge(k *Knowledge) error {
	if k == nil {
		return fmt.Errorf("knowledge cannot be nil")
	}

	if k.KnowledgeID == "" {
		return fmt.Errorf("knowledge KnowledgeID is required")
	}

	if k.TenantID == "" {
		return fmt.Errorf("knowledge TenantID is required")
	}

	if k.SpaceID == "" {
		return fmt.Errorf("knowledge SpaceID is required")
	}

	if k.Name == "" {
		return fmt.Errorf("knowledge Name is required")
	}

	if !isValidSourceType(k.SourceType) {
		return fmt.Errorf("knowledge SourceType is invalid: %s", k.SourceType)
	}

	if !isValidKnowledgeType(k.Type) {
		return fmt.Errorf("knowledge Type is invalid: %s", k.Type)
	}

	if k.FileSize < 0 {
		return fmt.Errorf("knowledge FileSize cannot be negative")
	}

	return nil
}

// isValidSourceType checks if a KnowledgeSourceType is valid
func isValidSourceType(s KnowledgeSourceType) bool {
	switch s {
	case SourceTypeUserInputText, SourceTypeGithubRepo, SourceTypeGithubFile, SourceTypeS3Object:
		return true
	}
	return false
}

// isValidKnowledgeType checks if a KnowledgeType is valid
func isValidKnowledgeType(t KnowledgeType) bool {
	switch t {
	case KnowledgeTypeText, KnowledgeTypeMarkdown, KnowledgeTypeFolder:
		return true
	}
	return false
}
