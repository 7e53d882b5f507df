package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/ingest"
	"github.com/burrow-ai/burrow/internal/pagination"
	"github.com/burrow-ai/burrow/internal/telemetry"
)

// KnowledgeRepositoryInterface defines the repository interface for knowledge persistence
type KnowledgeRepositoryInterface interface {
	Create(ctx context.Context, k *domain.Knowledge) error
	GetByID(ctx context.Context, tenantID, knowledgeID string) (*domain.Knowledge, error)
	GetBySHA(ctx context.Context, tenantID, spaceID, fileSHA string) (*domain.Knowledge, error)
	List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Knowledge], error)
	Update(ctx context.Context, k *domain.Knowledge) error
	Delete(ctx context.Context, tenantID string, knowledgeIDs []string) error
}

// TaskLookup resolves the latest task for a knowledge item.
type TaskLookup interface {
	GetByKnowledgeID(ctx context.Context, tenantID, knowledgeID string) (*domain.Task, error)
}

// Submitter enqueues tasks into the ingestion engine.
type Submitter interface {
	Submit(ctx context.Context, task *domain.Task, knowledge *domain.Knowledge) error
}

// KnowledgeService handles business logic for knowledge items
type KnowledgeService struct {
	knowledgeRepo KnowledgeRepositoryInterface
	taskRepo      TaskLookup
	submitter     Submitter
	uuidGen       UUIDGenerator
}

// NewKnowledgeService creates a new KnowledgeService instance
func NewKnowledgeService(
	knowledgeRepo KnowledgeRepositoryInterface,
	taskRepo TaskLookup,
	submitter Submitter,
) *KnowledgeService {
	return &KnowledgeService{
		knowledgeRepo: knowledgeRepo,
		taskRepo:      taskRepo,
		submitter:     submitter,
		uuidGen:       &DefaultUUIDGenerator{},
	}
}

// NewKnowledgeServiceWithUUIDGen creates a new KnowledgeService with custom UUID generator (for testing)
func NewKnowledgeServiceWithUUIDGen(
	knowledgeRepo KnowledgeRepositoryInterface,
	taskRepo TaskLookup,
	submitter Submitter,
	uuidGen UUIDGenerator,
) *KnowledgeService {
	return &KnowledgeService{
		knowledgeRepo: knowledgeRepo,
		taskRepo:      taskRepo,
		submitter:     submitter,
		uuidGen:       uuidGen,
	}
}

// SubmitInput describes one knowledge item to register and ingest.
type SubmitInput struct {
	TenantID     string
	SpaceID      string
	Name         string
	SourceType   domain.KnowledgeSourceType
	Type         domain.KnowledgeType
	SourceConfig json.RawMessage
	// FileSHA and FileSize identify inline-less sources (e.g. a repository
	// descriptor). For user_input_text both are derived from the text.
	FileSHA  string
	FileSize int64
}

// SubmitResult pairs the registered knowledge with its ingestion task. For a
// content-identical resubmission, Duplicate is set and the existing records
// are returned without a new execution attempt.
type SubmitResult struct {
	Knowledge *domain.Knowledge
	Task      *domain.Task
	Duplicate bool
}

// Submit registers knowledge items and enqueues one ingestion task each.
// Items whose content identity is already present in the space are skipped.
func (s *KnowledgeService) Submit(ctx context.Context, inputs []SubmitInput) ([]*SubmitResult, error) {
	results := make([]*SubmitResult, 0, len(inputs))
	for i := range inputs {
		result, err := s.submitOne(ctx, &inputs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to submit %q: %w", inputs[i].Name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *KnowledgeService) submitOne(ctx context.Context, input *SubmitInput) (*SubmitResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Submit", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		SpaceID:   input.SpaceID,
		Operation: "submit",
	})
	defer span.End()

	if err := s.resolveIdentity(input); err != nil {
		return nil, err
	}

	// Content-identical resubmission returns the existing records.
	existing, err := s.knowledgeRepo.GetBySHA(ctx, input.TenantID, input.SpaceID, input.FileSHA)
	if err == nil {
		result := &SubmitResult{Knowledge: existing, Duplicate: true}
		if task, taskErr := s.taskRepo.GetByKnowledgeID(ctx, input.TenantID, existing.KnowledgeID); taskErr == nil {
			result.Task = task
		}
		return result, nil
	}
	if !errors.Is(err, domain.ErrKnowledgeNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	knowledge := domain.NewKnowledge(
		s.uuidGen.NewString(),
		input.TenantID,
		input.SpaceID,
		input.Name,
		input.SourceType,
		input.Type,
		input.SourceConfig,
		input.FileSHA,
		input.FileSize,
		now,
	)
	if err := domain.ValidateKnowledge(knowledge); err != nil {
		return nil, err
	}
	if err := s.knowledgeRepo.Create(ctx, knowledge); err != nil {
		return nil, err
	}

	task := domain.NewTask(s.uuidGen.NewString(), knowledge, now)
	if err := s.submitter.Submit(ctx, task, knowledge); err != nil {
		// An oversized payload is terminally failed by the engine; report the
		// records so the caller sees the failed task.
		if errors.Is(err, domain.ErrCostExceedsCapacity) {
			return &SubmitResult{Knowledge: knowledge, Task: task}, nil
		}
		return nil, err
	}

	return &SubmitResult{Knowledge: knowledge, Task: task}, nil
}

// resolveIdentity derives FileSHA and FileSize for sources that carry their
// content inline, and validates that externally-identified sources carry one.
func (s *KnowledgeService) resolveIdentity(input *SubmitInput) error {
	if input.SourceType == domain.SourceTypeUserInputText {
		var cfg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(input.SourceConfig, &cfg); err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid text source config", err)
		}
		if cfg.Text == "" {
			return domain.NewDomainError(domain.ErrCodeValidation, "text source requires non-empty text")
		}
		input.FileSHA = ingest.ContentHashString(cfg.Text)
		input.FileSize = int64(len(cfg.Text))
		return nil
	}

	if input.FileSHA == "" {
		// Containers are identified by their descriptor until decomposition
		// assigns per-item identities.
		input.FileSHA = ingest.ContentHash(input.SourceConfig)
	}
	return nil
}

// IsSaved reports whether content with the given identity already exists in
// the space.
func (s *KnowledgeService) IsSaved(ctx context.Context, tenantID, spaceID, fileSHA string) (bool, error) {
	_, err := s.knowledgeRepo.GetBySHA(ctx, tenantID, spaceID, fileSHA)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrKnowledgeNotFound) {
		return false, nil
	}
	return false, err
}

// GetByID retrieves a knowledge item by ID
func (s *KnowledgeService) GetByID(ctx context.Context, tenantID, knowledgeID string) (*domain.Knowledge, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.GetByID", telemetry.SpanAttributes{
		TenantID:    tenantID,
		KnowledgeID: knowledgeID,
		Operation:   "get",
	})
	defer span.End()

	return s.knowledgeRepo.GetByID(ctx, tenantID, knowledgeID)
}

// List returns one page of a tenant's knowledge.
func (s *KnowledgeService) List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Knowledge], error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.List", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "list",
	})
	defer span.End()

	return s.knowledgeRepo.List(ctx, tenantID, params)
}

// SetEnabled toggles a knowledge item's participation in retrieval.
func (s *KnowledgeService) SetEnabled(ctx context.Context, tenantID, knowledgeID string, enabled bool) (*domain.Knowledge, error) {
	knowledge, err := s.knowledgeRepo.GetByID(ctx, tenantID, knowledgeID)
	if err != nil {
		return nil, err
	}
	if knowledge.Enabled == enabled {
		return knowledge, nil
	}
	knowledge.Enabled = enabled
	if err := s.knowledgeRepo.Update(ctx, knowledge); err != nil {
		return nil, err
	}
	return knowledge, nil
}

// Delete removes knowledge items with their children, tasks, and chunks.
func (s *KnowledgeService) Delete(ctx context.Context, tenantID string, knowledgeIDs []string) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Delete", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "delete",
	})
	defer span.End()

	if len(knowledgeIDs) == 0 {
		return domain.NewDomainError(domain.ErrCodeValidation, "at least one knowledge ID is required")
	}
	return s.knowledgeRepo.Delete(ctx, tenantID, knowledgeIDs)
}
