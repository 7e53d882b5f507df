package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/ingest"
	"github.com/burrow-ai/burrow/internal/pagination"
)

// MockKnowledgeRepository is a mock implementation of KnowledgeRepositoryInterface
type MockKnowledgeRepository struct {
	mock.Mock
}

func (m *MockKnowledgeRepository) Create(ctx context.Context, k *domain.Knowledge) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) GetByID(ctx context.Context, tenantID, knowledgeID string) (*domain.Knowledge, error) {
	args := m.Called(ctx, tenantID, knowledgeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Knowledge), args.Error(1)
}

func (m *MockKnowledgeRepository) GetBySHA(ctx context.Context, tenantID, spaceID, fileSHA string) (*domain.Knowledge, error) {
	args := m.Called(ctx, tenantID, spaceID, fileSHA)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Knowledge), args.Error(1)
}

func (m *MockKnowledgeRepository) List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Knowledge], error) {
	args := m.Called(ctx, tenantID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.Knowledge]), args.Error(1)
}

func (m *MockKnowledgeRepository) Update(ctx context.Context, k *domain.Knowledge) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) Delete(ctx context.Context, tenantID string, knowledgeIDs []string) error {
	args := m.Called(ctx, tenantID, knowledgeIDs)
	return args.Error(0)
}

// MockTaskLookup is a mock implementation of TaskLookup
type MockTaskLookup struct {
	mock.Mock
}

func (m *MockTaskLookup) GetByKnowledgeID(ctx context.Context, tenantID, knowledgeID string) (*domain.Task, error) {
	args := m.Called(ctx, tenantID, knowledgeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

// MockSubmitter is a mock implementation of Submitter
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, task *domain.Task, knowledge *domain.Knowledge) error {
	args := m.Called(ctx, task, knowledge)
	return args.Error(0)
}

// MockUUIDGenerator returns a fixed sequence of ids
type MockUUIDGenerator struct {
	uuids []string
	index int
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (g *MockUUIDGenerator) NewString() string {
	id := g.uuids[g.index%len(g.uuids)]
	g.index++
	return id
}

func textInput(text string) SubmitInput {
	cfg, _ := json.Marshal(map[string]string{"text": text})
	return SubmitInput{
		TenantID:     "tenant-1",
		SpaceID:      "space-1",
		Name:         "note",
		SourceType:   domain.SourceTypeUserInputText,
		Type:         domain.KnowledgeTypeText,
		SourceConfig: cfg,
	}
}

// TestKnowledgeService_Submit_NewText verifies a new text item gets a derived
// content identity, a knowledge record, and an enqueued task.
func TestKnowledgeService_Submit_NewText(t *testing.T) {
	mockRepo := new(MockKnowledgeRepository)
	mockTasks := new(MockTaskLookup)
	mockSubmitter := new(MockSubmitter)

	expectedSHA := ingest.ContentHashString("hello world")

	mockRepo.On("GetBySHA", mock.Anything, "tenant-1", "space-1", expectedSHA).
		Return(nil, domain.ErrKnowledgeNotFound)
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.Knowledge) bool {
		return k.KnowledgeID == "knowledge-1" && k.FileSHA == expectedSHA && k.FileSize == int64(len("hello world"))
	})).Return(nil)
	mockSubmitter.On("Submit", mock.Anything, mock.MatchedBy(func(task *domain.Task) bool {
		return task.TaskID == "task-1" && task.KnowledgeID == "knowledge-1"
	}), mock.Anything).Return(nil)

	svc := NewKnowledgeServiceWithUUIDGen(mockRepo, mockTasks, mockSubmitter,
		NewMockUUIDGenerator("knowledge-1", "task-1"))

	results, err := svc.Submit(context.Background(), []SubmitInput{textInput("hello world")})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].Duplicate)
	assert.Equal(t, "knowledge-1", results[0].Knowledge.KnowledgeID)
	assert.Equal(t, "task-1", results[0].Task.TaskID)
	mockRepo.AssertExpectations(t)
	mockSubmitter.AssertExpectations(t)
}

// TestKnowledgeService_Submit_Duplicate verifies a content-identical
// resubmission returns the existing records without a new task.
func TestKnowledgeService_Submit_Duplicate(t *testing.T) {
	mockRepo := new(MockKnowledgeRepository)
	mockTasks := new(MockTaskLookup)
	mockSubmitter := new(MockSubmitter)

	expectedSHA := ingest.ContentHashString("hello world")
	existing := &domain.Knowledge{
		KnowledgeID: "knowledge-1",
		TenantID:    "tenant-1",
		SpaceID:     "space-1",
		FileSHA:     expectedSHA,
	}
	existingTask := &domain.Task{TaskID: "task-1", Status: domain.TaskStatusSuccess}

	mockRepo.On("GetBySHA", mock.Anything, "tenant-1", "space-1", expectedSHA).Return(existing, nil)
	mockTasks.On("GetByKnowledgeID", mock.Anything, "tenant-1", "knowledge-1").Return(existingTask, nil)

	svc := NewKnowledgeService(mockRepo, mockTasks, mockSubmitter)

	results, err := svc.Submit(context.Background(), []SubmitInput{textInput("hello world")})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].Duplicate)
	assert.Same(t, existing, results[0].Knowledge)
	assert.Same(t, existingTask, results[0].Task)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockSubmitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

// TestKnowledgeService_Submit_EmptyText verifies empty inline text is
// rejected before persistence.
func TestKnowledgeService_Submit_EmptyText(t *testing.T) {
	mockRepo := new(MockKnowledgeRepository)
	svc := NewKnowledgeService(mockRepo, new(MockTaskLookup), new(MockSubmitter))

	_, err := svc.Submit(context.Background(), []SubmitInput{textInput("")})
	assert.Error(t, err)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// TestKnowledgeService_Submit_OversizedReportsFailedTask verifies an
// over-capacity payload still yields the knowledge and its failed task.
func TestKnowledgeService_Submit_OversizedReportsFailedTask(t *testing.T) {
	mockRepo := new(MockKnowledgeRepository)
	mockSubmitter := new(MockSubmitter)

	expectedSHA := ingest.ContentHashString("hello world")
	mockRepo.On("GetBySHA", mock.Anything, "tenant-1", "space-1", expectedSHA).
		Return(nil, domain.ErrKnowledgeNotFound)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockSubmitter.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrCostExceedsCapacity)

	svc := NewKnowledgeService(mockRepo, new(MockTaskLookup), mockSubmitter)

	results, err := svc.Submit(context.Background(), []SubmitInput{textInput("hello world")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].Task)
}

// TestKnowledgeService_IsSaved covers both outcomes of the identity check.
func TestKnowledgeService_IsSaved(t *testing.T) {
	mockRepo := new(MockKnowledgeRepository)
	svc := NewKnowledgeService(mockRepo, new(MockTaskLookup), new(MockSubmitter))

	mockRepo.On("GetBySHA", mock.Anything, "tenant-1", "space-1", "sha-known").
		Return(&domain.Knowledge{KnowledgeID: "k1"}, nil)
	mockRepo.On("GetBySHA", mock.Anything, "tenant-1", "space-1", "sha-unknown").
		Return(nil, domain.ErrKnowledgeNotFound)

	saved, err := svc.IsSaved(context.Background(), "tenant-1", "space-1", "sha-known")
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = svc.IsSaved(context.Background(), "tenant-1", "space-1", "sha-unknown")
	require.NoError(t, err)
	assert.False(t, saved)
}

// TestKnowledgeService_SetEnabled verifies the toggle persists only on change.
func TestKnowledgeService_SetEnabled(t *testing.T) {
	mockRepo := new(MockKnowledgeRepository)
	svc := NewKnowledgeService(mockRepo, new(MockTaskLookup), new(MockSubmitter))

	k := &domain.Knowledge{KnowledgeID: "k1", TenantID: "tenant-1", Enabled: true}
	mockRepo.On("GetByID", mock.Anything, "tenant-1", "k1").Return(k, nil)
	mockRepo.On("Update", mock.Anything, k).Return(nil).Once()

	updated, err := svc.SetEnabled(context.Background(), "tenant-1", "k1", false)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	// No-op toggle does not hit Update again.
	_, err = svc.SetEnabled(context.Background(), "tenant-1", "k1", false)
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

// TestKnowledgeService_Delete_RequiresIDs verifies validation.
func TestKnowledgeService_Delete_RequiresIDs(t *testing.T) {
	svc := NewKnowledgeService(new(MockKnowledgeRepository), new(MockTaskLookup), new(MockSubmitter))
	err := svc.Delete(context.Background(), "tenant-1", nil)
	assert.Error(t, err)
}
