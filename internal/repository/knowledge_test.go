//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/pagination"
	"github.com/burrow-ai/burrow/internal/testutil"
)

func setupTenant(ctx context.Context, t *testing.T, tenantRepo *TenantRepository) *domain.Tenant {
	tenant := &domain.Tenant{
		TenantID:  uuid.NewString(),
		Name:      "tenant-" + uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, tenantRepo.Create(ctx, tenant))
	return tenant
}

func testKnowledge(tenantID, spaceID, sha string) *domain.Knowledge {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Knowledge{
		KnowledgeID:  uuid.NewString(),
		TenantID:     tenantID,
		SpaceID:      spaceID,
		Name:         "doc-" + sha,
		SourceType:   domain.SourceTypeUserInputText,
		Type:         domain.KnowledgeTypeText,
		SourceConfig: json.RawMessage(`{"text": "hello"}`),
		FileSHA:      sha,
		FileSize:     42,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestKnowledgeRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)

	tenant := setupTenant(ctx, t, tenantRepo)
	k := testKnowledge(tenant.TenantID, "space-1", "sha-1")
	require.NoError(t, knowledgeRepo.Create(ctx, k))

	retrieved, err := knowledgeRepo.GetByID(ctx, tenant.TenantID, k.KnowledgeID)
	require.NoError(t, err)
	assert.Equal(t, k.KnowledgeID, retrieved.KnowledgeID)
	assert.Equal(t, k.SpaceID, retrieved.SpaceID)
	assert.Equal(t, k.FileSHA, retrieved.FileSHA)
	assert.Equal(t, k.FileSize, retrieved.FileSize)
	assert.True(t, retrieved.Enabled)

	// Tenant scoping: another tenant must not see the item.
	other := setupTenant(ctx, t, tenantRepo)
	_, err = knowledgeRepo.GetByID(ctx, other.TenantID, k.KnowledgeID)
	assert.ErrorIs(t, err, domain.ErrKnowledgeNotFound)
}

func TestKnowledgeRepository_ListWithFilters(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)
	tenant := setupTenant(ctx, t, tenantRepo)

	for i, sha := range []string{"sha-a", "sha-b", "sha-c"} {
		space := "space-1"
		if i == 2 {
			space = "space-2"
		}
		require.NoError(t, knowledgeRepo.Create(ctx, testKnowledge(tenant.TenantID, space, sha)))
	}

	page, err := knowledgeRepo.List(ctx, tenant.TenantID, pagination.Params{
		Page:         1,
		PageSize:     10,
		EqConditions: map[string]string{"space_id": "space-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 2)

	// Unknown filter columns are rejected instead of being interpolated.
	_, err = knowledgeRepo.List(ctx, tenant.TenantID, pagination.Params{
		Page:         1,
		PageSize:     10,
		EqConditions: map[string]string{"name; DROP TABLE knowledge": "x"},
	})
	assert.Error(t, err)
}

func TestKnowledgeRepository_ListAllByParent(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)
	tenant := setupTenant(ctx, t, tenantRepo)

	parent := testKnowledge(tenant.TenantID, "space-1", "sha-repo")
	parent.SourceType = domain.SourceTypeGithubRepo
	parent.Type = domain.KnowledgeTypeFolder
	require.NoError(t, knowledgeRepo.Create(ctx, parent))

	for _, sha := range []string{"sha-1", "sha-2"} {
		child := testKnowledge(tenant.TenantID, "space-1", sha)
		child.ParentID = parent.KnowledgeID
		child.SourceType = domain.SourceTypeGithubFile
		child.Type = domain.KnowledgeTypeMarkdown
		require.NoError(t, knowledgeRepo.Create(ctx, child))
	}

	children, err := knowledgeRepo.ListAll(ctx, tenant.TenantID, map[string]string{
		"parent_id": parent.KnowledgeID,
	})
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestKnowledgeRepository_DeleteCascadesToChildren(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)
	taskRepo := NewTaskRepository(pool)
	chunkRepo := NewChunkRepository(pool)
	tenant := setupTenant(ctx, t, tenantRepo)

	parent := testKnowledge(tenant.TenantID, "space-1", "sha-repo")
	parent.Type = domain.KnowledgeTypeFolder
	parent.SourceType = domain.SourceTypeGithubRepo
	require.NoError(t, knowledgeRepo.Create(ctx, parent))

	child := testKnowledge(tenant.TenantID, "space-1", "sha-child")
	child.ParentID = parent.KnowledgeID
	require.NoError(t, knowledgeRepo.Create(ctx, child))

	task := domain.NewTask(uuid.NewString(), child, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, taskRepo.UpsertList(ctx, []*domain.Task{task}))

	require.NoError(t, chunkRepo.SaveChunks(ctx, []*domain.Chunk{{
		ChunkID:     uuid.NewString(),
		KnowledgeID: child.KnowledgeID,
		TenantID:    tenant.TenantID,
		SpaceID:     "space-1",
		Content:     "chunk content",
		Embedding:   make([]float32, 1536),
	}}))

	require.NoError(t, knowledgeRepo.Delete(ctx, tenant.TenantID, []string{parent.KnowledgeID}))

	_, err := knowledgeRepo.GetByID(ctx, tenant.TenantID, child.KnowledgeID)
	assert.ErrorIs(t, err, domain.ErrKnowledgeNotFound)
	_, err = taskRepo.GetByID(ctx, tenant.TenantID, task.TaskID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestKnowledgeRepository_IncrRetrievalCounts(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)
	tenant := setupTenant(ctx, t, tenantRepo)

	k := testKnowledge(tenant.TenantID, "space-1", "sha-1")
	require.NoError(t, knowledgeRepo.Create(ctx, k))

	require.NoError(t, knowledgeRepo.IncrRetrievalCounts(ctx, map[string]int64{
		k.KnowledgeID: 5,
		"missing-id":  3,
	}))
	require.NoError(t, knowledgeRepo.IncrRetrievalCounts(ctx, map[string]int64{
		k.KnowledgeID: 2,
	}))

	retrieved, err := knowledgeRepo.GetByID(ctx, tenant.TenantID, k.KnowledgeID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), retrieved.RetrievalCount)
}
