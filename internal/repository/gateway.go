package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/burrow-ai/burrow/internal/domain"
)

// Gateway bundles the repositories behind the executor's persistence
// contract. Batch knowledge inserts run transactionally so reconciliation
// never leaves a partially persisted child set.
type Gateway struct {
	knowledge *KnowledgeRepository
	tasks     *TaskRepository
	chunks    *ChunkRepository
	txRunner  *TxRunner
}

func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{
		knowledge: NewKnowledgeRepository(pool),
		tasks:     NewTaskRepository(pool),
		chunks:    NewChunkRepository(pool),
		txRunner:  NewTxRunner(pool),
	}
}

func (g *Gateway) GetKnowledgeList(ctx context.Context, tenantID string, eqConditions map[string]any) ([]*domain.Knowledge, error) {
	eq := make(map[string]string, len(eqConditions))
	for col, val := range eqConditions {
		eq[col] = fmt.Sprintf("%v", val)
	}
	return g.knowledge.ListAll(ctx, tenantID, eq)
}

func (g *Gateway) GetKnowledgeByID(ctx context.Context, tenantID, knowledgeID string) (*domain.Knowledge, error) {
	return g.knowledge.GetByID(ctx, tenantID, knowledgeID)
}

// AddKnowledgeList assigns identity and timestamps to items that lack them
// and inserts the batch in one transaction.
func (g *Gateway) AddKnowledgeList(ctx context.Context, tenantID string, items []*domain.Knowledge) ([]*domain.Knowledge, error) {
	now := time.Now().UTC()
	for _, k := range items {
		if k.KnowledgeID == "" {
			k.KnowledgeID = uuid.NewString()
		}
		if k.TenantID == "" {
			k.TenantID = tenantID
		}
		if k.CreatedAt.IsZero() {
			k.CreatedAt = now
			k.UpdatedAt = now
		}
		if err := domain.ValidateKnowledge(k); err != nil {
			return nil, err
		}
	}

	err := g.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		return repos.Knowledge().CreateBatch(ctx, items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (g *Gateway) DeleteKnowledge(ctx context.Context, tenantID string, knowledgeIDs []string) error {
	return g.knowledge.Delete(ctx, tenantID, knowledgeIDs)
}

func (g *Gateway) GetTaskByID(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	return g.tasks.GetByID(ctx, tenantID, taskID)
}

func (g *Gateway) UpdateTaskList(ctx context.Context, tasks []*domain.Task) error {
	return g.tasks.UpsertList(ctx, tasks)
}

func (g *Gateway) SaveChunkList(ctx context.Context, chunks []*domain.Chunk) error {
	return g.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		return repos.Chunks().SaveChunks(ctx, chunks)
	})
}

func (g *Gateway) DeleteKnowledgeChunks(ctx context.Context, knowledgeID string) error {
	return g.chunks.DeleteByKnowledge(ctx, knowledgeID)
}

// IncrRetrievalCounts satisfies the retrieval counter's flush contract.
func (g *Gateway) IncrRetrievalCounts(ctx context.Context, counts map[string]int64) error {
	return g.knowledge.IncrRetrievalCounts(ctx, counts)
}
