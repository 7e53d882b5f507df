package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepositories exposes transaction-bound repositories inside WithTx.
type TxRepositories interface {
	Knowledge() *KnowledgeRepository
	Tasks() *TaskRepository
	Chunks() *ChunkRepository
}

// TxRunner provides transactional repositories using a pgx pool.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := &txRepos{tx: tx}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Knowledge() *KnowledgeRepository {
	return NewKnowledgeRepositoryWithTx(r.tx)
}

func (r *txRepos) Tasks() *TaskRepository {
	return NewTaskRepositoryWithTx(r.tx)
}

func (r *txRepos) Chunks() *ChunkRepository {
	return NewChunkRepositoryWithTx(r.tx)
}
