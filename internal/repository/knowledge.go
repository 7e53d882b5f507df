package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/pagination"
)

const knowledgeColumns = `knowledge_id, tenant_id, space_id, parent_id, name, source_type, knowledge_type,
	 source_config, file_sha, file_size, enabled, embedding_model, retrieval_count, created_at, updated_at`

// knowledgeFilterColumns is the allow-list for equality filters on listings.
var knowledgeFilterColumns = map[string]bool{
	"space_id":    true,
	"parent_id":   true,
	"source_type": true,
	"file_sha":    true,
	"enabled":     true,
}

type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.Knowledge) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge (`+knowledgeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		k.KnowledgeID, k.TenantID, k.SpaceID, nullableString(k.ParentID), k.Name, k.SourceType, k.Type,
		k.SourceConfig, k.FileSHA, k.FileSize, k.Enabled, k.EmbeddingModel, k.RetrievalCount, k.CreatedAt, k.UpdatedAt,
	)
	return err
}

// CreateBatch inserts items in order. Callers run it inside a transaction so
// a partial batch never becomes visible.
func (r *KnowledgeRepository) CreateBatch(ctx context.Context, items []*domain.Knowledge) error {
	for _, k := range items {
		if err := r.Create(ctx, k); err != nil {
			return fmt.Errorf("failed to insert knowledge %s: %w", k.Name, err)
		}
	}
	return nil
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, tenantID, knowledgeID string) (*domain.Knowledge, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge WHERE tenant_id = $1 AND knowledge_id = $2`,
		tenantID, knowledgeID,
	)
	k, err := scanKnowledge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return k, nil
}

// GetBySHA finds a knowledge item by content identity within a space.
func (r *KnowledgeRepository) GetBySHA(ctx context.Context, tenantID, spaceID, fileSHA string) (*domain.Knowledge, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge
		 WHERE tenant_id = $1 AND space_id = $2 AND file_sha = $3
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, spaceID, fileSHA,
	)
	k, err := scanKnowledge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return k, nil
}

// List returns one page of knowledge matching the tenant and the validated
// equality filters.
func (r *KnowledgeRepository) List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Knowledge], error) {
	if err := params.Normalize(); err != nil {
		return nil, err
	}

	where, args, err := buildEqWhere("knowledge", knowledgeFilterColumns, tenantID, params.EqConditions)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge `+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	order := "created_at DESC, knowledge_id DESC"
	if !params.Descending {
		order = "created_at ASC, knowledge_id ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM knowledge %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		knowledgeColumns, where, order, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, params.PageSize, params.Offset())...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanKnowledgeRows(rows)
	if err != nil {
		return nil, err
	}

	return &pagination.PageResult[*domain.Knowledge]{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, nil
}

// ListAll returns every match regardless of count. Intended for internal
// reconciliation reads where the caller needs the complete set.
func (r *KnowledgeRepository) ListAll(ctx context.Context, tenantID string, eqConditions map[string]string) ([]*domain.Knowledge, error) {
	where, args, err := buildEqWhere("knowledge", knowledgeFilterColumns, tenantID, eqConditions)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge `+where+` ORDER BY created_at ASC, knowledge_id ASC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func (r *KnowledgeRepository) Update(ctx context.Context, k *domain.Knowledge) error {
	k.UpdatedAt = time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge SET name = $1, source_config = $2, file_sha = $3, file_size = $4, enabled = $5, updated_at = $6
		 WHERE tenant_id = $7 AND knowledge_id = $8`,
		k.Name, k.SourceConfig, k.FileSHA, k.FileSize, k.Enabled, k.UpdatedAt, k.TenantID, k.KnowledgeID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

// Delete removes the items and their direct children. Tasks and chunks go
// with them through ON DELETE CASCADE.
func (r *KnowledgeRepository) Delete(ctx context.Context, tenantID string, knowledgeIDs []string) error {
	if len(knowledgeIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM knowledge
		 WHERE tenant_id = $1 AND (knowledge_id = ANY($2) OR parent_id = ANY($2))`,
		tenantID, knowledgeIDs,
	)
	return err
}

// IncrRetrievalCounts applies accumulated retrieval hits in one statement.
// Counts for ids that no longer exist are silently dropped.
func (r *KnowledgeRepository) IncrRetrievalCounts(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(counts))
	deltas := make([]int64, 0, len(counts))
	for id, n := range counts {
		ids = append(ids, id)
		deltas = append(deltas, n)
	}

	_, err := r.db.Exec(ctx,
		`UPDATE knowledge AS k
		 SET retrieval_count = k.retrieval_count + c.delta
		 FROM unnest($1::text[], $2::bigint[]) AS c(knowledge_id, delta)
		 WHERE k.knowledge_id = c.knowledge_id`,
		ids, deltas,
	)
	return err
}

func scanKnowledge(row pgx.Row) (*domain.Knowledge, error) {
	var k domain.Knowledge
	var parentID pgtype.Text
	if err := row.Scan(
		&k.KnowledgeID, &k.TenantID, &k.SpaceID, &parentID, &k.Name, &k.SourceType, &k.Type,
		&k.SourceConfig, &k.FileSHA, &k.FileSize, &k.Enabled, &k.EmbeddingModel, &k.RetrievalCount, &k.CreatedAt, &k.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if parentID.Valid {
		k.ParentID = parentID.String
	}
	return &k, nil
}

func scanKnowledgeRows(rows pgx.Rows) ([]*domain.Knowledge, error) {
	var results []*domain.Knowledge
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, k)
	}
	return results, rows.Err()
}

// buildEqWhere renders "WHERE tenant_id = $1 AND col = $n ..." from the
// allow-listed equality conditions.
func buildEqWhere(table string, allowed map[string]bool, tenantID string, eq map[string]string) (string, []any, error) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}
	for col, val := range eq {
		if !allowed[col] {
			return "", nil, domain.NewDomainError(domain.ErrCodeValidation,
				fmt.Sprintf("unsupported filter column for %s: %s", table, col))
		}
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
