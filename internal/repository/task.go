package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/pagination"
)

const taskColumns = `task_id, tenant_id, knowledge_id, space_id, status, error_message, created_at, updated_at`

var taskFilterColumns = map[string]bool{
	"space_id":     true,
	"knowledge_id": true,
	"status":       true,
}

type TaskRepository struct {
	db dbtx
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: pool}
}

func NewTaskRepositoryWithTx(tx pgx.Tx) *TaskRepository {
	return &TaskRepository{db: tx}
}

// UpsertList writes the tasks keyed by task_id; status transitions from the
// executor and fresh submissions share this path.
func (r *TaskRepository) UpsertList(ctx context.Context, tasks []*domain.Task) error {
	for _, t := range tasks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO tasks (`+taskColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (task_id) DO UPDATE
			 SET status = EXCLUDED.status,
			     error_message = EXCLUDED.error_message,
			     updated_at = EXCLUDED.updated_at`,
			t.TaskID, t.TenantID, t.KnowledgeID, t.SpaceID, t.Status, t.ErrorMessage, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert task %s: %w", t.TaskID, err)
		}
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	var t domain.Task
	err := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = $1 AND task_id = $2`,
		tenantID, taskID,
	).Scan(&t.TaskID, &t.TenantID, &t.KnowledgeID, &t.SpaceID, &t.Status, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) GetByKnowledgeID(ctx context.Context, tenantID, knowledgeID string) (*domain.Task, error) {
	var t domain.Task
	err := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE tenant_id = $1 AND knowledge_id = $2
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, knowledgeID,
	).Scan(&t.TaskID, &t.TenantID, &t.KnowledgeID, &t.SpaceID, &t.Status, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

// List returns one page of tasks matching the tenant and the validated
// equality filters.
func (r *TaskRepository) List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Task], error) {
	if err := params.Normalize(); err != nil {
		return nil, err
	}

	where, args, err := buildEqWhere("tasks", taskFilterColumns, tenantID, params.EqConditions)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks `+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	order := "created_at DESC, task_id DESC"
	if !params.Descending {
		order = "created_at ASC, task_id ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM tasks %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		taskColumns, where, order, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, params.PageSize, params.Offset())...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.TaskID, &t.TenantID, &t.KnowledgeID, &t.SpaceID, &t.Status, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &pagination.PageResult[*domain.Task]{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, nil
}

// ListStale returns tasks stuck in a non-terminal status since before the
// cutoff, for recovery after an unclean shutdown.
func (r *TaskRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = ANY($1) AND updated_at < $2
		 ORDER BY created_at ASC`,
		[]string{string(domain.TaskStatusPending), string(domain.TaskStatusRunning)}, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.TaskID, &t.TenantID, &t.KnowledgeID, &t.SpaceID, &t.Status, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) Delete(ctx context.Context, tenantID, taskID string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM tasks WHERE tenant_id = $1 AND task_id = $2`,
		tenantID, taskID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
