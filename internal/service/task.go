package service

import (
	"context"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/pagination"
	"github.com/burrow-ai/burrow/internal/telemetry"
)

// TaskRepositoryInterface defines the repository interface for task reads.
type TaskRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, taskID string) (*domain.Task, error)
	List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Task], error)
}

// TaskController is the engine surface for operator actions on tasks.
type TaskController interface {
	Restart(ctx context.Context, tenantID string, taskIDs []string) error
	Cancel(ctx context.Context, tenantID string, taskIDs []string) error
}

// TaskService exposes task status and the operator controls.
type TaskService struct {
	taskRepo   TaskRepositoryInterface
	controller TaskController
}

func NewTaskService(taskRepo TaskRepositoryInterface, controller TaskController) *TaskService {
	return &TaskService{
		taskRepo:   taskRepo,
		controller: controller,
	}
}

// GetByID returns one task.
func (s *TaskService) GetByID(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	ctx, span := telemetry.StartSpan(ctx, "TaskService.GetByID", telemetry.SpanAttributes{
		TenantID:  tenantID,
		TaskID:    taskID,
		Operation: "get",
	})
	defer span.End()

	return s.taskRepo.GetByID(ctx, tenantID, taskID)
}

// List returns one page of a tenant's tasks.
func (s *TaskService) List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Task], error) {
	ctx, span := telemetry.StartSpan(ctx, "TaskService.List", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "list",
	})
	defer span.End()

	return s.taskRepo.List(ctx, tenantID, params)
}

// Restart re-enqueues failed, canceled, or retry-parked tasks.
func (s *TaskService) Restart(ctx context.Context, tenantID string, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return domain.NewDomainError(domain.ErrCodeValidation, "at least one task ID is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "TaskService.Restart", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "restart",
	})
	defer span.End()

	return s.controller.Restart(ctx, tenantID, taskIDs)
}

// Cancel cancels waiting or running tasks.
func (s *TaskService) Cancel(ctx context.Context, tenantID string, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return domain.NewDomainError(domain.ErrCodeValidation, "at least one task ID is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "TaskService.Cancel", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "cancel",
	})
	defer span.End()

	return s.controller.Cancel(ctx, tenantID, taskIDs)
}
