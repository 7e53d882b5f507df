package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/burrow-ai/burrow/internal/api"
	"github.com/burrow-ai/burrow/internal/api/middleware"
	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/pagination"
	"github.com/go-chi/chi/v5"
)

type TaskService interface {
	GetByID(ctx context.Context, tenantID, taskID string) (*domain.Task, error)
	List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Task], error)
	Restart(ctx context.Context, tenantID string, taskIDs []string) error
	Cancel(ctx context.Context, tenantID string, taskIDs []string) error
}

type TaskHandler struct {
	svc TaskService
}

func NewTaskHandler(svc TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

type TaskResponse struct {
	TaskID       string `json:"task_id"`
	TenantID     string `json:"tenant_id"`
	KnowledgeID  string `json:"knowledge_id"`
	SpaceID      string `json:"space_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type ListTasksResponse struct {
	Items    []*TaskResponse `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type TaskIDsRequest struct {
	TaskIDs []string `json:"task_ids"`
}

func taskToResponse(t *domain.Task) *TaskResponse {
	return &TaskResponse{
		TaskID:       t.TaskID,
		TenantID:     t.TenantID,
		KnowledgeID:  t.KnowledgeID,
		SpaceID:      t.SpaceID,
		Status:       string(t.Status),
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    t.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		api.Error(w, http.StatusBadRequest, "task id is required")
		return
	}

	task, err := h.svc.GetByID(r.Context(), tenantID, taskID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, taskToResponse(task))
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	params, err := paginationParams(r)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.svc.List(r.Context(), tenantID, params)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*TaskResponse, 0, len(page.Items))
	for _, t := range page.Items {
		items = append(items, taskToResponse(t))
	}

	api.Success(w, http.StatusOK, ListTasksResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

func (h *TaskHandler) Restart(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TaskIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.TaskIDs) == 0 {
		api.Error(w, http.StatusBadRequest, "task_ids is required")
		return
	}

	if err := h.svc.Restart(r.Context(), tenantID, req.TaskIDs); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "restarted"})
}

func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TaskIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.TaskIDs) == 0 {
		api.Error(w, http.StatusBadRequest, "task_ids is required")
		return
	}

	if err := h.svc.Cancel(r.Context(), tenantID, req.TaskIDs); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "canceled"})
}
