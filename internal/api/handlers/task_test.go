package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) GetByID(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	args := m.Called(ctx, tenantID, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskService) List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Task], error) {
	args := m.Called(ctx, tenantID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.Task]), args.Error(1)
}

func (m *MockTaskService) Restart(ctx context.Context, tenantID string, taskIDs []string) error {
	args := m.Called(ctx, tenantID, taskIDs)
	return args.Error(0)
}

func (m *MockTaskService) Cancel(ctx context.Context, tenantID string, taskIDs []string) error {
	args := m.Called(ctx, tenantID, taskIDs)
	return args.Error(0)
}

func newTestTask() *domain.Task {
	return domain.NewTask("t-1", newTestKnowledge(), time.Now().UTC())
}

func TestTaskHandler_Get_Success(t *testing.T) {
	mockSvc := new(MockTaskService)
	handler := NewTaskHandler(mockSvc)

	mockSvc.On("GetByID", mock.Anything, "tenant-456", "t-1").Return(newTestTask(), nil)

	req := requestWithTenantID(http.MethodGet, "/tasks/t-1", nil)
	req = withURLParam(req, "taskID", "t-1")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "t-1", data["task_id"])
	assert.Equal(t, "pending", data["status"])
	mockSvc.AssertExpectations(t)
}

func TestTaskHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockTaskService)
	handler := NewTaskHandler(mockSvc)

	mockSvc.On("GetByID", mock.Anything, "tenant-456", "t-999").Return(nil, domain.ErrTaskNotFound)

	req := requestWithTenantID(http.MethodGet, "/tasks/t-999", nil)
	req = withURLParam(req, "taskID", "t-999")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestTaskHandler_List_FilterByStatus(t *testing.T) {
	mockSvc := new(MockTaskService)
	handler := NewTaskHandler(mockSvc)

	failed := newTestTask()
	failed.MarkFailed("loader exploded")
	page := &pagination.PageResult[*domain.Task]{
		Items:    []*domain.Task{failed},
		Total:    1,
		Page:     1,
		PageSize: 20,
	}
	mockSvc.On("List", mock.Anything, "tenant-456", mock.MatchedBy(func(p pagination.Params) bool {
		return p.EqConditions["status"] == "failed"
	})).Return(page, nil)

	req := requestWithTenantID(http.MethodGet, "/tasks?eq.status=failed", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "failed", first["status"])
	assert.Equal(t, "loader exploded", first["error_message"])
	mockSvc.AssertExpectations(t)
}

func TestTaskHandler_Restart_Success(t *testing.T) {
	mockSvc := new(MockTaskService)
	handler := NewTaskHandler(mockSvc)

	mockSvc.On("Restart", mock.Anything, "tenant-456", []string{"t-1", "t-2"}).Return(nil)

	req := requestWithTenantID(http.MethodPost, "/tasks/restart", []byte(`{"task_ids":["t-1","t-2"]}`))
	w := httptest.NewRecorder()

	handler.Restart(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestTaskHandler_Restart_NotRestartable(t *testing.T) {
	mockSvc := new(MockTaskService)
	handler := NewTaskHandler(mockSvc)

	mockSvc.On("Restart", mock.Anything, "tenant-456", []string{"t-1"}).Return(domain.ErrTaskNotRestartable)

	req := requestWithTenantID(http.MethodPost, "/tasks/restart", []byte(`{"task_ids":["t-1"]}`))
	w := httptest.NewRecorder()

	handler.Restart(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestTaskHandler_Cancel_Success(t *testing.T) {
	mockSvc := new(MockTaskService)
	handler := NewTaskHandler(mockSvc)

	mockSvc.On("Cancel", mock.Anything, "tenant-456", []string{"t-1"}).Return(nil)

	req := requestWithTenantID(http.MethodPost, "/tasks/cancel", []byte(`{"task_ids":["t-1"]}`))
	w := httptest.NewRecorder()

	handler.Cancel(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestTaskHandler_Cancel_MissingIDs(t *testing.T) {
	mockSvc := new(MockTaskService)
	handler := NewTaskHandler(mockSvc)

	req := requestWithTenantID(http.MethodPost, "/tasks/cancel", []byte(`{"task_ids":[]}`))
	w := httptest.NewRecorder()

	handler.Cancel(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "task_ids is required")
}
