package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) CreateTenant(ctx context.Context, name string) (*domain.Tenant, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockAuthService) CreateAPIKey(ctx context.Context, tenantID, name string) (string, error) {
	args := m.Called(ctx, tenantID, name)
	return args.String(0), args.Error(1)
}

func TestAuthHandler_CreateTenant_Success(t *testing.T) {
	mockSvc := new(MockAuthService)
	handler := NewAuthHandler(mockSvc)

	expectedTenant := &domain.Tenant{
		TenantID:  "tenant-123",
		Name:      "Acme",
		CreatedAt: time.Now().UTC(),
	}
	mockSvc.On("CreateTenant", mock.Anything, "Acme").Return(expectedTenant, nil)

	body := `{"name":"Acme"}`
	req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.CreateTenant(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "tenant-123", data["tenant_id"])
	assert.Equal(t, "Acme", data["name"])
	mockSvc.AssertExpectations(t)
}

func TestAuthHandler_CreateTenant_MissingName(t *testing.T) {
	mockSvc := new(MockAuthService)
	handler := NewAuthHandler(mockSvc)

	body := `{}`
	req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.CreateTenant(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "name is required")
}

func TestAuthHandler_CreateTenant_InvalidJSON(t *testing.T) {
	mockSvc := new(MockAuthService)
	handler := NewAuthHandler(mockSvc)

	body := `{invalid`
	req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.CreateTenant(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestAuthHandler_CreateTenant_AlreadyExists(t *testing.T) {
	mockSvc := new(MockAuthService)
	handler := NewAuthHandler(mockSvc)

	mockSvc.On("CreateTenant", mock.Anything, "Acme").Return(nil, domain.ErrTenantAlreadyExists)

	body := `{"name":"Acme"}`
	req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.CreateTenant(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestAuthHandler_CreateAPIKey_Success(t *testing.T) {
	mockSvc := new(MockAuthService)
	handler := NewAuthHandler(mockSvc)

	mockSvc.On("CreateAPIKey", mock.Anything, "tenant-123", "ci-key").Return("brw_abcdef", nil)

	body := `{"tenant_id":"tenant-123","name":"ci-key"}`
	req := httptest.NewRequest(http.MethodPost, "/apikeys", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.CreateAPIKey(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "brw_abcdef", data["token"])
	assert.Equal(t, "ci-key", data["name"])
	mockSvc.AssertExpectations(t)
}

func TestAuthHandler_CreateAPIKey_MissingTenantID(t *testing.T) {
	mockSvc := new(MockAuthService)
	handler := NewAuthHandler(mockSvc)

	body := `{"name":"ci-key"}`
	req := httptest.NewRequest(http.MethodPost, "/apikeys", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.CreateAPIKey(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "tenant_id is required")
}

func TestAuthHandler_CreateAPIKey_TenantNotFound(t *testing.T) {
	mockSvc := new(MockAuthService)
	handler := NewAuthHandler(mockSvc)

	mockSvc.On("CreateAPIKey", mock.Anything, "tenant-999", "ci-key").Return("", domain.ErrTenantNotFound)

	body := `{"tenant_id":"tenant-999","name":"ci-key"}`
	req := httptest.NewRequest(http.MethodPost, "/apikeys", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.CreateAPIKey(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockSvc.AssertExpectations(t)
}
