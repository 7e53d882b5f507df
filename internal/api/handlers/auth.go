package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/burrow-ai/burrow/internal/api"
	"github.com/burrow-ai/burrow/internal/domain"
)

type AuthService interface {
	CreateTenant(ctx context.Context, name string) (*domain.Tenant, error)
	CreateAPIKey(ctx context.Context, tenantID, name string) (string, error)
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type CreateTenantRequest struct {
	Name string `json:"name"`
}

type TenantResponse struct {
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

type APIKeyResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

func (h *AuthHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	tenant, err := h.svc.CreateTenant(r.Context(), req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, TenantResponse{
		TenantID:  tenant.TenantID,
		Name:      tenant.Name,
		CreatedAt: tenant.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TenantID == "" {
		api.Error(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	token, err := h.svc.CreateAPIKey(r.Context(), req.TenantID, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, APIKeyResponse{
		Token: token,
		Name:  req.Name,
	})
}
