package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/burrow-ai/burrow/internal/api"
	"github.com/burrow-ai/burrow/internal/api/middleware"
	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/pagination"
	"github.com/burrow-ai/burrow/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeService interface {
	Submit(ctx context.Context, inputs []service.SubmitInput) ([]*service.SubmitResult, error)
	GetByID(ctx context.Context, tenantID, knowledgeID string) (*domain.Knowledge, error)
	List(ctx context.Context, tenantID string, params pagination.Params) (*pagination.PageResult[*domain.Knowledge], error)
	SetEnabled(ctx context.Context, tenantID, knowledgeID string, enabled bool) (*domain.Knowledge, error)
	Delete(ctx context.Context, tenantID string, knowledgeIDs []string) error
	IsSaved(ctx context.Context, tenantID, spaceID, fileSHA string) (bool, error)
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type SubmitKnowledgeItem struct {
	SpaceID      string          `json:"space_id"`
	Name         string          `json:"name"`
	SourceType   string          `json:"source_type"`
	Type         string          `json:"type"`
	SourceConfig json.RawMessage `json:"source_config"`
	FileSHA      string          `json:"file_sha,omitempty"`
	FileSize     int64           `json:"file_size,omitempty"`
}

type SubmitKnowledgeRequest struct {
	Items []SubmitKnowledgeItem `json:"items"`
}

type KnowledgeResponse struct {
	KnowledgeID    string          `json:"knowledge_id"`
	TenantID       string          `json:"tenant_id"`
	SpaceID        string          `json:"space_id"`
	ParentID       string          `json:"parent_id,omitempty"`
	Name           string          `json:"name"`
	SourceType     string          `json:"source_type"`
	Type           string          `json:"type"`
	SourceConfig   json.RawMessage `json:"source_config,omitempty"`
	FileSHA        string          `json:"file_sha"`
	FileSize       int64           `json:"file_size"`
	Enabled        bool            `json:"enabled"`
	EmbeddingModel string          `json:"embedding_model,omitempty"`
	RetrievalCount int64           `json:"retrieval_count"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

type SubmitResultResponse struct {
	Knowledge *KnowledgeResponse `json:"knowledge"`
	Task      *TaskResponse      `json:"task,omitempty"`
	Duplicate bool               `json:"duplicate"`
}

type ListKnowledgeResponse struct {
	Items    []*KnowledgeResponse `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type DeleteKnowledgeRequest struct {
	KnowledgeIDs []string `json:"knowledge_ids"`
}

type IsSavedResponse struct {
	Saved bool `json:"saved"`
}

func knowledgeToResponse(k *domain.Knowledge) *KnowledgeResponse {
	return &KnowledgeResponse{
		KnowledgeID:    k.KnowledgeID,
		TenantID:       k.TenantID,
		SpaceID:        k.SpaceID,
		ParentID:       k.ParentID,
		Name:           k.Name,
		SourceType:     string(k.SourceType),
		Type:           string(k.Type),
		SourceConfig:   k.SourceConfig,
		FileSHA:        k.FileSHA,
		FileSize:       k.FileSize,
		Enabled:        k.Enabled,
		EmbeddingModel: k.EmbeddingModel,
		RetrievalCount: k.RetrievalCount,
		CreatedAt:      k.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      k.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *KnowledgeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SubmitKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Items) == 0 {
		api.Error(w, http.StatusBadRequest, "items is required")
		return
	}

	inputs := make([]service.SubmitInput, 0, len(req.Items))
	for _, item := range req.Items {
		if item.SpaceID == "" {
			api.Error(w, http.StatusBadRequest, "space_id is required")
			return
		}
		if item.Name == "" {
			api.Error(w, http.StatusBadRequest, "name is required")
			return
		}
		sourceType := domain.KnowledgeSourceType(item.SourceType)
		if !isValidSourceType(sourceType) {
			api.Error(w, http.StatusBadRequest, "invalid source type")
			return
		}
		knowledgeType := domain.KnowledgeType(item.Type)
		if !isValidKnowledgeType(knowledgeType) {
			api.Error(w, http.StatusBadRequest, "invalid knowledge type")
			return
		}

		inputs = append(inputs, service.SubmitInput{
			TenantID:     tenantID,
			SpaceID:      item.SpaceID,
			Name:         item.Name,
			SourceType:   sourceType,
			Type:         knowledgeType,
			SourceConfig: item.SourceConfig,
			FileSHA:      item.FileSHA,
			FileSize:     item.FileSize,
		})
	}

	results, err := h.svc.Submit(r.Context(), inputs)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*SubmitResultResponse, 0, len(results))
	for _, res := range results {
		item := &SubmitResultResponse{
			Knowledge: knowledgeToResponse(res.Knowledge),
			Duplicate: res.Duplicate,
		}
		if res.Task != nil {
			item.Task = taskToResponse(res.Task)
		}
		resp = append(resp, item)
	}

	api.Success(w, http.StatusCreated, resp)
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	knowledgeID := chi.URLParam(r, "knowledgeID")
	if knowledgeID == "" {
		api.Error(w, http.StatusBadRequest, "knowledge id is required")
		return
	}

	k, err := h.svc.GetByID(r.Context(), tenantID, knowledgeID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(k))
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
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

	items := make([]*KnowledgeResponse, 0, len(page.Items))
	for _, k := range page.Items {
		items = append(items, knowledgeToResponse(k))
	}

	api.Success(w, http.StatusOK, ListKnowledgeResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

func (h *KnowledgeHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	knowledgeID := chi.URLParam(r, "knowledgeID")
	if knowledgeID == "" {
		api.Error(w, http.StatusBadRequest, "knowledge id is required")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	k, err := h.svc.SetEnabled(r.Context(), tenantID, knowledgeID, req.Enabled)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(k))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DeleteKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.KnowledgeIDs) == 0 {
		api.Error(w, http.StatusBadRequest, "knowledge_ids is required")
		return
	}

	if err := h.svc.Delete(r.Context(), tenantID, req.KnowledgeIDs); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *KnowledgeHandler) IsSaved(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	spaceID := r.URL.Query().Get("space_id")
	fileSHA := r.URL.Query().Get("file_sha")
	if spaceID == "" || fileSHA == "" {
		api.Error(w, http.StatusBadRequest, "space_id and file_sha are required")
		return
	}

	saved, err := h.svc.IsSaved(r.Context(), tenantID, spaceID, fileSHA)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, IsSavedResponse{Saved: saved})
}

// paginationParams parses page/page_size plus eq.<column>=<value> equality
// filters from the query string. Column names are validated downstream
// against the repository allow-list.
func paginationParams(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{}

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return params, pagination.ErrInvalidPage
		}
		params.Page = page
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return params, pagination.ErrInvalidPage
		}
		params.PageSize = size
	}

	for key, values := range r.URL.Query() {
		if len(key) > 3 && key[:3] == "eq." && len(values) > 0 {
			if params.EqConditions == nil {
				params.EqConditions = map[string]string{}
			}
			params.EqConditions[key[3:]] = values[0]
		}
	}

	if err := params.Normalize(); err != nil {
		return params, err
	}
	return params, nil
}

func isValidSourceType(t domain.KnowledgeSourceType) bool {
	switch t {
	case domain.SourceTypeUserInputText, domain.SourceTypeGithubRepo, domain.SourceTypeGithubFile, domain.SourceTypeS3Object:
		return true
	default:
		return false
	}
}

func isValidKnowledgeType(t domain.KnowledgeType) bool {
	switch t {
	case domain.KnowledgeTypeText, domain.KnowledgeTypeMarkdown, domain.KnowledgeTypeFolder:
		return true
	default:
		return false
	}
}
