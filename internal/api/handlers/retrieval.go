package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/burrow-ai/burrow/internal/api"
	"github.com/burrow-ai/burrow/internal/api/middleware"
	"github.com/burrow-ai/burrow/internal/service"
)

type RetrievalService interface {
	Search(ctx context.Context, input service.SearchInput) ([]*service.RetrievedChunk, error)
}

type RetrievalHandler struct {
	svc RetrievalService
}

func NewRetrievalHandler(svc RetrievalService) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

type SearchRequest struct {
	SpaceID  string `json:"space_id"`
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type RetrievedChunkResponse struct {
	ChunkID     string            `json:"chunk_id"`
	KnowledgeID string            `json:"knowledge_id"`
	Content     string            `json:"content"`
	Score       float64           `json:"score"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type SearchResponse struct {
	Chunks []*RetrievedChunkResponse `json:"chunks"`
}

func (h *RetrievalHandler) Search(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SpaceID == "" {
		api.Error(w, http.StatusBadRequest, "space_id is required")
		return
	}
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	chunks, err := h.svc.Search(r.Context(), service.SearchInput{
		TenantID: tenantID,
		SpaceID:  req.SpaceID,
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{Chunks: make([]*RetrievedChunkResponse, 0, len(chunks))}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, &RetrievedChunkResponse{
			ChunkID:     c.Chunk.ChunkID,
			KnowledgeID: c.Chunk.KnowledgeID,
			Content:     c.Chunk.Content,
			Score:       c.Score,
			Metadata:    c.Chunk.Metadata,
		})
	}

	api.Success(w, http.StatusOK, resp)
}
