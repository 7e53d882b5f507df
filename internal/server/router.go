package server

import (
	"net/http"

	"github.com/burrow-ai/burrow/internal/api"
	"github.com/burrow-ai/burrow/internal/api/handlers"
	"github.com/burrow-ai/burrow/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	AuthValidator    middleware.AuthValidator
	KnowledgeHandler *handlers.KnowledgeHandler
	TaskHandler      *handlers.TaskHandler
	RetrievalHandler *handlers.RetrievalHandler
	AuthHandler      *handlers.AuthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/", cfg.KnowledgeHandler.Submit)
			r.Get("/", cfg.KnowledgeHandler.List)
			r.Get("/saved", cfg.KnowledgeHandler.IsSaved)
			r.Get("/{knowledgeID}", cfg.KnowledgeHandler.Get)
			r.Put("/{knowledgeID}/enabled", cfg.KnowledgeHandler.SetEnabled)
			r.Post("/delete", cfg.KnowledgeHandler.Delete)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", cfg.TaskHandler.List)
			r.Get("/{taskID}", cfg.TaskHandler.Get)
			r.Post("/restart", cfg.TaskHandler.Restart)
			r.Post("/cancel", cfg.TaskHandler.Cancel)
		})

		r.Post("/search", cfg.RetrievalHandler.Search)
	})

	r.Post("/tenants", cfg.AuthHandler.CreateTenant)
	r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)

	return r
}
