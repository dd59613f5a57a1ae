package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.MiddlewareLogger)

	r.Get("/version", s.HandlerVersion)
	r.Get("/healthz", s.HandlerHealth)
	r.Post("/shutdown", s.HandlerShutdown)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", s.HandlerCreateProject)
		r.Get("/", s.HandlerListProjects)
		r.Get("/{id}", s.HandlerGetProject)
		r.Post("/{id}/repos", s.HandlerCreateRepo)
		r.Get("/{id}/repos", s.HandlerListRepos)
	})
	r.Get("/repos/{id}", s.HandlerGetRepo)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.HandlerCreateTask)
		r.Get("/", s.HandlerListTasks)
		r.Get("/search", s.HandlerSearchTasks)
		r.Post("/bulk-status", s.HandlerBulkStatus)
		r.Get("/{id}", s.HandlerGetTask)
		r.Patch("/{id}", s.HandlerUpdateTask)
		r.Delete("/{id}", s.HandlerDeleteTask)
		r.Post("/{id}/assign", s.HandlerAssignTask)
		r.Get("/{id}/relationships", s.HandlerTaskRelationships)
		r.Get("/{id}/history", s.HandlerTaskHistory)
		r.Post("/{id}/comments", s.HandlerCreateComment)
		r.Get("/{id}/comments", s.HandlerListComments)
		r.Post("/{id}/activity", s.HandlerAppendActivity)
		r.Get("/{id}/activity", s.HandlerListActivity)
		r.Get("/{id}/workspaces", s.HandlerTaskWorkspaces)
	})

	r.Route("/workspaces", func(r chi.Router) {
		r.Post("/", s.HandlerStartWorkspace)
		r.Get("/{id}", s.HandlerGetWorkspace)
		r.Post("/{id}/push", s.HandlerPush)
		r.Post("/{id}/pr", s.HandlerCreatePR)
		r.Get("/{id}/pr", s.HandlerPRStatus)
		r.Post("/{id}/pr/refresh", s.HandlerRefreshPR)
		r.Post("/{id}/merges/direct", s.HandlerDirectMerge)
		r.Get("/{id}/merges", s.HandlerListMerges)
	})
	r.Post("/sessions/{id}/complete", s.HandlerCompleteSession)
	r.Post("/sessions/{id}/heartbeat", s.HandlerSessionHeartbeat)
	r.Get("/containers/context", s.HandlerContainerContext)
	r.Post("/cleanup/sweep", s.HandlerSweep)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", s.HandlerCreateWebhook)
		r.Get("/", s.HandlerListWebhooks)
		r.Get("/{id}", s.HandlerGetWebhook)
		r.Patch("/{id}", s.HandlerUpdateWebhook)
		r.Delete("/{id}", s.HandlerDeleteWebhook)
		r.Get("/{id}/deliveries", s.HandlerListDeliveries)
		r.Post("/{id}/deliveries/{delivery_id}/retry", s.HandlerRedeliver)
	})
	return r
}
