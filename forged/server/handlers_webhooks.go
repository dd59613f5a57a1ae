package server

import (
	"net/http"
	"strings"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
	"github.com/go-chi/chi/v5"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/webhooks"
)

func (s *Server) HandlerCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req schemas.WebhookCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.WebhookCreateSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	hook, err := s.Core.Webhooks.Create(r.Context(), webhooks.CreateParams{
		ProjectID: req.ProjectID,
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    req.Events,
		IsActive:  req.IsActive,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, hook, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerListWebhooks(w http.ResponseWriter, r *http.Request) {
	list, err := s.Core.Webhooks.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("project_id")))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerGetWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := s.Core.Webhooks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, hook)
}

func (s *Server) HandlerUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var req schemas.WebhookUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hook, err := s.Core.Webhooks.Update(r.Context(), chi.URLParam(r, "id"), webhooks.UpdateParams{
		URL:      req.URL,
		Secret:   req.Secret,
		Events:   req.Events,
		IsActive: req.IsActive,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, hook)
}

func (s *Server) HandlerDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.Core.Webhooks.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		RenderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandlerListDeliveries(w http.ResponseWriter, r *http.Request) {
	var req schemas.DeliveryListQuery
	if issues := schemas.DeliveryListQuerySchema.Parse(zhttp.Request(r), &req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	list, err := s.Core.Webhooks.ListDeliveries(r.Context(), chi.URLParam(r, "id"), req.Limit)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerRedeliver(w http.ResponseWriter, r *http.Request) {
	delivery, err := s.Core.Webhooks.Redeliver(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "delivery_id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, delivery, Render.Status(http.StatusAccepted))
}
