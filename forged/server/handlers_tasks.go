package server

import (
	"net/http"
	"strings"
	"time"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
	"github.com/go-chi/chi/v5"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasks"
)

const defaultActor = "api"

func actorOr(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return defaultActor
}

func (s *Server) HandlerCreateTask(w http.ResponseWriter, r *http.Request) {
	var req schemas.TaskCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.TaskCreateSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	task, err := s.Core.Tasks.Create(r.Context(), tasks.CreateParams{
		ProjectID:         req.ProjectID,
		Title:             req.Title,
		Description:       req.Description,
		Assignee:          req.Assignee,
		ParentWorkspaceID: req.ParentWorkspaceID,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, task, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerListTasks(w http.ResponseWriter, r *http.Request) {
	var req schemas.TaskListQuery
	if issues := schemas.TaskListQuerySchema.Parse(zhttp.Request(r), &req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	params := tasks.ListParams{
		ProjectID:     req.ProjectID,
		Statuses:      req.Statuses(),
		SortBy:        req.SortBy,
		Order:         req.Order,
		Limit:         req.Limit,
		Offset:        req.Offset,
		CreatedAfter:  timeBound(req.CreatedAfter),
		CreatedBefore: timeBound(req.CreatedBefore),
		UpdatedAfter:  timeBound(req.UpdatedAfter),
		UpdatedBefore: timeBound(req.UpdatedBefore),
	}
	// an empty assignee filters unassigned tasks, so presence matters
	if query := r.URL.Query(); query.Has("assignee") {
		assignee := query.Get("assignee")
		params.Assignee = &assignee
	}

	list, err := s.Core.Tasks.List(r.Context(), params)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerSearchTasks(w http.ResponseWriter, r *http.Request) {
	var req schemas.TaskSearchQuery
	if issues := schemas.TaskSearchQuerySchema.Parse(zhttp.Request(r), &req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	list, err := s.Core.Tasks.Search(r.Context(), req.ProjectID, req.Q, req.Limit)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func timeBound(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) HandlerBulkStatus(w http.ResponseWriter, r *http.Request) {
	var req schemas.TaskBulkStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.TaskBulkStatusSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	list, err := s.Core.Tasks.BulkUpdateStatus(r.Context(), req.TaskIDs, store.TaskStatus(req.Status), actorOr(req.ChangedBy))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Core.Tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, task)
}

func (s *Server) HandlerUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req schemas.TaskUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params := tasks.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Assignee:    req.Assignee,
		ChangedBy:   actorOr(req.ChangedBy),
	}
	if req.Status != nil {
		status := store.TaskStatus(strings.TrimSpace(*req.Status))
		params.Status = &status
	}
	task, err := s.Core.Tasks.Update(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, task)
}

func (s *Server) HandlerDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Core.Tasks.Delete(r.Context(), id); err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, schemas.TaskDeleteResponse{Deleted: true, ID: id})
}

func (s *Server) HandlerAssignTask(w http.ResponseWriter, r *http.Request) {
	var req schemas.TaskAssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.Core.Tasks.Assign(r.Context(), chi.URLParam(r, "id"), req.Assignee, actorOr(req.ChangedBy))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, task)
}

func (s *Server) HandlerTaskRelationships(w http.ResponseWriter, r *http.Request) {
	rel, err := s.Core.Tasks.Relationships(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, rel)
}

func (s *Server) HandlerTaskHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.Core.Tasks.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, history)
}

func (s *Server) HandlerCreateComment(w http.ResponseWriter, r *http.Request) {
	var req schemas.CommentCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.CommentCreateSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	comment, err := s.Core.Tasks.AddComment(r.Context(), chi.URLParam(r, "id"), req.Content, req.Author)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, comment, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerListComments(w http.ResponseWriter, r *http.Request) {
	list, err := s.Core.Tasks.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerAppendActivity(w http.ResponseWriter, r *http.Request) {
	var req schemas.ActivityCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.ActivityCreateSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	entry, err := s.Core.Tasks.AppendActivity(r.Context(), chi.URLParam(r, "id"), tasks.ActivityParams{
		AgentName: req.AgentName,
		Action:    req.Action,
		Summary:   req.Summary,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, entry, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerListActivity(w http.ResponseWriter, r *http.Request) {
	list, err := s.Core.Tasks.ListActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerTaskWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.Core.Workspaces.ListByTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}
