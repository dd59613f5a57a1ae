package server

import (
	"net/http"
	"strings"

	z "github.com/Oudwins/zog"
	"github.com/go-chi/chi/v5"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/workspaces"
)

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// HandlerStartWorkspace answers 202 while a worktree is still being set up
// in the background and 201 once the workspace is usable.
func (s *Server) HandlerStartWorkspace(w http.ResponseWriter, r *http.Request) {
	var req schemas.WorkspaceStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.WorkspaceStartSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	repos := make([]workspaces.RepoRequest, 0, len(req.Repos))
	for _, repo := range req.Repos {
		repos = append(repos, workspaces.RepoRequest{RepoID: repo.RepoID, BaseBranch: repo.BaseBranch})
	}
	result, err := s.Core.Workspaces.StartSession(r.Context(), workspaces.StartParams{
		TaskID:    req.TaskID,
		Executor:  req.Executor,
		Variant:   optional(req.Variant),
		Repos:     repos,
		AgentName: optional(req.AgentName),
		Mode:      req.Mode,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Workspace.SetupState() == "pending" {
		status = http.StatusAccepted
	}
	RenderJSON(w, r, result, Render.Status(status))
}

func (s *Server) HandlerGetWorkspace(w http.ResponseWriter, r *http.Request) {
	details, err := s.Core.Workspaces.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, details)
}

func (s *Server) HandlerCompleteSession(w http.ResponseWriter, r *http.Request) {
	var req schemas.SessionCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status := store.SessionStatus(strings.TrimSpace(req.Status))
	if status == "" {
		status = store.SessionStatusCompleted
	}
	session, err := s.Core.Workspaces.CompleteSession(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, session)
}

func (s *Server) HandlerSessionHeartbeat(w http.ResponseWriter, r *http.Request) {
	session, err := s.Core.Workspaces.Heartbeat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, session)
}

// HandlerContainerContext resolves the workspace a path belongs to.
// workspace_id picks between branch-mode workspaces sharing one checkout.
func (s *Server) HandlerContainerContext(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	path := strings.TrimSpace(query.Get("path"))
	workspaceID := strings.TrimSpace(query.Get("workspace_id"))
	wsContext, err := s.Core.Workspaces.Context(r.Context(), path, workspaceID)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, wsContext)
}
