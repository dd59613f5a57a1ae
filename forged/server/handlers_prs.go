package server

import (
	"net/http"
	"strings"

	z "github.com/Oudwins/zog"
	"github.com/go-chi/chi/v5"

	"github.com/Oudwins/taskforge/internals/prs"
	"github.com/Oudwins/taskforge/internals/schemas"
)

func (s *Server) HandlerPush(w http.ResponseWriter, r *http.Request) {
	var req schemas.PushRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.PushSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	result, err := s.Core.PRs.Push(r.Context(), chi.URLParam(r, "id"), req.RepoID, req.Force)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, result)
}

func (s *Server) HandlerCreatePR(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreatePRRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.CreatePRSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	result, err := s.Core.PRs.CreatePR(r.Context(), prs.CreatePRParams{
		WorkspaceID:  chi.URLParam(r, "id"),
		RepoID:       req.RepoID,
		Title:        req.Title,
		Body:         optional(req.Body),
		TargetBranch: optional(req.TargetBranch),
		Draft:        req.Draft,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, result, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerPRStatus(w http.ResponseWriter, r *http.Request) {
	repoID := strings.TrimSpace(r.URL.Query().Get("repo_id"))
	if repoID == "" {
		renderInvalid(w, r, "repo_id is required")
		return
	}
	status, err := s.Core.PRs.GetStatus(r.Context(), chi.URLParam(r, "id"), repoID)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, status)
}

func (s *Server) HandlerRefreshPR(w http.ResponseWriter, r *http.Request) {
	var req schemas.RefreshPRRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.RefreshPRSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	result, err := s.Core.PRs.Refresh(r.Context(), chi.URLParam(r, "id"), req.RepoID)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, result)
}

func (s *Server) HandlerDirectMerge(w http.ResponseWriter, r *http.Request) {
	var req schemas.DirectMergeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.DirectMergeSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	record, err := s.Core.PRs.RecordDirectMerge(r.Context(), prs.DirectMergeParams{
		WorkspaceID:  chi.URLParam(r, "id"),
		RepoID:       req.RepoID,
		CommitHash:   req.CommitHash,
		TargetBranch: optional(req.TargetBranch),
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, record, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerListMerges(w http.ResponseWriter, r *http.Request) {
	list, err := s.Core.PRs.ListMerges(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}
