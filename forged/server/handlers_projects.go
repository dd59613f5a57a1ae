package server

import (
	"net/http"

	z "github.com/Oudwins/zog"
	"github.com/go-chi/chi/v5"

	"github.com/Oudwins/taskforge/internals/projects"
	"github.com/Oudwins/taskforge/internals/schemas"
)

func (s *Server) HandlerCreateProject(w http.ResponseWriter, r *http.Request) {
	var req schemas.ProjectCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.ProjectCreateSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	project, err := s.Core.Projects.Create(r.Context(), req.Name)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, project, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.Core.Projects.List(r.Context())
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.Core.Projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, project)
}

func (s *Server) HandlerCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req schemas.RepoCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := schemas.RepoCreateSchema.Validate(&req); len(issues) > 0 {
		renderIssues(w, r, z.Issues.Flatten(issues))
		return
	}
	repo, err := s.Core.Projects.RegisterRepo(r.Context(), chi.URLParam(r, "id"), projects.RepoParams{
		Name:                req.Name,
		Path:                req.Path,
		RemoteURL:           req.RemoteURL,
		DefaultTargetBranch: req.DefaultTargetBranch,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, repo, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerListRepos(w http.ResponseWriter, r *http.Request) {
	list, err := s.Core.Projects.ListRepos(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, list)
}

func (s *Server) HandlerGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.Core.Projects.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, repo)
}
