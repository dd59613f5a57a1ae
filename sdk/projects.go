package sdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
)

func (c *Client) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	var out store.Project
	if err := c.call(ctx, http.MethodPost, "/projects", schemas.ProjectCreateRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]store.Project, error) {
	var out []store.Project
	if err := c.call(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterRepo(ctx context.Context, projectID string, request schemas.RepoCreateRequest) (*store.Repo, error) {
	var out store.Repo
	if err := c.call(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/repos", request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRepos(ctx context.Context, projectID string) ([]store.Repo, error) {
	var out []store.Repo
	if err := c.call(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/repos", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRepo(ctx context.Context, id string) (*store.Repo, error) {
	var out store.Repo
	if err := c.call(ctx, http.MethodGet, "/repos/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
