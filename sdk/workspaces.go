package sdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Oudwins/taskforge/internals/prs"
	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/workspaces"
)

func workspacePath(id string, suffix string) string {
	return "/workspaces/" + url.PathEscape(id) + suffix
}

func (c *Client) StartWorkspace(ctx context.Context, request schemas.WorkspaceStartRequest) (*workspaces.StartResult, error) {
	var out workspaces.StartResult
	if err := c.call(ctx, http.MethodPost, "/workspaces", request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetWorkspace(ctx context.Context, id string) (*workspaces.Details, error) {
	var out workspaces.Details
	if err := c.call(ctx, http.MethodGet, workspacePath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteSession(ctx context.Context, sessionID string, status string) (*store.Session, error) {
	var out store.Session
	path := "/sessions/" + url.PathEscape(sessionID) + "/complete"
	if err := c.call(ctx, http.MethodPost, path, schemas.SessionCompleteRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat keeps a running session's workspace out of the cleanup sweep.
func (c *Client) Heartbeat(ctx context.Context, sessionID string) (*store.Session, error) {
	var out store.Session
	path := "/sessions/" + url.PathEscape(sessionID) + "/heartbeat"
	if err := c.call(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContainerContext resolves the workspace path belongs to. workspaceID may be
// empty.
func (c *Client) ContainerContext(ctx context.Context, path string, workspaceID string) (*workspaces.Context, error) {
	q := url.Values{}
	q.Set("path", path)
	if workspaceID != "" {
		q.Set("workspace_id", workspaceID)
	}
	var out workspaces.Context
	if err := c.call(ctx, http.MethodGet, "/containers/context?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Push(ctx context.Context, workspaceID string, request schemas.PushRequest) (*prs.PushResult, error) {
	var out prs.PushResult
	if err := c.call(ctx, http.MethodPost, workspacePath(workspaceID, "/push"), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePR(ctx context.Context, workspaceID string, request schemas.CreatePRRequest) (*prs.CreatePRResult, error) {
	var out prs.CreatePRResult
	if err := c.call(ctx, http.MethodPost, workspacePath(workspaceID, "/pr"), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PRStatus(ctx context.Context, workspaceID string, repoID string) (*prs.Status, error) {
	var out prs.Status
	path := workspacePath(workspaceID, "/pr") + "?repo_id=" + url.QueryEscape(repoID)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefreshPR(ctx context.Context, workspaceID string, repoID string) (*prs.RefreshResult, error) {
	var out prs.RefreshResult
	if err := c.call(ctx, http.MethodPost, workspacePath(workspaceID, "/pr/refresh"), schemas.RefreshPRRequest{RepoID: repoID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RecordDirectMerge(ctx context.Context, workspaceID string, request schemas.DirectMergeRequest) (*store.MergeRecord, error) {
	var out store.MergeRecord
	if err := c.call(ctx, http.MethodPost, workspacePath(workspaceID, "/merges/direct"), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMerges(ctx context.Context, workspaceID string) ([]store.MergeRecord, error) {
	var out []store.MergeRecord
	if err := c.call(ctx, http.MethodGet, workspacePath(workspaceID, "/merges"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
