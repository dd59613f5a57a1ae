package sdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasks"
)

type ListTasksParams struct {
	ProjectID     string
	Statuses      []string
	Assignee      *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
	SortBy        string
	Order         string
	Limit         int
	Offset        int
}

func (p ListTasksParams) query() url.Values {
	q := url.Values{}
	q.Set("project_id", p.ProjectID)
	if len(p.Statuses) > 0 {
		q.Set("status", strings.Join(p.Statuses, ","))
	}
	if p.Assignee != nil {
		q.Set("assignee", *p.Assignee)
	}
	for key, value := range map[string]*time.Time{
		"created_after":  p.CreatedAfter,
		"created_before": p.CreatedBefore,
		"updated_after":  p.UpdatedAfter,
		"updated_before": p.UpdatedBefore,
	} {
		if value != nil {
			q.Set(key, value.UTC().Format(time.RFC3339))
		}
	}
	if p.SortBy != "" {
		q.Set("sort_by", p.SortBy)
	}
	if p.Order != "" {
		q.Set("order", p.Order)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

func taskPath(id string, suffix string) string {
	return "/tasks/" + url.PathEscape(id) + suffix
}

func (c *Client) CreateTask(ctx context.Context, request schemas.TaskCreateRequest) (*store.Task, error) {
	var out store.Task
	if err := c.call(ctx, http.MethodPost, "/tasks", request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*store.Task, error) {
	var out store.Task
	if err := c.call(ctx, http.MethodGet, taskPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTasks(ctx context.Context, params ListTasksParams) ([]store.Task, error) {
	var out []store.Task
	if err := c.call(ctx, http.MethodGet, "/tasks?"+params.query().Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SearchTasks(ctx context.Context, projectID string, query string, limit int) ([]store.Task, error) {
	q := url.Values{}
	q.Set("project_id", projectID)
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []store.Task
	if err := c.call(ctx, http.MethodGet, "/tasks/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, request schemas.TaskUpdateRequest) (*store.Task, error) {
	var out store.Task
	if err := c.call(ctx, http.MethodPatch, taskPath(id, ""), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, taskPath(id, ""), nil, nil)
}

func (c *Client) AssignTask(ctx context.Context, id string, request schemas.TaskAssignRequest) (*store.Task, error) {
	var out store.Task
	if err := c.call(ctx, http.MethodPost, taskPath(id, "/assign"), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BulkUpdateStatus(ctx context.Context, request schemas.TaskBulkStatusRequest) ([]store.Task, error) {
	var out []store.Task
	if err := c.call(ctx, http.MethodPost, "/tasks/bulk-status", request, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TaskHistory(ctx context.Context, id string) ([]store.HistoryEntry, error) {
	var out []store.HistoryEntry
	if err := c.call(ctx, http.MethodGet, taskPath(id, "/history"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TaskRelationships(ctx context.Context, id string) (*tasks.Relationships, error) {
	var out tasks.Relationships
	if err := c.call(ctx, http.MethodGet, taskPath(id, "/relationships"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddComment(ctx context.Context, id string, request schemas.CommentCreateRequest) (*store.Comment, error) {
	var out store.Comment
	if err := c.call(ctx, http.MethodPost, taskPath(id, "/comments"), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListComments(ctx context.Context, id string) ([]store.Comment, error) {
	var out []store.Comment
	if err := c.call(ctx, http.MethodGet, taskPath(id, "/comments"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AppendActivity(ctx context.Context, id string, request schemas.ActivityCreateRequest) (*store.ActivityEntry, error) {
	var out store.ActivityEntry
	if err := c.call(ctx, http.MethodPost, taskPath(id, "/activity"), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListActivity(ctx context.Context, id string) ([]store.ActivityEntry, error) {
	var out []store.ActivityEntry
	if err := c.call(ctx, http.MethodGet, taskPath(id, "/activity"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TaskWorkspaces(ctx context.Context, id string) ([]store.Workspace, error) {
	var out []store.Workspace
	if err := c.call(ctx, http.MethodGet, taskPath(id, "/workspaces"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
