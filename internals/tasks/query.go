package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type ListParams struct {
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

func (s *Service) List(ctx context.Context, params ListParams) ([]store.Task, error) {
	const op = "tasks.List"
	if params.ProjectID == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "project_id is required")
	}
	filter := store.TaskFilter{
		ProjectID:     params.ProjectID,
		Assignee:      params.Assignee,
		CreatedAfter:  params.CreatedAfter,
		CreatedBefore: params.CreatedBefore,
		UpdatedAfter:  params.UpdatedAfter,
		UpdatedBefore: params.UpdatedBefore,
		Offset:        params.Offset,
	}
	for _, raw := range params.Statuses {
		status := store.TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
		if !status.Valid() {
			return nil, errs.Ef(errs.KindInvalidInput, op, "invalid status %q", raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	filter.SortBy = params.SortBy
	if filter.SortBy == "" {
		filter.SortBy = "created_at"
	}
	switch filter.SortBy {
	case "created_at", "updated_at", "title":
	default:
		return nil, errs.Ef(errs.KindInvalidInput, op, "invalid sort_by %q", params.SortBy)
	}
	filter.Order = strings.ToLower(params.Order)
	switch filter.Order {
	case "":
		filter.Order = "desc"
	case "asc", "desc":
	default:
		return nil, errs.Ef(errs.KindInvalidInput, op, "invalid order %q", params.Order)
	}

	limit, err := clampLimit(op, params.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit
	if params.Offset < 0 {
		return nil, errs.E(errs.KindInvalidInput, op, "offset must not be negative")
	}
	return s.store.ListTasks(ctx, filter)
}

// Search is a case-insensitive substring match over title and description.
func (s *Service) Search(ctx context.Context, projectID string, query string, limit int) ([]store.Task, error) {
	const op = "tasks.Search"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "query is required")
	}
	if projectID == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "project_id is required")
	}
	limit, err := clampLimit(op, limit)
	if err != nil {
		return nil, err
	}
	return s.store.SearchTasks(ctx, projectID, query, limit)
}

func (s *Service) AddComment(ctx context.Context, taskID string, content string, author string) (*store.Comment, error) {
	const op = "tasks.AddComment"
	if strings.TrimSpace(content) == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "content cannot be empty")
	}
	if strings.TrimSpace(author) == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "author cannot be empty")
	}

	var comment *store.Comment
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetTask(ctx, taskID); err != nil {
			return notFound(op, "task", err)
		}
		comment = &store.Comment{
			ID:        store.NewID(),
			TaskID:    taskID,
			Content:   content,
			Author:    strings.TrimSpace(author),
			CreatedAt: q.Now(),
		}
		return q.InsertComment(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *Service) ListComments(ctx context.Context, taskID string) ([]store.Comment, error) {
	if _, err := s.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, taskID)
}

type ActivityParams struct {
	AgentName string
	Action    string
	Summary   *string
}

func (s *Service) AppendActivity(ctx context.Context, taskID string, params ActivityParams) (*store.ActivityEntry, error) {
	var entry *store.ActivityEntry
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		entry, err = AppendActivityTx(ctx, q, taskID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AppendActivityTx appends to the activity log inside the caller's
// transaction.
func AppendActivityTx(ctx context.Context, q *store.Queries, taskID string, params ActivityParams) (*store.ActivityEntry, error) {
	const op = "tasks.AppendActivity"
	agent := strings.TrimSpace(params.AgentName)
	action := strings.TrimSpace(params.Action)
	if agent == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "agent_name cannot be empty")
	}
	if action == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "action cannot be empty")
	}
	if _, err := q.GetTask(ctx, taskID); err != nil {
		return nil, notFound(op, "task", err)
	}
	entry := &store.ActivityEntry{
		ID:        store.NewID(),
		TaskID:    taskID,
		AgentName: agent,
		Action:    action,
		Summary:   blankToNil(params.Summary),
		Timestamp: q.Now(),
	}
	if err := q.InsertActivity(ctx, entry); err != nil {
		return nil, err
	}
	// an agent reporting progress keeps its workspaces out of the sweep
	if err := q.TouchTaskWorkspaces(ctx, taskID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ListActivity(ctx context.Context, taskID string) ([]store.ActivityEntry, error) {
	if _, err := s.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListActivity(ctx, taskID)
}

func clampLimit(op string, limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, errs.E(errs.KindInvalidInput, op, "limit must not be negative")
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	default:
		return limit, nil
	}
}
