// Package tasks is the task state machine: field updates with one history
// entry per changed field, comments, the agent activity log and the
// relationship reads. Status is not constrained by a transition graph; the
// only machine-driven transition is CompleteIfInReview.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/metrics"
	"github.com/Oudwins/taskforge/internals/store"
)

const DefaultActor = "api"

type Service struct {
	store  *store.Store
	events events.Sink
	logger *slog.Logger
}

func New(s *store.Store, sink events.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, events: sink, logger: logger}
}

type CreateParams struct {
	ProjectID         string
	Title             string
	Description       *string
	Assignee          *string
	ParentWorkspaceID *string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*store.Task, error) {
	const op = "tasks.Create"
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "title is required")
	}
	if params.ProjectID == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "project_id is required")
	}

	var task *store.Task
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetProject(ctx, params.ProjectID); err != nil {
			return notFound(op, "project", err)
		}
		if params.ParentWorkspaceID != nil {
			if _, err := q.GetWorkspace(ctx, *params.ParentWorkspaceID); err != nil {
				return notFound(op, "parent workspace", err)
			}
		}
		now := q.Now()
		task = &store.Task{
			ID:                store.NewID(),
			ProjectID:         params.ProjectID,
			Title:             title,
			Description:       blankToNil(params.Description),
			Status:            store.TaskStatusTodo,
			Assignee:          blankToNil(params.Assignee),
			ParentWorkspaceID: params.ParentWorkspaceID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := q.InsertTask(ctx, task); err != nil {
			return err
		}
		return s.events.Enqueue(ctx, q, task.ProjectID, events.TaskCreated, task)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTaskOp(ctx, "create")
	s.logger.Debug("Task created", slog.String("task_id", task.ID), slog.String("project_id", task.ProjectID))
	return task, nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, notFound("tasks.Get", "task", err)
	}
	return task, nil
}

// UpdateParams carries the fields to change. A nil field is left alone. An
// empty Description or Assignee clears it.
type UpdateParams struct {
	Title       *string
	Description *string
	Status      *store.TaskStatus
	Assignee    *string
	ChangedBy   string
}

func (p UpdateParams) validate(op string) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errs.E(errs.KindInvalidInput, op, "title cannot be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return errs.Ef(errs.KindInvalidInput, op, "invalid status %q", *p.Status)
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*store.Task, error) {
	const op = "tasks.Update"
	if err := params.validate(op); err != nil {
		return nil, err
	}

	var task *store.Task
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		task, _, err = s.UpdateTx(ctx, q, id, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTaskOp(ctx, "update")
	return task, nil
}

// UpdateTx applies params inside the caller's transaction and returns the
// names of the fields that actually changed. Nothing is written when no value
// differs.
func (s *Service) UpdateTx(ctx context.Context, q *store.Queries, id string, params UpdateParams) (*store.Task, []string, error) {
	const op = "tasks.Update"
	if err := params.validate(op); err != nil {
		return nil, nil, err
	}
	task, err := q.GetTask(ctx, id)
	if err != nil {
		return nil, nil, notFound(op, "task", err)
	}

	actor := params.ChangedBy
	if actor == "" {
		actor = DefaultActor
	}
	previousStatus := task.Status

	var changes []change
	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title != task.Title {
			changes = append(changes, change{"title", strPtr(task.Title), strPtr(title)})
			task.Title = title
		}
	}
	if params.Description != nil {
		next := blankToNil(params.Description)
		if !sameString(task.Description, next) {
			changes = append(changes, change{"description", task.Description, next})
			task.Description = next
		}
	}
	if params.Status != nil && *params.Status != task.Status {
		changes = append(changes, change{"status", strPtr(string(task.Status)), strPtr(string(*params.Status))})
		task.Status = *params.Status
	}
	if params.Assignee != nil {
		next := blankToNil(params.Assignee)
		if !sameString(task.Assignee, next) {
			changes = append(changes, change{"assignee", task.Assignee, next})
			task.Assignee = next
		}
	}
	if len(changes) == 0 {
		return task, nil, nil
	}

	now := q.Now()
	task.UpdatedAt = now
	if err := q.UpdateTask(ctx, task); err != nil {
		return nil, nil, err
	}
	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.field
		entry := &store.HistoryEntry{
			ID:           store.NewID(),
			TaskID:       task.ID,
			FieldChanged: c.field,
			OldValue:     c.old,
			NewValue:     c.new,
			ChangedBy:    actor,
			ChangedAt:    now,
		}
		if err := q.InsertHistory(ctx, entry); err != nil {
			return nil, nil, err
		}
	}

	if err := s.events.Enqueue(ctx, q, task.ProjectID, events.TaskUpdated, UpdatedEvent{Task: task, ChangedFields: fields, ChangedBy: actor}); err != nil {
		return nil, nil, err
	}
	if task.Status == store.TaskStatusDone && previousStatus != store.TaskStatusDone {
		if err := s.events.Enqueue(ctx, q, task.ProjectID, events.TaskCompleted, task); err != nil {
			return nil, nil, err
		}
	}
	return task, fields, nil
}

// UpdatedEvent is the payload of task_updated.
type UpdatedEvent struct {
	Task          *store.Task `json:"task"`
	ChangedFields []string    `json:"changed_fields"`
	ChangedBy     string      `json:"changed_by"`
}

// CompleteIfInReview moves the task to done only when it is exactly in
// review. Any other status is left untouched.
func (s *Service) CompleteIfInReview(ctx context.Context, q *store.Queries, taskID string, actor string) (bool, error) {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return false, notFound("tasks.CompleteIfInReview", "task", err)
	}
	if task.Status != store.TaskStatusInReview {
		return false, nil
	}
	done := store.TaskStatusDone
	if _, _, err := s.UpdateTx(ctx, q, taskID, UpdateParams{Status: &done, ChangedBy: actor}); err != nil {
		return false, err
	}
	return true, nil
}

// BulkUpdateStatus sets status on every id in one transaction. A missing id
// aborts the whole batch.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []string, status store.TaskStatus, actor string) ([]store.Task, error) {
	const op = "tasks.BulkUpdateStatus"
	if len(ids) == 0 {
		return nil, errs.E(errs.KindInvalidInput, op, "task_ids is required")
	}
	if !status.Valid() {
		return nil, errs.Ef(errs.KindInvalidInput, op, "invalid status %q", status)
	}

	updated := make([]store.Task, 0, len(ids))
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			task, _, err := s.UpdateTx(ctx, q, id, UpdateParams{Status: &status, ChangedBy: actor})
			if err != nil {
				return err
			}
			updated = append(updated, *task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTaskOp(ctx, "bulk_status")
	return updated, nil
}

// Assign sets or clears the assignee. A nil or blank assignee unassigns.
func (s *Service) Assign(ctx context.Context, id string, assignee *string, actor string) (*store.Task, error) {
	empty := ""
	if assignee == nil {
		assignee = &empty
	}
	task, err := s.Update(ctx, id, UpdateParams{Assignee: assignee, ChangedBy: actor})
	if err != nil {
		return nil, err
	}
	metrics.RecordTaskOp(ctx, "assign")
	return task, nil
}

// Delete removes the task with its comments, history and activity. Tasks that
// still own workspaces are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "tasks.Delete"
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		task, err := q.GetTask(ctx, id)
		if err != nil {
			return notFound(op, "task", err)
		}
		n, err := q.CountWorkspacesByTask(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return errs.Ef(errs.KindFailedPrecondition, op, "task has %d workspace(s)", n)
		}
		if err := q.DeleteTask(ctx, id); err != nil {
			return notFound(op, "task", err)
		}
		return s.events.Enqueue(ctx, q, task.ProjectID, events.TaskDeleted, map[string]string{
			"id":         task.ID,
			"project_id": task.ProjectID,
		})
	})
	if err != nil {
		return err
	}
	metrics.RecordTaskOp(ctx, "delete")
	s.logger.Debug("Task deleted", slog.String("task_id", id))
	return nil
}

func (s *Service) History(ctx context.Context, id string) ([]store.HistoryEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, id)
}

type Relationships struct {
	Parent   *store.Task  `json:"parent"`
	Children []store.Task `json:"children"`
}

// Relationships resolves the parent through parent_workspace_id and the
// children through this task's workspaces.
func (s *Service) Relationships(ctx context.Context, id string) (*Relationships, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rel := &Relationships{}
	if task.ParentWorkspaceID != nil {
		ws, err := s.store.GetWorkspace(ctx, *task.ParentWorkspaceID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			parent, err := s.store.GetTask(ctx, ws.TaskID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			rel.Parent = parent
		}
	}
	rel.Children, err = s.store.ListChildTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

type change struct {
	field string
	old   *string
	new   *string
}

func notFound(op string, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errs.E(errs.KindNotFound, op, what+" not found")
	}
	return err
}

func blankToNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameString(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func strPtr(s string) *string {
	return &s
}
