package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const taskColumns = `id, project_id, title, description, status, assignee, parent_workspace_id, created_at, updated_at`

func scanTask(scan func(dest ...any) error) (*Task, error) {
	var t Task
	var description, assignee, parent sql.NullString
	var status, createdAt, updatedAt string
	if err := scan(&t.ID, &t.ProjectID, &t.Title, &description, &status, &assignee, &parent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Description = stringPtr(description)
	t.Status = TaskStatus(status)
	t.Assignee = stringPtr(assignee)
	t.ParentWorkspaceID = stringPtr(parent)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func (q *Queries) InsertTask(ctx context.Context, t *Task) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, t.ID, t.ProjectID, t.Title, nullString(t.Description), string(t.Status), nullString(t.Assignee), nullString(t.ParentWorkspaceID), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

func (q *Queries) GetTask(ctx context.Context, id string) (*Task, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return task, nil
}

// UpdateTask writes every mutable column of t.
func (q *Queries) UpdateTask(ctx context.Context, t *Task) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks
SET title = ?, description = ?, status = ?, assignee = ?, parent_workspace_id = ?, updated_at = ?
WHERE id = ?
`, t.Title, nullString(t.Description), string(t.Status), nullString(t.Assignee), nullString(t.ParentWorkspaceID), formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

type TaskFilter struct {
	ProjectID     string
	Statuses      []TaskStatus
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

var taskSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "title COLLATE NOCASE",
}

func (q *Queries) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	where := []string{"project_id = ?"}
	args := []any{filter.ProjectID}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Assignee != nil {
		where = append(where, "assignee = ?")
		args = append(args, *filter.Assignee)
	}
	timeFilters := []struct {
		value *time.Time
		cond  string
	}{
		{filter.CreatedAfter, "created_at > ?"},
		{filter.CreatedBefore, "created_at < ?"},
		{filter.UpdatedAfter, "updated_at > ?"},
		{filter.UpdatedBefore, "updated_at < ?"},
	}
	for _, tf := range timeFilters {
		if tf.value != nil {
			where = append(where, tf.cond)
			args = append(args, formatTime(*tf.value))
		}
	}

	column, ok := taskSortColumns[filter.SortBy]
	if !ok {
		return nil, fmt.Errorf("invalid sort column %q", filter.SortBy)
	}
	order := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		order = "ASC"
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + column + ` ` + order + `, id ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)
	return q.queryTasks(ctx, query, args...)
}

// SearchTasks matches query as a case-insensitive substring of title or
// description.
func (q *Queries) SearchTasks(ctx context.Context, projectID string, query string, limit int) ([]Task, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return q.queryTasks(ctx, `
SELECT `+taskColumns+`
FROM tasks
WHERE project_id = ?
  AND (lower(title) LIKE ? ESCAPE '\' OR lower(coalesce(description, '')) LIKE ? ESCAPE '\')
ORDER BY updated_at DESC, id DESC
LIMIT ?
`, projectID, pattern, pattern, limit)
}

// ListChildTasks returns tasks spawned from any workspace of taskID.
func (q *Queries) ListChildTasks(ctx context.Context, taskID string) ([]Task, error) {
	return q.queryTasks(ctx, `
SELECT `+taskColumns+`
FROM tasks
WHERE parent_workspace_id IN (SELECT id FROM workspaces WHERE task_id = ?)
ORDER BY created_at ASC, id ASC
`, taskID)
}

func (q *Queries) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (q *Queries) InsertHistory(ctx context.Context, entry *HistoryEntry) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO task_history (id, seq, task_id, field_changed, old_value, new_value, changed_by, changed_at)
VALUES (?, (SELECT coalesce(max(seq), 0) + 1 FROM task_history WHERE task_id = ?), ?, ?, ?, ?, ?, ?)
`, entry.ID, entry.TaskID, entry.TaskID, entry.FieldChanged, nullString(entry.OldValue), nullString(entry.NewValue), entry.ChangedBy, formatTime(entry.ChangedAt))
	return err
}

func (q *Queries) ListHistory(ctx context.Context, taskID string) ([]HistoryEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, task_id, field_changed, old_value, new_value, changed_by, changed_at
FROM task_history
WHERE task_id = ?
ORDER BY seq ASC
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var oldValue, newValue sql.NullString
		var changedAt string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.FieldChanged, &oldValue, &newValue, &e.ChangedBy, &changedAt); err != nil {
			return nil, err
		}
		e.OldValue = stringPtr(oldValue)
		e.NewValue = stringPtr(newValue)
		e.ChangedAt = parseTime(changedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *Queries) InsertComment(ctx context.Context, c *Comment) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO task_comments (id, task_id, content, author, created_at)
VALUES (?, ?, ?, ?, ?)
`, c.ID, c.TaskID, c.Content, c.Author, formatTime(c.CreatedAt))
	return err
}

func (q *Queries) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, task_id, content, author, created_at
FROM task_comments
WHERE task_id = ?
ORDER BY created_at ASC, id ASC
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Content, &c.Author, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (q *Queries) InsertActivity(ctx context.Context, a *ActivityEntry) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO task_activity (id, seq, task_id, agent_name, action, summary, recorded_at)
VALUES (?, (SELECT coalesce(max(seq), 0) + 1 FROM task_activity WHERE task_id = ?), ?, ?, ?, ?, ?)
`, a.ID, a.TaskID, a.TaskID, a.AgentName, a.Action, nullString(a.Summary), formatTime(a.Timestamp))
	return err
}

func (q *Queries) ListActivity(ctx context.Context, taskID string) ([]ActivityEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, task_id, agent_name, action, summary, recorded_at
FROM task_activity
WHERE task_id = ?
ORDER BY seq ASC
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []ActivityEntry{}
	for rows.Next() {
		var a ActivityEntry
		var summary sql.NullString
		var recordedAt string
		if err := rows.Scan(&a.ID, &a.TaskID, &a.AgentName, &a.Action, &summary, &recordedAt); err != nil {
			return nil, err
		}
		a.Summary = stringPtr(summary)
		a.Timestamp = parseTime(recordedAt)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
