package schemas

import (
	"strings"
	"time"

	z "github.com/Oudwins/zog"
)

type TaskCreateRequest struct {
	ProjectID         string  `json:"project_id" zog:"project_id"`
	Title             string  `json:"title" zog:"title"`
	Description       *string `json:"description,omitempty" zog:"description"`
	Assignee          *string `json:"assignee,omitempty" zog:"assignee"`
	ParentWorkspaceID *string `json:"parent_workspace_id,omitempty" zog:"parent_workspace_id"`
}

var TaskCreateSchema = z.Struct(z.Shape{
	"ProjectID": z.String().Required(z.Message("project_id is required")).Trim(),
	"Title":     z.String().Required(z.Message("title is required")).Trim(),
})

// TaskUpdateRequest is a partial update. Absent fields are left alone; an
// empty description or assignee clears it.
type TaskUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Assignee    *string `json:"assignee,omitempty"`
	ChangedBy   string  `json:"changed_by,omitempty"`
}

type TaskAssignRequest struct {
	Assignee  *string `json:"assignee"`
	ChangedBy string  `json:"changed_by,omitempty"`
}

type TaskBulkStatusRequest struct {
	TaskIDs   []string `json:"task_ids" zog:"task_ids"`
	Status    string   `json:"status" zog:"status"`
	ChangedBy string   `json:"changed_by,omitempty" zog:"changed_by"`
}

var TaskBulkStatusSchema = z.Struct(z.Shape{
	"TaskIDs":   z.Slice(z.String().Trim()).Min(1, z.Message("task_ids is required")).Required(z.Message("task_ids is required")),
	"Status":    z.String().Required(z.Message("status is required")).Trim(),
	"ChangedBy": z.String().Optional().Trim(),
})

// TaskListQuery is the query string of GET /tasks. Status is a comma
// separated list; zero times mean no bound.
type TaskListQuery struct {
	ProjectID     string    `zog:"project_id"`
	Status        string    `zog:"status"`
	SortBy        string    `zog:"sort_by"`
	Order         string    `zog:"order"`
	Limit         int       `zog:"limit"`
	Offset        int       `zog:"offset"`
	CreatedAfter  time.Time `zog:"created_after"`
	CreatedBefore time.Time `zog:"created_before"`
	UpdatedAfter  time.Time `zog:"updated_after"`
	UpdatedBefore time.Time `zog:"updated_before"`
}

var TaskListQuerySchema = z.Struct(z.Shape{
	"ProjectID":     z.String().Required(z.Message("project_id is required")).Trim(),
	"Status":        z.String().Optional().Trim(),
	"SortBy":        z.String().Optional().Trim().OneOf([]string{"created_at", "updated_at", "title"}, z.Message("invalid sort_by")),
	"Order":         z.String().Optional().Trim().OneOf([]string{"asc", "desc"}, z.Message("order must be asc or desc")),
	"Limit":         z.Int().Optional().GTE(0, z.Message("limit must not be negative")),
	"Offset":        z.Int().Optional().GTE(0, z.Message("offset must not be negative")),
	"CreatedAfter":  z.Time().Optional(),
	"CreatedBefore": z.Time().Optional(),
	"UpdatedAfter":  z.Time().Optional(),
	"UpdatedBefore": z.Time().Optional(),
})

func (q *TaskListQuery) Statuses() []string {
	var out []string
	for _, part := range strings.Split(q.Status, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type TaskSearchQuery struct {
	ProjectID string `zog:"project_id"`
	Q         string `zog:"q"`
	Limit     int    `zog:"limit"`
}

var TaskSearchQuerySchema = z.Struct(z.Shape{
	"ProjectID": z.String().Required(z.Message("project_id is required")).Trim(),
	"Q":         z.String().Required(z.Message("q is required")).Trim(),
	"Limit":     z.Int().Optional().GTE(0, z.Message("limit must not be negative")),
})

type CommentCreateRequest struct {
	Content string `json:"content" zog:"content"`
	Author  string `json:"author" zog:"author"`
}

var CommentCreateSchema = z.Struct(z.Shape{
	"Content": z.String().Required(z.Message("content is required")).Trim(),
	"Author":  z.String().Required(z.Message("author is required")).Trim(),
})

type ActivityCreateRequest struct {
	AgentName string  `json:"agent_name" zog:"agent_name"`
	Action    string  `json:"action" zog:"action"`
	Summary   *string `json:"summary,omitempty" zog:"summary"`
}

var ActivityCreateSchema = z.Struct(z.Shape{
	"AgentName": z.String().Required(z.Message("agent_name is required")).Trim(),
	"Action":    z.String().Required(z.Message("action is required")).Trim(),
})

type TaskDeleteResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}
