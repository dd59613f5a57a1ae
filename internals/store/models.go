package store

import "time"

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repo struct {
	ID                  string    `json:"id"`
	ProjectID           string    `json:"project_id"`
	Name                string    `json:"name"`
	Path                string    `json:"path"`
	RemoteURL           string    `json:"remote_url,omitempty"`
	DefaultTargetBranch string    `json:"default_target_branch"`
	CreatedAt           time.Time `json:"created_at"`
}

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "inprogress"
	TaskStatusInReview   TaskStatus = "inreview"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

var TaskStatuses = []TaskStatus{
	TaskStatusTodo,
	TaskStatusInProgress,
	TaskStatusInReview,
	TaskStatusDone,
	TaskStatusCancelled,
}

func (s TaskStatus) Valid() bool {
	for _, status := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type Task struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"project_id"`
	Title             string     `json:"title"`
	Description       *string    `json:"description,omitempty"`
	Status            TaskStatus `json:"status"`
	Assignee          *string    `json:"assignee,omitempty"`
	ParentWorkspaceID *string    `json:"parent_workspace_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type HistoryEntry struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	FieldChanged string    `json:"field_changed"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	ChangedBy    string    `json:"changed_by"`
	ChangedAt    time.Time `json:"changed_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type ActivityEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AgentName string    `json:"agent_name"`
	Action    string    `json:"action"`
	Summary   *string   `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type WorkspaceMode string

const (
	WorkspaceModeWorktree WorkspaceMode = "worktree"
	WorkspaceModeBranch   WorkspaceMode = "branch"
)

type Workspace struct {
	ID               string        `json:"id"`
	TaskID           string        `json:"task_id"`
	BranchName       string        `json:"branch_name"`
	Mode             WorkspaceMode `json:"mode"`
	ContainerRef     *string       `json:"container_ref,omitempty"`
	WorktreeRoot     *string       `json:"worktree_root,omitempty"`
	SetupCompletedAt *time.Time    `json:"setup_completed_at"`
	SetupFailedAt    *time.Time    `json:"setup_failed_at,omitempty"`
	SetupError       *string       `json:"setup_error,omitempty"`
	LastActivityAt   time.Time     `json:"last_activity_at"`
	CleanedAt        *time.Time    `json:"cleaned_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// SetupState folds the setup columns into one value.
func (w *Workspace) SetupState() string {
	switch {
	case w.SetupCompletedAt != nil:
		return "ready"
	case w.SetupFailedAt != nil:
		return "failed"
	default:
		return "pending"
	}
}

// WorkspaceRepo is a workspace-repo link joined with the repo it points to.
type WorkspaceRepo struct {
	WorkspaceID  string     `json:"workspace_id"`
	RepoID       string     `json:"repo_id"`
	RepoName     string     `json:"repo_name"`
	RepoPath     string     `json:"repo_path"`
	RemoteURL    string     `json:"remote_url,omitempty"`
	TargetBranch string     `json:"target_branch"`
	WorktreePath *string    `json:"worktree_path,omitempty"`
	PushedAt     *time.Time `json:"pushed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

type Session struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspace_id"`
	Executor    string        `json:"executor"`
	Variant     *string       `json:"variant,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

type PRStatus string

const (
	PRStatusOpen    PRStatus = "open"
	PRStatusMerged  PRStatus = "merged"
	PRStatusClosed  PRStatus = "closed"
	PRStatusUnknown PRStatus = "unknown"
)

func ParsePRStatus(value string) PRStatus {
	switch PRStatus(value) {
	case PRStatusOpen, PRStatusMerged, PRStatusClosed:
		return PRStatus(value)
	default:
		return PRStatusUnknown
	}
}

type MergeKind string

const (
	MergeKindDirect MergeKind = "direct"
	MergeKindPR     MergeKind = "pr"
)

// Merge is either *DirectMerge or *PRMerge.
type Merge interface {
	Kind() MergeKind
}

type DirectMerge struct {
	CommitHash string `json:"merge_commit"`
}

func (*DirectMerge) Kind() MergeKind { return MergeKindDirect }

type PRMerge struct {
	Number      int64      `json:"pr_number"`
	URL         string     `json:"pr_url"`
	Status      PRStatus   `json:"status"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`
	MergeCommit *string    `json:"merge_commit,omitempty"`
}

func (*PRMerge) Kind() MergeKind { return MergeKindPR }

type MergeRecord struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspace_id"`
	RepoID       string    `json:"repo_id"`
	TargetBranch string    `json:"target_branch"`
	Merge        Merge     `json:"merge"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PR returns the PR variant, or nil for a direct merge.
func (m *MergeRecord) PR() *PRMerge {
	pr, _ := m.Merge.(*PRMerge)
	return pr
}

type Webhook struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscribes reports whether the webhook wants event. An empty event set
// subscribes to everything.
func (w *Webhook) Subscribes(event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

type Delivery struct {
	ID             string         `json:"id"`
	WebhookID      string         `json:"webhook_id"`
	EventType      string         `json:"event_type"`
	Payload        string         `json:"payload"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      *string        `json:"last_error,omitempty"`
	ResponseStatus *int           `json:"response_status,omitempty"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
