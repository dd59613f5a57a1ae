package store_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/testutil"
)

func newTask(t *testing.T, s *store.Store, projectID string, title string) *store.Task {
	t.Helper()
	now := s.Now()
	task := &store.Task{
		ID:        store.NewID(),
		ProjectID: projectID,
		Title:     title,
		Status:    store.TaskStatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	return task
}

func newWorkspace(t *testing.T, s *store.Store, taskID string, mode store.WorkspaceMode) *store.Workspace {
	t.Helper()
	now := s.Now()
	id := store.NewID()
	ws := &store.Workspace{
		ID:             id,
		TaskID:         taskID,
		BranchName:     "vk-" + id,
		Mode:           mode,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.InsertWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("insert workspace: %v", err)
	}
	return ws
}

func TestGetMissingRowsReturnNotFound(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	if _, err := s.GetTask(ctx, "missing"); err != store.ErrNotFound {
		t.Fatalf("GetTask err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetWorkspace(ctx, "missing"); err != store.ErrNotFound {
		t.Fatalf("GetWorkspace err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateTask(ctx, &store.Task{ID: "missing", Status: store.TaskStatusDone}); err != store.ErrNotFound {
		t.Fatalf("UpdateTask err = %v, want ErrNotFound", err)
	}
}

func TestHistoryIsReturnedInInsertOrder(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	seed := testutil.SeedProject(t, s, t.TempDir())
	task := newTask(t, s, seed.Project.ID, "Fix auth bug")

	// identical timestamps must still come back in insert order
	at := s.Now()
	for _, field := range []string{"status", "title", "assignee"} {
		entry := &store.HistoryEntry{ID: store.NewID(), TaskID: task.ID, FieldChanged: field, ChangedBy: "api", ChangedAt: at}
		if err := s.InsertHistory(ctx, entry); err != nil {
			t.Fatalf("insert history: %v", err)
		}
	}

	entries, err := s.ListHistory(ctx, task.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"status", "title", "assignee"} {
		if entries[i].FieldChanged != want {
			t.Fatalf("entry %d field = %q, want %q", i, entries[i].FieldChanged, want)
		}
	}
}

func TestListTasksRejectsUnknownSort(t *testing.T) {
	s := testutil.OpenStore(t)
	if _, err := s.ListTasks(context.Background(), store.TaskFilter{ProjectID: "p", SortBy: "id; DROP TABLE tasks", Limit: 10}); err == nil {
		t.Fatalf("expected error for unknown sort column")
	}
}

func TestSearchTasksEscapesWildcards(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	seed := testutil.SeedProject(t, s, t.TempDir())
	newTask(t, s, seed.Project.ID, "Raise limit to 100%")
	newTask(t, s, seed.Project.ID, "Unrelated")

	found, err := s.SearchTasks(ctx, seed.Project.ID, "100%", 50)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].Title != "Raise limit to 100%" {
		t.Fatalf("unexpected search result: %+v", found)
	}

	found, err = s.SearchTasks(ctx, seed.Project.ID, "%", 50)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected literal %% match only, got %d", len(found))
	}
}

func TestTaskWithWorkspacesCannotBeDeleted(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	seed := testutil.SeedProject(t, s, t.TempDir())
	task := newTask(t, s, seed.Project.ID, "Keep me")
	newWorkspace(t, s, task.ID, store.WorkspaceModeBranch)

	if err := s.DeleteTask(ctx, task.ID); err == nil {
		t.Fatalf("expected foreign key error")
	}
}

func TestOnlyOneActiveMergePerWorkspaceRepo(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	seed := testutil.SeedProject(t, s, t.TempDir())
	task := newTask(t, s, seed.Project.ID, "Ship it")
	ws := newWorkspace(t, s, task.ID, store.WorkspaceModeBranch)

	insertPR := func(number int64) (*store.MergeRecord, error) {
		now := s.Now()
		record := &store.MergeRecord{
			ID:           store.NewID(),
			WorkspaceID:  ws.ID,
			RepoID:       seed.Repo.ID,
			TargetBranch: "main",
			Merge:        &store.PRMerge{Number: number, URL: "https://github.com/o/r/pull/1", Status: store.PRStatusOpen},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return record, s.InsertMerge(ctx, record)
	}

	first, err := insertPR(1)
	if err != nil {
		t.Fatalf("insert first pr: %v", err)
	}
	if _, err := insertPR(2); err == nil {
		t.Fatalf("expected unique violation for second open pr")
	}

	if err := s.UpdatePRStatus(ctx, store.UpdatePRStatusParams{ID: first.ID, Status: store.PRStatusClosed}); err != nil {
		t.Fatalf("close pr: %v", err)
	}
	second, err := insertPR(2)
	if err != nil {
		t.Fatalf("insert after close: %v", err)
	}

	active, err := s.GetActiveMerge(ctx, ws.ID, seed.Repo.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("active merge = %s, want %s", active.ID, second.ID)
	}
	if pr := active.PR(); pr == nil || pr.Number != 2 || pr.Status != store.PRStatusOpen {
		t.Fatalf("unexpected active pr: %+v", active.Merge)
	}
}

func TestDirectMergeRoundTrip(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	seed := testutil.SeedProject(t, s, t.TempDir())
	task := newTask(t, s, seed.Project.ID, "Direct")
	ws := newWorkspace(t, s, task.ID, store.WorkspaceModeBranch)

	now := s.Now()
	record := &store.MergeRecord{
		ID:           store.NewID(),
		WorkspaceID:  ws.ID,
		RepoID:       seed.Repo.ID,
		TargetBranch: "main",
		Merge:        &store.DirectMerge{CommitHash: "abc123"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.InsertMerge(ctx, record); err != nil {
		t.Fatalf("insert direct merge: %v", err)
	}

	got, err := s.GetActiveMerge(ctx, ws.ID, seed.Repo.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	direct, ok := got.Merge.(*store.DirectMerge)
	if !ok {
		t.Fatalf("expected direct merge, got %T", got.Merge)
	}
	if direct.CommitHash != "abc123" {
		t.Fatalf("commit = %q", direct.CommitHash)
	}
	if got.PR() != nil {
		t.Fatalf("direct merge should not expose a pr")
	}
}

func TestListCleanupCandidates(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	clock := testutil.NewClock()
	s.SetClock(clock.Now)
	seed := testutil.SeedProject(t, s, t.TempDir())
	task := newTask(t, s, seed.Project.ID, "Sweep")

	idle := newWorkspace(t, s, task.ID, store.WorkspaceModeWorktree)
	stale := newWorkspace(t, s, task.ID, store.WorkspaceModeWorktree)
	busy := newWorkspace(t, s, task.ID, store.WorkspaceModeWorktree)
	newWorkspace(t, s, task.ID, store.WorkspaceModeBranch)
	for _, ws := range []*store.Workspace{stale, busy} {
		if err := s.InsertSession(ctx, &store.Session{ID: store.NewID(), WorkspaceID: ws.ID, Executor: "CODEX", Status: store.SessionStatusRunning, CreatedAt: s.Now()}); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	clock.Advance(73 * time.Hour)
	newWorkspace(t, s, task.ID, store.WorkspaceModeWorktree)
	if err := s.TouchWorkspace(ctx, busy.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	candidates, err := s.ListCleanupCandidates(ctx, s.Now().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	ids := map[string]bool{}
	for _, c := range candidates {
		ids[c.ID] = true
	}
	if len(candidates) != 2 || !ids[idle.ID] || !ids[stale.ID] {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}

	n, err := s.AbandonSessions(ctx, stale.ID)
	if err != nil || n != 1 {
		t.Fatalf("abandon sessions = %d, %v", n, err)
	}
	sessions, _ := s.ListSessions(ctx, stale.ID)
	if sessions[0].Status != store.SessionStatusFailed || sessions[0].CompletedAt == nil {
		t.Fatalf("session not failed: %+v", sessions[0])
	}
	if n, _ := s.AbandonSessions(ctx, stale.ID); n != 0 {
		t.Fatalf("second abandon touched %d rows", n)
	}

	if err := s.MarkCleaned(ctx, idle.ID); err != nil {
		t.Fatalf("mark cleaned: %v", err)
	}
	candidates, err = s.ListCleanupCandidates(ctx, s.Now().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != stale.ID {
		t.Fatalf("cleaned workspace should not be listed again: %+v", candidates)
	}
}

func TestMarkSetupFailedKeepsCompletedWorkspaces(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	seed := testutil.SeedProject(t, s, t.TempDir())
	task := newTask(t, s, seed.Project.ID, "Setup")
	ws := newWorkspace(t, s, task.ID, store.WorkspaceModeWorktree)

	if err := s.MarkSetupFailed(ctx, ws.ID, "disk full"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err := s.GetWorkspace(ctx, ws.ID)
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if got.SetupState() != "failed" || got.SetupError == nil || *got.SetupError != "disk full" {
		t.Fatalf("unexpected workspace: %+v", got)
	}

	if err := s.MarkSetupCompleted(ctx, ws.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := s.MarkSetupFailed(ctx, ws.ID, "late"); err != store.ErrNotFound {
		t.Fatalf("MarkSetupFailed after completion err = %v, want ErrNotFound", err)
	}
}

func TestDueDeliveries(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	clock := testutil.NewClock()
	s.SetClock(clock.Now)

	insert := func() *store.Delivery {
		now := s.Now()
		d := &store.Delivery{ID: store.NewID(), WebhookID: "wh", EventType: "task_created", Payload: `{}`, CreatedAt: now, UpdatedAt: now}
		if err := s.InsertDelivery(ctx, d); err != nil {
			t.Fatalf("insert delivery: %v", err)
		}
		return d
	}

	pending := insert()
	later := insert()
	done := insert()

	if err := s.MarkDeliveryRetrying(ctx, later.ID, "boom", nil, s.Now().Add(time.Minute)); err != nil {
		t.Fatalf("mark retrying: %v", err)
	}
	if err := s.MarkDeliverySuccess(ctx, done.ID, 200); err != nil {
		t.Fatalf("mark success: %v", err)
	}

	due, err := s.ListDueDeliveries(ctx, s.Now(), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != pending.ID {
		t.Fatalf("unexpected due deliveries: %+v", due)
	}

	clock.Advance(2 * time.Minute)
	due, err = s.ListDueDeliveries(ctx, s.Now(), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due deliveries, got %d", len(due))
	}

	got, err := s.GetDelivery(ctx, done.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if got.Status != store.DeliveryStatusSuccess || got.Attempts != 1 || got.NextRetryAt != nil || got.DeliveredAt == nil {
		t.Fatalf("unexpected success row: %+v", got)
	}

	// terminal rows are not touched again
	if err := s.MarkDeliveryFailed(ctx, done.ID, "late", nil, true); err != store.ErrNotFound {
		t.Fatalf("MarkDeliveryFailed on success row err = %v, want ErrNotFound", err)
	}
}

func TestWebhookEventsRoundTrip(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()
	seed := testutil.SeedProject(t, s, t.TempDir())

	now := s.Now()
	hook := &store.Webhook{
		ID:        store.NewID(),
		ProjectID: seed.Project.ID,
		URL:       "https://example.com/hook",
		Secret:    "s3cret",
		Events:    []string{"task_created"},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.InsertWebhook(ctx, hook); err != nil {
		t.Fatalf("insert webhook: %v", err)
	}

	active, err := s.ListActiveWebhooks(ctx, seed.Project.ID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || !active[0].Subscribes("task_created") || active[0].Subscribes("task_deleted") {
		t.Fatalf("unexpected active webhooks: %+v", active)
	}

	hook.IsActive = false
	if err := s.UpdateWebhook(ctx, hook); err != nil {
		t.Fatalf("update webhook: %v", err)
	}
	active, err = s.ListActiveWebhooks(ctx, seed.Project.ID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("inactive webhook listed: %+v", active)
	}
}

func TestMergeRecordJSONKeepsVariant(t *testing.T) {
	commit := "abc123"
	records := []store.MergeRecord{
		{ID: "m1", WorkspaceID: "w", RepoID: "r", TargetBranch: "main", Merge: &store.DirectMerge{CommitHash: commit}},
		{ID: "m2", WorkspaceID: "w", RepoID: "r", TargetBranch: "main", Merge: &store.PRMerge{Number: 4, URL: "https://example.com/pull/4", Status: store.PRStatusOpen}},
	}
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"direct"`) || !strings.Contains(string(data), `"kind":"pr"`) {
		t.Fatalf("expected kinds in %s", data)
	}

	var decoded []store.MergeRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	direct, ok := decoded[0].Merge.(*store.DirectMerge)
	if !ok || direct.CommitHash != commit {
		t.Fatalf("expected direct merge, got %#v", decoded[0].Merge)
	}
	if pr := decoded[1].PR(); pr == nil || pr.Number != 4 || pr.Status != store.PRStatusOpen {
		t.Fatalf("expected pr merge, got %#v", decoded[1].Merge)
	}
}
