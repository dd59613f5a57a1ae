package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Oudwins/taskforge/internals/container"
	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/naming"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/testutil"
	"github.com/Oudwins/taskforge/internals/workspace"
)

type fakeRuntime struct {
	mu      sync.Mutex
	started []container.Spec
	stopped []string
	stopErr error
}

func (f *fakeRuntime) Start(ctx context.Context, spec container.Spec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, spec)
	return "ctr-" + spec.Name, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, ref)
	return nil
}

type fixture struct {
	store    *store.Store
	clock    *testutil.Clock
	repo     *store.Repo
	project  *store.Project
	task     *store.Task
	runtime  *fakeRuntime
	events   *events.Recorder
	prov     *Provisioner
	worktree string
}

func newFixture(t *testing.T, containers bool) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	clock := testutil.NewClock()
	s.SetClock(clock.Now)
	repoPath := testutil.TempRepo(t)
	seed := testutil.SeedProject(t, s, repoPath)

	now := s.Now()
	task := &store.Task{ID: store.NewID(), ProjectID: seed.Project.ID, Title: "Fix auth bug", Status: store.TaskStatusTodo, CreatedAt: now, UpdatedAt: now}
	if err := s.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	rt := &fakeRuntime{}
	rec := &events.Recorder{}
	prov := New(s, workspace.NewLocalHost(), rt, rec, Config{Image: "alpine:3.20", Containers: containers}, nil)
	return &fixture{store: s, clock: clock, repo: seed.Repo, project: seed.Project, task: task, runtime: rt, events: rec, prov: prov, worktree: testutil.TempWorktreeRoot(t)}
}

func (f *fixture) workspace(t *testing.T, mode store.WorkspaceMode) *store.Workspace {
	t.Helper()
	ctx := context.Background()
	now := f.store.Now()
	id := store.NewID()
	ws := &store.Workspace{
		ID:             id,
		TaskID:         f.task.ID,
		BranchName:     naming.BranchName(id, f.task.Title),
		Mode:           mode,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mode == store.WorkspaceModeWorktree {
		root := filepath.Join(f.worktree, id)
		ws.WorktreeRoot = &root
	}
	if err := f.store.InsertWorkspace(ctx, ws); err != nil {
		t.Fatalf("insert workspace: %v", err)
	}
	if err := f.store.InsertWorkspaceRepo(ctx, ws.ID, f.repo.ID, "main"); err != nil {
		t.Fatalf("insert workspace repo: %v", err)
	}
	return ws
}

func TestProvisionBranchMode(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	ws := f.workspace(t, store.WorkspaceModeBranch)

	if err := f.prov.Provision(ctx, ws.ID); err != nil {
		t.Fatalf("provision: %v", err)
	}
	exists, err := workspace.NewLocalHost().BranchExists(ctx, f.repo.Path, ws.BranchName)
	if err != nil || !exists {
		t.Fatalf("branch not created: %v %v", exists, err)
	}
	got, _ := f.store.GetWorkspace(ctx, ws.ID)
	if got.SetupCompletedAt == nil {
		t.Fatalf("setup_completed_at not set")
	}
	if names := f.events.Names(); len(names) != 1 || names[0] != events.WorkspaceProvisioned {
		t.Fatalf("events = %v", names)
	}

	// second run is a no-op
	if err := f.prov.Provision(ctx, ws.ID); err != nil {
		t.Fatalf("re-provision: %v", err)
	}
}

func TestProvisionFailureLeavesMarker(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	ws := f.workspace(t, store.WorkspaceModeBranch)
	if err := workspace.NewLocalHost().CreateBranch(ctx, f.repo.Path, ws.BranchName, "main"); err != nil {
		t.Fatalf("pre-create branch: %v", err)
	}

	err := f.prov.Provision(ctx, ws.ID)
	if !errors.Is(err, errs.ProvisioningFailed) {
		t.Fatalf("err = %v, want ProvisioningFailed", err)
	}
	got, _ := f.store.GetWorkspace(ctx, ws.ID)
	if got.SetupCompletedAt != nil || got.SetupFailedAt == nil || got.SetupError == nil {
		t.Fatalf("unexpected setup state: %+v", got)
	}
	if got.SetupState() != "failed" {
		t.Fatalf("state = %s", got.SetupState())
	}
	sessions, _ := f.store.ListWorkspacesByTask(ctx, f.task.ID)
	if len(sessions) != 1 {
		t.Fatalf("workspace row should survive failure")
	}
	if names := f.events.Names(); len(names) != 1 || names[0] != events.WorkspaceProvisionFailed {
		t.Fatalf("events = %v", names)
	}
}

func TestProvisionWorktreeWithContainer(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	ws := f.workspace(t, store.WorkspaceModeWorktree)

	if err := f.prov.Provision(ctx, ws.ID); err != nil {
		t.Fatalf("provision: %v", err)
	}
	path := WorktreePath(*ws.WorktreeRoot, f.repo.Name)
	if _, err := os.Stat(filepath.Join(path, "README.md")); err != nil {
		t.Fatalf("worktree missing: %v", err)
	}
	links, _ := f.store.ListWorkspaceRepos(ctx, ws.ID)
	if links[0].WorktreePath == nil || *links[0].WorktreePath != path {
		t.Fatalf("worktree path not recorded: %+v", links[0])
	}

	if len(f.runtime.started) != 1 {
		t.Fatalf("expected one container, got %d", len(f.runtime.started))
	}
	spec := f.runtime.started[0]
	if spec.Name != naming.ContainerName(ws.ID) || spec.Mounts[0].Source != path {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	got, _ := f.store.GetWorkspace(ctx, ws.ID)
	if got.ContainerRef == nil || *got.ContainerRef != "ctr-"+spec.Name || got.SetupCompletedAt == nil {
		t.Fatalf("unexpected workspace: %+v", got)
	}
}

func TestSweepReclaimsIdleWorktrees(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	idle := f.workspace(t, store.WorkspaceModeWorktree)
	busy := f.workspace(t, store.WorkspaceModeWorktree)
	branch := f.workspace(t, store.WorkspaceModeBranch)
	for _, ws := range []*store.Workspace{idle, busy, branch} {
		if err := f.prov.Provision(ctx, ws.ID); err != nil {
			t.Fatalf("provision: %v", err)
		}
	}
	session := &store.Session{ID: store.NewID(), WorkspaceID: idle.ID, Executor: "CODEX", Status: store.SessionStatusRunning, CreatedAt: f.store.Now()}
	if err := f.store.InsertSession(ctx, session); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	history := &store.HistoryEntry{ID: store.NewID(), TaskID: f.task.ID, FieldChanged: "status", ChangedBy: "api", ChangedAt: f.store.Now()}
	if err := f.store.InsertHistory(ctx, history); err != nil {
		t.Fatalf("insert history: %v", err)
	}

	result, err := f.prov.Sweep(ctx, DefaultRetention)
	if err != nil || len(result.Reclaimed) != 0 {
		t.Fatalf("fresh workspaces reclaimed: %+v %v", result, err)
	}

	f.clock.Advance(DefaultRetention + time.Hour)
	if err := f.store.TouchWorkspace(ctx, busy.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	result, err = f.prov.Sweep(ctx, DefaultRetention)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(result.Reclaimed) != 1 || result.Reclaimed[0] != idle.ID {
		t.Fatalf("reclaimed = %v, want [%s]", result.Reclaimed, idle.ID)
	}

	got, _ := f.store.GetWorkspace(ctx, idle.ID)
	if got.ContainerRef != nil || got.CleanedAt == nil {
		t.Fatalf("workspace not cleaned: %+v", got)
	}
	if _, err := os.Stat(WorktreePath(*idle.WorktreeRoot, f.repo.Name)); !os.IsNotExist(err) {
		t.Fatalf("worktree still on disk: %v", err)
	}
	stale, _ := f.store.GetSession(ctx, session.ID)
	if stale.Status != store.SessionStatusFailed || stale.CompletedAt == nil {
		t.Fatalf("stale session left running: %+v", stale)
	}
	if len(f.runtime.stopped) != 1 || f.runtime.stopped[0] != "ctr-"+naming.ContainerName(idle.ID) {
		t.Fatalf("stopped = %v", f.runtime.stopped)
	}

	entries, _ := f.store.ListHistory(ctx, f.task.ID)
	if len(entries) != 1 {
		t.Fatalf("history lost")
	}
	if _, err := f.store.GetTask(ctx, f.task.ID); err != nil {
		t.Fatalf("task lost: %v", err)
	}

	result, err = f.prov.Sweep(ctx, DefaultRetention)
	if err != nil || len(result.Reclaimed) != 0 {
		t.Fatalf("second sweep should be a no-op: %+v %v", result, err)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	ws := f.workspace(t, store.WorkspaceModeWorktree)
	if err := f.prov.Provision(ctx, ws.ID); err != nil {
		t.Fatalf("provision: %v", err)
	}
	f.runtime.stopErr = errors.New("daemon down")
	f.clock.Advance(DefaultRetention + time.Hour)

	result, err := f.prov.Sweep(ctx, DefaultRetention)
	if err == nil || len(result.Reclaimed) != 0 {
		t.Fatalf("expected aggregated error, got %+v %v", result, err)
	}
	got, _ := f.store.GetWorkspace(ctx, ws.ID)
	if got.CleanedAt != nil {
		t.Fatalf("failed reclaim should not mark cleaned")
	}
}

func TestInlineDispatcher(t *testing.T) {
	f := newFixture(t, false)
	ws := f.workspace(t, store.WorkspaceModeWorktree)
	done := make(chan error, 1)
	d := &InlineDispatcher{Provisioner: f.prov, Done: done}
	if err := d.Dispatch(context.Background(), ws.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("provision: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for provisioning")
	}
}
