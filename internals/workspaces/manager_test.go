package workspaces

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/provision"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasks"
	"github.com/Oudwins/taskforge/internals/testutil"
	"github.com/Oudwins/taskforge/internals/workspace"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, workspaceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, workspaceID)
	return nil
}

type failingProvisioner struct{}

func (failingProvisioner) Provision(ctx context.Context, workspaceID string) error {
	return errs.E(errs.KindProvisioningFailed, "test", "disk full")
}

type fixture struct {
	store      *store.Store
	tasks      *tasks.Service
	events     *events.Recorder
	dispatcher *recordingDispatcher
	prov       *provision.Provisioner
	mgr        *Manager
	seed       testutil.Seed
	dir        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	seed := testutil.SeedProject(t, s, testutil.TempRepo(t))
	rec := &events.Recorder{}
	taskSvc := tasks.New(s, rec, nil)
	host := workspace.NewLocalHost()
	prov := provision.New(s, host, nil, rec, provision.Config{}, nil)
	dispatcher := &recordingDispatcher{}
	dir := testutil.TempWorktreeRoot(t)
	mgr := New(s, taskSvc, host, prov, dispatcher, rec, Config{WorktreesDir: dir}, nil)
	return &fixture{store: s, tasks: taskSvc, events: rec, dispatcher: dispatcher, prov: prov, mgr: mgr, seed: seed, dir: dir}
}

func (f *fixture) task(t *testing.T, title string) *store.Task {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), tasks.CreateParams{ProjectID: f.seed.Project.ID, Title: title})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (f *fixture) repos() []RepoRequest {
	return []RepoRequest{{RepoID: f.seed.Repo.ID, BaseBranch: "main"}}
}

func ptr[T any](v T) *T { return &v }

func TestStartExternalSessionProvisionsBranchImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Fix auth bug")

	res, err := f.mgr.StartSession(ctx, StartParams{
		TaskID:    task.ID,
		Executor:  "orchestrator-managed",
		Repos:     f.repos(),
		AgentName: ptr("planner"),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ws := res.Workspace
	if ws.Mode != store.WorkspaceModeBranch {
		t.Fatalf("mode = %s, want branch", ws.Mode)
	}
	if ws.SetupCompletedAt == nil {
		t.Fatalf("branch mode should be provisioned before returning")
	}
	if !regexp.MustCompile(`^vk-` + regexp.QuoteMeta(ws.ID) + `-fix-auth-bug$`).MatchString(ws.BranchName) {
		t.Fatalf("branch name = %s", ws.BranchName)
	}
	if res.Session.Executor != ExecutorExternal || res.Session.Status != store.SessionStatusRunning {
		t.Fatalf("unexpected session: %+v", res.Session)
	}
	if len(res.Repos) != 1 || res.Repos[0].WorkingDirectory != f.seed.Repo.Path || res.Repos[0].BaseBranch != "main" {
		t.Fatalf("unexpected repos: %+v", res.Repos)
	}

	activity, _ := f.store.ListActivity(ctx, task.ID)
	if len(activity) != 1 || activity[0].Action != "started" || *activity[0].Summary != "Started workspace session with executor ORCHESTRATOR_MANAGED (mode: branch)" {
		t.Fatalf("unexpected activity: %+v", activity)
	}
	got, _ := f.store.GetTask(ctx, task.ID)
	if got.Assignee == nil || *got.Assignee != "planner" {
		t.Fatalf("assignee = %v, want planner", got.Assignee)
	}

	names := f.events.Names()
	want := []string{events.TaskCreated, events.TaskUpdated, events.WorkspaceStarted, events.WorkspaceProvisioned}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}
	if len(f.dispatcher.ids) != 0 {
		t.Fatalf("branch mode must not dispatch")
	}
}

func TestStartKeepsExistingAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Keep owner")
	if _, err := f.tasks.Assign(ctx, task.ID, ptr("alice"), "api"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: ExecutorExternal, Repos: f.repos(), AgentName: ptr("bot")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, _ := f.store.GetTask(ctx, task.ID)
	if *got.Assignee != "alice" {
		t.Fatalf("assignee overwritten: %s", *got.Assignee)
	}
}

func TestStartProcessExecutorDispatchesWorktree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Add search")

	res, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: " claude-code ", Repos: []RepoRequest{{RepoID: f.seed.Repo.ID}}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ws := res.Workspace
	if ws.Mode != store.WorkspaceModeWorktree || ws.SetupCompletedAt != nil {
		t.Fatalf("unexpected workspace: %+v", ws)
	}
	if res.Session.Executor != "CLAUDE_CODE" {
		t.Fatalf("executor = %s", res.Session.Executor)
	}
	wantDir := filepath.Join(f.dir, ws.ID, "app")
	if res.Repos[0].WorkingDirectory != wantDir {
		t.Fatalf("working dir = %s, want %s", res.Repos[0].WorkingDirectory, wantDir)
	}
	if res.Repos[0].BaseBranch != "main" {
		t.Fatalf("base branch should default to the repo default, got %q", res.Repos[0].BaseBranch)
	}
	if len(f.dispatcher.ids) != 1 || f.dispatcher.ids[0] != ws.ID {
		t.Fatalf("dispatched = %v", f.dispatcher.ids)
	}
	if _, err := os.Stat(wantDir); !os.IsNotExist(err) {
		t.Fatalf("worktree should not exist before the job runs")
	}
}

func TestStartRejectsExternalExecutorInWorktreeMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Nope")

	_, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: ExecutorExternal, Mode: "worktree", Repos: f.repos()})
	if !errors.Is(err, errs.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
	list, _ := f.store.ListWorkspacesByTask(ctx, task.ID)
	if len(list) != 0 || len(f.dispatcher.ids) != 0 {
		t.Fatalf("nothing should be created or dispatched")
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Validate")

	cases := []struct {
		name   string
		params StartParams
		want   error
	}{
		{"empty executor", StartParams{TaskID: task.ID, Executor: "  ", Repos: f.repos()}, errs.InvalidInput},
		{"no repos", StartParams{TaskID: task.ID, Executor: "CODEX"}, errs.InvalidInput},
		{"unknown executor", StartParams{TaskID: task.ID, Executor: "vim", Repos: f.repos()}, errs.InvalidArgument},
		{"bad mode", StartParams{TaskID: task.ID, Executor: "CODEX", Mode: "docker", Repos: f.repos()}, errs.InvalidArgument},
		{"duplicate repo", StartParams{TaskID: task.ID, Executor: "CODEX", Repos: append(f.repos(), f.repos()...)}, errs.InvalidInput},
		{"missing task", StartParams{TaskID: "nope", Executor: "CODEX", Repos: f.repos()}, errs.NotFound},
		{"missing repo", StartParams{TaskID: task.ID, Executor: "CODEX", Repos: []RepoRequest{{RepoID: "nope"}}}, errs.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.mgr.StartSession(ctx, tc.params); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	list, _ := f.store.ListWorkspacesByTask(ctx, task.ID)
	if len(list) != 0 {
		t.Fatalf("rejected requests wrote %d workspaces", len(list))
	}
}

func TestBranchNamesAreUniquePerWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Same title")

	first, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: ExecutorExternal, Repos: f.repos()})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: ExecutorExternal, Repos: f.repos()})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Workspace.BranchName == second.Workspace.BranchName {
		t.Fatalf("branch names collide: %s", first.Workspace.BranchName)
	}
	list, _ := f.mgr.ListByTask(ctx, task.ID)
	if len(list) != 2 {
		t.Fatalf("workspaces = %d, want 2", len(list))
	}
}

func TestProvisioningFailureKeepsRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.provision = failingProvisioner{}
	task := f.task(t, "Broken disk")

	_, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: ExecutorExternal, Repos: f.repos()})
	if !errors.Is(err, errs.ProvisioningFailed) {
		t.Fatalf("err = %v, want ProvisioningFailed", err)
	}
	list, _ := f.store.ListWorkspacesByTask(ctx, task.ID)
	if len(list) != 1 || list[0].SetupCompletedAt != nil {
		t.Fatalf("workspace row should remain unprovisioned: %+v", list)
	}
	sessions, _ := f.store.ListSessions(ctx, list[0].ID)
	if len(sessions) != 1 {
		t.Fatalf("session row should remain")
	}
}

func TestGetAndCompleteSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Details")
	res, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: ExecutorExternal, Variant: ptr("fast"), Repos: f.repos()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	details, err := f.mgr.Get(ctx, res.Workspace.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if details.SetupState != "ready" || len(details.Repos) != 1 || len(details.Sessions) != 1 || *details.Sessions[0].Variant != "fast" {
		t.Fatalf("unexpected details: %+v", details)
	}
	if _, err := f.mgr.Get(ctx, "missing"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}

	done, err := f.mgr.CompleteSession(ctx, res.Session.ID, store.SessionStatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != store.SessionStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected session: %+v", done)
	}
	if _, err := f.mgr.CompleteSession(ctx, res.Session.ID, store.SessionStatusFailed); !errors.Is(err, errs.FailedPrecondition) {
		t.Fatalf("err = %v, want FailedPrecondition", err)
	}
	if _, err := f.mgr.CompleteSession(ctx, res.Session.ID, store.SessionStatusRunning); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}

func TestSweepReclaimsAbandonedSessionWorkspaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := testutil.NewClock()
	f.store.SetClock(clock.Now)

	start := func(title string) *StartResult {
		t.Helper()
		res, err := f.mgr.StartSession(ctx, StartParams{TaskID: f.task(t, title).ID, Executor: "codex", Mode: "worktree", Repos: f.repos()})
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := f.prov.Provision(ctx, res.Workspace.ID); err != nil {
			t.Fatalf("provision: %v", err)
		}
		return res
	}
	abandoned := start("Abandoned")
	beating := start("Heartbeat")
	reporting := start("Reporting")

	clock.Advance(provision.DefaultRetention - time.Hour)
	if _, err := f.mgr.Heartbeat(ctx, beating.Session.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if _, err := f.tasks.AppendActivity(ctx, reporting.Workspace.TaskID, tasks.ActivityParams{AgentName: "codex", Action: "progress"}); err != nil {
		t.Fatalf("append activity: %v", err)
	}
	clock.Advance(2 * time.Hour)

	result, err := f.prov.Sweep(ctx, provision.DefaultRetention)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(result.Reclaimed) != 1 || result.Reclaimed[0] != abandoned.Workspace.ID {
		t.Fatalf("reclaimed = %v, want [%s]", result.Reclaimed, abandoned.Workspace.ID)
	}

	details, err := f.mgr.Get(ctx, abandoned.Workspace.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if details.Workspace.CleanedAt == nil {
		t.Fatalf("workspace not cleaned: %+v", details.Workspace)
	}
	if details.Sessions[0].Status != store.SessionStatusFailed {
		t.Fatalf("session status = %s, want failed", details.Sessions[0].Status)
	}
	if _, err := os.Stat(abandoned.Repos[0].WorkingDirectory); !os.IsNotExist(err) {
		t.Fatalf("worktree still on disk: %v", err)
	}
	if _, err := f.mgr.Heartbeat(ctx, abandoned.Session.ID); !errors.Is(err, errs.FailedPrecondition) {
		t.Fatalf("heartbeat on reclaimed session: err = %v, want FailedPrecondition", err)
	}
	if _, err := f.mgr.Heartbeat(ctx, "missing"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}

	clock.Advance(provision.DefaultRetention)
	result, err = f.prov.Sweep(ctx, provision.DefaultRetention)
	if err != nil || len(result.Reclaimed) != 2 {
		t.Fatalf("quiet workspaces should be reclaimed once idle: %+v %v", result, err)
	}
}

func TestContextResolvesWorktreeAndBranchWorkspaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := make(chan error, 1)
	f.mgr.dispatcher = &provision.InlineDispatcher{Provisioner: f.prov, Done: done}

	task := f.task(t, "Context lookup")
	res, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: "CODEX", Repos: f.repos()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("provision: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for provisioning")
	}

	sub := filepath.Join(res.Repos[0].WorkingDirectory, "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := f.mgr.Context(ctx, sub, "")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if got.WorkspaceID != res.Workspace.ID || got.TaskTitle != "Context lookup" || got.ProjectID != f.seed.Project.ID {
		t.Fatalf("unexpected context: %+v", got)
	}
	if len(got.WorkspaceRepos) != 1 || got.WorkspaceRepos[0].RepoName != "app" || got.WorkspaceRepos[0].TargetBranch != "main" {
		t.Fatalf("unexpected repos: %+v", got.WorkspaceRepos)
	}

	// the original checkout is not a worktree workspace
	if _, err := f.mgr.Context(ctx, f.seed.Repo.Path, ""); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}

	branch, err := f.mgr.StartSession(ctx, StartParams{TaskID: task.ID, Executor: ExecutorExternal, Repos: f.repos()})
	if err != nil {
		t.Fatalf("start branch: %v", err)
	}
	got, err = f.mgr.Context(ctx, f.seed.Repo.Path, branch.Workspace.ID)
	if err != nil {
		t.Fatalf("branch context: %v", err)
	}
	if got.WorkspaceID != branch.Workspace.ID || got.WorkspaceBranch != branch.Workspace.BranchName {
		t.Fatalf("unexpected branch context: %+v", got)
	}

	outside := t.TempDir()
	if _, err := f.mgr.Context(ctx, outside, ""); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
