package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/Oudwins/taskforge/internals/store"
)

// TempRepo creates a git repository with one commit on main.
func TempRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	run(t, root, "git", "init", "-b", "main")
	run(t, root, "git", "config", "user.email", "test@example.com")
	run(t, root, "git", "config", "user.name", "Test User")
	readme := filepath.Join(root, "README.md")
	if err := os.WriteFile(readme, []byte("test"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	run(t, root, "git", "add", "README.md")
	run(t, root, "git", "commit", "-m", "init")
	return root
}

// TempBareRemote creates a bare repository and registers it as origin of repo.
func TempBareRemote(t *testing.T, repo string) string {
	t.Helper()
	remote := filepath.Join(t.TempDir(), "origin.git")
	run(t, filepath.Dir(remote), "git", "init", "--bare", remote)
	run(t, repo, "git", "remote", "add", "origin", remote)
	return remote
}

func TempWorktreeRoot(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func TempDBPath(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	return filepath.Join(root, "forge.db")
}

// OpenStore returns a migrated store in a temp dir, closed on cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), TempDBPath(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Clock is a settable clock for store.SetClock.
type Clock struct {
	T time.Time
}

func NewClock() *Clock {
	return &Clock{T: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// Seed holds the rows most service tests start from.
type Seed struct {
	Project *store.Project
	Repo    *store.Repo
}

// SeedProject inserts a project and one repo pointing at repoPath.
func SeedProject(t *testing.T, s *store.Store, repoPath string) Seed {
	t.Helper()
	ctx := context.Background()
	project, err := s.CreateProject(ctx, "forge")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	repo, err := s.CreateRepo(ctx, store.CreateRepoParams{
		ProjectID:           project.ID,
		Name:                "app",
		Path:                repoPath,
		DefaultTargetBranch: "main",
	})
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	return Seed{Project: project, Repo: repo}
}

func Run(t *testing.T, dir string, name string, args ...string) string {
	t.Helper()
	return run(t, dir, name, args...)
}

func run(t *testing.T, dir string, name string, args ...string) string {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s %v failed: %v\n%s", name, args, err, string(output))
	}
	return string(output)
}
