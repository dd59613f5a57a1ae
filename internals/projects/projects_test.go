package projects

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/testutil"
	"github.com/Oudwins/taskforge/internals/workspace"
)

func TestRegisterRepo(t *testing.T) {
	s := testutil.OpenStore(t)
	svc := New(s, workspace.NewLocalHost(), nil)
	ctx := context.Background()

	project, err := svc.Create(ctx, " forge ")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if project.Name != "forge" {
		t.Fatalf("expected trimmed name, got %q", project.Name)
	}

	repoPath := testutil.TempRepo(t)
	sub := filepath.Join(repoPath, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	repo, err := svc.RegisterRepo(ctx, project.ID, RepoParams{Path: sub})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	top, _ := filepath.EvalSymlinks(repoPath)
	got, _ := filepath.EvalSymlinks(repo.Path)
	if got != top {
		t.Fatalf("expected repo path %q, got %q", top, got)
	}
	if repo.Name != filepath.Base(repo.Path) {
		t.Fatalf("expected default name from path, got %q", repo.Name)
	}
	if repo.DefaultTargetBranch != "main" {
		t.Fatalf("expected default target branch main, got %q", repo.DefaultTargetBranch)
	}

	repos, err := svc.ListRepos(ctx, project.ID)
	if err != nil {
		t.Fatalf("list repos: %v", err)
	}
	if len(repos) != 1 || repos[0].ID != repo.ID {
		t.Fatalf("unexpected repos: %+v", repos)
	}
}

func TestRegisterRepoValidation(t *testing.T) {
	s := testutil.OpenStore(t)
	svc := New(s, workspace.NewLocalHost(), nil)
	ctx := context.Background()
	project, err := svc.Create(ctx, "forge")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if _, err := svc.Create(ctx, "  "); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := svc.RegisterRepo(ctx, project.ID, RepoParams{}); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected invalid input for empty path, got %v", err)
	}
	if _, err := svc.RegisterRepo(ctx, project.ID, RepoParams{Path: t.TempDir()}); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected invalid input for non-repo, got %v", err)
	}
	if _, err := svc.RegisterRepo(ctx, "missing", RepoParams{Path: testutil.TempRepo(t)}); !errors.Is(err, errs.NotFound) {
		t.Fatalf("expected not found for missing project, got %v", err)
	}
	if _, err := svc.GetRepo(ctx, "missing"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("expected not found for missing repo, got %v", err)
	}
}
