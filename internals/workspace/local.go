package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const Remote = "origin"

type LocalHost struct{}

func NewLocalHost() *LocalHost {
	return &LocalHost{}
}

var _ Host = (*LocalHost)(nil)

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

var execCommand commandFunc = exec.CommandContext

func (l *LocalHost) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (l *LocalHost) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (l *LocalHost) GitIsInsideWorkTree(ctx context.Context, repoPath string) error {
	cmd := execCommand(ctx, "git", "-C", repoPath, "rev-parse", "--is-inside-work-tree")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git check failed: %s", strings.TrimSpace(string(output)))
	}
	if strings.TrimSpace(string(output)) != "true" {
		return fmt.Errorf("not a git worktree")
	}
	return nil
}

// GitToplevel resolves any path inside a checkout to the checkout root.
func (l *LocalHost) GitToplevel(ctx context.Context, path string) (string, error) {
	cmd := execCommand(ctx, "git", "-C", path, "rev-parse", "--show-toplevel")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to resolve checkout root: %s", strings.TrimSpace(string(output)))
	}
	root := strings.TrimSpace(string(output))
	if root == "" {
		return "", errors.New("failed to resolve checkout root")
	}
	return filepath.Clean(root), nil
}

func (l *LocalHost) BranchExists(ctx context.Context, repoPath string, branch string) (bool, error) {
	check := execCommand(ctx, "git", "-C", repoPath, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err := check.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("failed to check branch: %w", err)
	}
	return true, nil
}

func (l *LocalHost) CreateBranch(ctx context.Context, repoPath string, branch string, base string) error {
	cmd := execCommand(ctx, "git", "-C", repoPath, "branch", "--no-track", branch, base)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create branch: %s: %s", err.Error(), strings.TrimSpace(string(output)))
	}
	return nil
}

// DeleteBranch is a no-op when the branch does not exist.
func (l *LocalHost) DeleteBranch(ctx context.Context, repoPath string, branch string) error {
	if branch == "" {
		return nil
	}
	exists, err := l.BranchExists(ctx, repoPath, branch)
	if err != nil || !exists {
		return err
	}
	cmd := execCommand(ctx, "git", "-C", repoPath, "branch", "-D", branch)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to delete branch: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// CreateWorktree creates branch from base and checks it out at worktreePath.
func (l *LocalHost) CreateWorktree(ctx context.Context, repoPath string, worktreePath string, branch string, base string) error {
	cmd := execCommand(ctx, "git", "-C", repoPath, "worktree", "add", "-b", branch, worktreePath, base)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create worktree: %s: %s", err.Error(), strings.TrimSpace(string(output)))
	}
	return nil
}

// RemoveWorktree removes the checkout. A checkout that is already gone only
// has its stale administrative entry pruned.
func (l *LocalHost) RemoveWorktree(ctx context.Context, repoPath string, worktreePath string) error {
	if _, err := l.Stat(worktreePath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat worktree: %w", err)
		}
		prune := execCommand(ctx, "git", "-C", repoPath, "worktree", "prune")
		if output, err := prune.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to prune worktrees: %s", strings.TrimSpace(string(output)))
		}
		return nil
	}
	cmd := execCommand(ctx, "git", "-C", repoPath, "worktree", "remove", "--force", worktreePath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to remove worktree: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

func (l *LocalHost) PushBranch(ctx context.Context, repoPath string, branch string, force bool) error {
	args := []string{"-C", repoPath, "push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, Remote, "refs/heads/"+branch+":refs/heads/"+branch)
	cmd := execCommand(ctx, "git", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to push branch: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// RemoteBranchExists asks the remote directly; exit status 2 from ls-remote
// means no matching ref.
func (l *LocalHost) RemoteBranchExists(ctx context.Context, repoPath string, branch string) (bool, error) {
	cmd := execCommand(ctx, "git", "-C", repoPath, "ls-remote", "--exit-code", "--heads", Remote, "refs/heads/"+branch)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 2 {
			return false, nil
		}
		return false, fmt.Errorf("failed to query remote: %s", strings.TrimSpace(string(output)))
	}
	return true, nil
}

func (l *LocalHost) GetRemoteURL(ctx context.Context, repoPath string) (string, error) {
	cmd := execCommand(ctx, "git", "-C", repoPath, "remote", "get-url", Remote)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get origin URL: %s", strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

type worktreeConfig struct {
	SetupWorktree []string `json:"setup-worktree"`
}

// RunWorktreeSetup runs the commands listed in {repo}/.forge/worktrees.json
// inside a fresh worktree. A missing file means nothing to run.
func (l *LocalHost) RunWorktreeSetup(ctx context.Context, repoPath string, worktreePath string) error {
	configPath := filepath.Join(repoPath, ".forge", "worktrees.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read worktree config")
	}

	var config worktreeConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse worktree config")
	}

	for _, command := range config.SetupWorktree {
		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}
		cmd := execCommand(ctx, "sh", "-c", command)
		cmd.Dir = worktreePath
		cmd.Env = append(os.Environ(), fmt.Sprintf("ROOT_WORKTREE_PATH=%s", repoPath))
		output, err := cmd.CombinedOutput()
		if err != nil {
			message := strings.TrimSpace(string(output))
			if message != "" {
				return fmt.Errorf("setup command failed: %s: %s", command, message)
			}
			return fmt.Errorf("setup command failed: %s", command)
		}
	}

	return nil
}
