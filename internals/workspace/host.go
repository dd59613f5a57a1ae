package workspace

import (
	"context"
	"os"
)

// Host is the git side of provisioning. The git methods shell out.
type Host interface {
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error

	GitIsInsideWorkTree(ctx context.Context, repoPath string) error
	GitToplevel(ctx context.Context, path string) (string, error)
	BranchExists(ctx context.Context, repoPath string, branch string) (bool, error)
	CreateBranch(ctx context.Context, repoPath string, branch string, base string) error
	DeleteBranch(ctx context.Context, repoPath string, branch string) error
	CreateWorktree(ctx context.Context, repoPath string, worktreePath string, branch string, base string) error
	RemoveWorktree(ctx context.Context, repoPath string, worktreePath string) error
	RunWorktreeSetup(ctx context.Context, repoPath string, worktreePath string) error

	PushBranch(ctx context.Context, repoPath string, branch string, force bool) error
	RemoteBranchExists(ctx context.Context, repoPath string, branch string) (bool, error)
	GetRemoteURL(ctx context.Context, repoPath string) (string, error)
}
