package cliutil

import (
	"context"
	"fmt"
	"os"

	"github.com/Oudwins/taskforge/internals/workspace"
)

// RepoRootFromCwd returns the top level of the git checkout containing the
// working directory.
func RepoRootFromCwd(ctx context.Context) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := workspace.NewLocalHost().GitToplevel(ctx, cwd)
	if err != nil {
		return "", fmt.Errorf("failed to determine repo root: %w", err)
	}
	return root, nil
}
