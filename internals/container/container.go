// Package container drives a docker-compatible CLI to run one container per
// provisioned workspace.
package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

const (
	MountTarget    = "/workspace"
	LabelWorkspace = "forge.workspace"
)

// Runtime starts and stops workspace containers. Stop of an unknown ref is
// not an error.
type Runtime interface {
	Start(ctx context.Context, spec Spec) (string, error)
	Stop(ctx context.Context, ref string) error
}

type Mount struct {
	Source string
	Target string
}

type Spec struct {
	Name   string
	Image  string
	Mounts []Mount
	Labels map[string]string
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

var execCommand commandFunc = exec.CommandContext

var ErrNoSuchContainer = errors.New("no such container")

// CLI runs containers through the docker (or podman) binary.
type CLI struct {
	binary string
}

var _ Runtime = (*CLI)(nil)

func NewCLI(binary string) *CLI {
	if binary == "" {
		binary = "docker"
	}
	return &CLI{binary: binary}
}

// Start is idempotent on Name: a container that already exists is started
// if needed and its id returned.
func (c *CLI) Start(ctx context.Context, spec Spec) (string, error) {
	if spec.Name == "" || spec.Image == "" {
		return "", errors.New("container name and image are required")
	}
	id, running, err := c.inspect(ctx, spec.Name)
	switch {
	case err == nil && running:
		return id, nil
	case err == nil:
		if output, err := execCommand(ctx, c.binary, "start", spec.Name).CombinedOutput(); err != nil {
			return "", fmt.Errorf("failed to start container: %s", strings.TrimSpace(string(output)))
		}
		return id, nil
	case !errors.Is(err, ErrNoSuchContainer):
		return "", err
	}

	cmd := execCommand(ctx, c.binary, runArgs(spec)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to run container: %s", strings.TrimSpace(string(output)))
	}
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

func (c *CLI) Stop(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	cmd := execCommand(ctx, c.binary, "rm", "--force", ref)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if isNoSuchContainer(string(output)) {
			return nil
		}
		return fmt.Errorf("failed to remove container: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

func (c *CLI) inspect(ctx context.Context, name string) (string, bool, error) {
	cmd := execCommand(ctx, c.binary, "inspect", "--format", "{{.Id}} {{.State.Running}}", name)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if isNoSuchContainer(string(output)) {
			return "", false, ErrNoSuchContainer
		}
		return "", false, fmt.Errorf("failed to inspect container: %s", strings.TrimSpace(string(output)))
	}
	fields := strings.Fields(string(output))
	if len(fields) != 2 {
		return "", false, fmt.Errorf("unexpected inspect output %q", strings.TrimSpace(string(output)))
	}
	return fields[0], fields[1] == "true", nil
}

func runArgs(spec Spec) []string {
	args := []string{"run", "--detach", "--name", spec.Name}
	keys := make([]string, 0, len(spec.Labels))
	for k := range spec.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+spec.Labels[k])
	}
	for _, m := range spec.Mounts {
		args = append(args, "--volume", m.Source+":"+m.Target)
	}
	if len(spec.Mounts) > 0 {
		args = append(args, "--workdir", spec.Mounts[0].Target)
	}
	return append(args, spec.Image, "sleep", "infinity")
}

func isNoSuchContainer(output string) bool {
	output = strings.ToLower(output)
	return strings.Contains(output, "no such container") || strings.Contains(output, "no such object")
}
