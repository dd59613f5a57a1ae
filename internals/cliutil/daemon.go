package cliutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Oudwins/taskforge/internals/timeouts"
	"github.com/Oudwins/taskforge/internals/version"
	"github.com/Oudwins/taskforge/sdk"
)

// DaemonBinary is the executable started when no daemon answers.
var DaemonBinary = "forged"

// EnsureDaemonRunning starts forged when it is not reachable and replaces it
// when it reports a different version than the forged binary on disk.
func EnsureDaemonRunning(ctx context.Context, client *sdk.Client) error {
	probe, cancel := context.WithTimeout(ctx, timeouts.Probe)
	remote, err := client.Version(probe)
	cancel()
	if err == nil {
		path, lookErr := findDaemonBinary()
		if lookErr != nil {
			// Nothing to replace it with.
			return nil
		}
		if strings.TrimSpace(remote) == version.VersionOf(path) {
			return nil
		}
		return replaceDaemon(ctx, client, remote)
	}

	if err := StartDaemon(); err != nil {
		return err
	}
	return waitForDaemon(ctx, client)
}

// StartDaemon launches forged in its own session so it outlives the CLI.
func StartDaemon() error {
	path, err := findDaemonBinary()
	if err != nil {
		return err
	}
	cmd := exec.Command(path, "serve")
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", DaemonBinary, err)
	}
	return cmd.Process.Release()
}

func waitForDaemon(ctx context.Context, client *sdk.Client) error {
	if sdk.WaitForStart(ctx, client.BaseURL(), nil) {
		return nil
	}
	return errors.New("failed to reach forged")
}

func replaceDaemon(ctx context.Context, client *sdk.Client, remoteVersion string) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeouts.DaemonStop)
	defer cancel()

	remoteVersion = strings.TrimSpace(remoteVersion)
	if err := client.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, sdk.ErrShutdownUnsupported) {
			return fmt.Errorf("forged %s is running; please stop it and retry", remoteVersion)
		}
		return fmt.Errorf("failed to shutdown forged %s: %w", remoteVersion, err)
	}
	if err := waitForDaemonStop(ctx, client); err != nil {
		return fmt.Errorf("forged %s did not stop: %w", remoteVersion, err)
	}
	if err := StartDaemon(); err != nil {
		return err
	}
	return waitForDaemon(ctx, client)
}

func waitForDaemonStop(ctx context.Context, client *sdk.Client) error {
	for i := 0; i < 8; i++ {
		probe, cancel := context.WithTimeout(ctx, timeouts.Probe)
		_, err := client.Version(probe)
		cancel()
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 150 * time.Millisecond):
		}
	}
	return errors.New("daemon still answering")
}

// findDaemonBinary prefers a forged next to the running executable, then
// PATH.
func findDaemonBinary() (string, error) {
	if executable, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(executable), DaemonBinary)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(DaemonBinary)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", DaemonBinary)
	}
	return path, nil
}
