package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/tasky"
)

type JobName string

const JobProvisionWorkspace JobName = "provision_workspace"

type jobPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

// Job runs Provision for the workspace named in the payload.
func (p *Provisioner) Job() tasky.Job[JobName] {
	return tasky.NewJob(JobProvisionWorkspace, tasky.JobConfig[JobName]{
		Run: func(ctx context.Context, task *tasky.Task[JobName]) error {
			var payload jobPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return fmt.Errorf("failed to unmarshal payload: %w", err)
			}
			p.logger.Debug("Running provisioning job", slog.String("task_id", task.TaskID), slog.String("workspace_id", payload.WorkspaceID))
			err := p.Provision(ctx, payload.WorkspaceID)
			if errors.Is(err, errs.ProvisioningFailed) || errors.Is(err, errs.NotFound) {
				// terminal; the failure is already on the workspace row
				return nil
			}
			return err
		},
	})
}

// QueueDispatcher hands worktree provisioning to the durable queue.
type QueueDispatcher struct {
	queue *tasky.Queue[JobName]
}

func NewQueueDispatcher(queue *tasky.Queue[JobName]) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

// Dispatch is idempotent per workspace.
func (d *QueueDispatcher) Dispatch(ctx context.Context, workspaceID string) error {
	payload, err := json.Marshal(jobPayload{WorkspaceID: workspaceID})
	if err != nil {
		return err
	}
	_, err = d.queue.Enqueue(ctx, &tasky.Task[JobName]{
		JobID:   JobProvisionWorkspace,
		TaskID:  "provision:" + workspaceID,
		Payload: payload,
	})
	return err
}

// InlineDispatcher provisions in a goroutine without durability. Tests and
// single-shot tools.
type InlineDispatcher struct {
	Provisioner *Provisioner
	Done        chan error
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, workspaceID string) error {
	go func() {
		err := d.Provisioner.Provision(context.WithoutCancel(ctx), workspaceID)
		if d.Done != nil {
			d.Done <- err
		}
	}()
	return nil
}
