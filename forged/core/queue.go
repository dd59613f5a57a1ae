package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/Oudwins/taskforge/internals/provision"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasky"
	"github.com/Oudwins/taskforge/internals/tasky/backends/taskysqlite"
	"github.com/Oudwins/taskforge/internals/timeouts"
)

const provisionQueueName = "provision_queue"

// NewQueue keeps worktree provisioning jobs in the daemon database so they
// survive restarts.
func NewQueue(ctx context.Context, s *store.Store, p *provision.Provisioner, logger *slog.Logger) (*tasky.Queue[provision.JobName], *taskysqlite.Backend[provision.JobName], error) {
	backend, err := taskysqlite.New[provision.JobName](ctx, taskysqlite.Config{
		DB:        s.DB,
		QueueName: provisionQueueName,
		RetryDelay: tasky.BackoffExponential(tasky.BackoffConfig{
			Base:   timeouts.ProvisionBackoff,
			Max:    time.Minute,
			Factor: 2,
		}),
		RetryMax: 3,
	})
	if err != nil {
		return nil, nil, err
	}

	q, err := tasky.NewQueue(tasky.QueueConfig[provision.JobName]{
		Jobs:    []tasky.Job[provision.JobName]{p.Job()},
		Backend: backend,
		OnError: func(err error, task *tasky.Task[provision.JobName]) error {
			if task == nil {
				logger.Error("[QUEUE] Backend error", slog.String("error", err.Error()))
				return nil
			}
			logger.Error("[QUEUE] Task failed to complete", slog.String("task_id", task.TaskID), slog.String("job_id", string(task.JobID)), slog.String("error", err.Error()))
			return nil
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return q, backend, nil
}
