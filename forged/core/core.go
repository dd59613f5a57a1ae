// Package core builds the daemon's long-lived components from config and
// runs their background loops.
package core

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/Oudwins/taskforge/internals/auth"
	"github.com/Oudwins/taskforge/internals/conf"
	"github.com/Oudwins/taskforge/internals/container"
	"github.com/Oudwins/taskforge/internals/projects"
	"github.com/Oudwins/taskforge/internals/provision"
	"github.com/Oudwins/taskforge/internals/prs"
	"github.com/Oudwins/taskforge/internals/remote"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasks"
	"github.com/Oudwins/taskforge/internals/tasky"
	"github.com/Oudwins/taskforge/internals/tasky/backends/taskysqlite"
	"github.com/Oudwins/taskforge/internals/webhooks"
	"github.com/Oudwins/taskforge/internals/workspace"
	"github.com/Oudwins/taskforge/internals/workspaces"
)

const DBFile = "forge.db"

// Options replaces external dependencies. Zero values use the real ones.
type Options struct {
	Git      workspace.Host
	Provider remote.Provider
	Runtime  container.Runtime
	// WebhookClient is used for webhook POSTs.
	WebhookClient *http.Client
}

type Core struct {
	Config *conf.Config
	Logger *slog.Logger
	Store  *store.Store
	Git    workspace.Host

	Projects    *projects.Service
	Tasks       *tasks.Service
	Workspaces  *workspaces.Manager
	Provisioner *provision.Provisioner
	PRs         *prs.Service
	Webhooks    *webhooks.Service
	Deliveries  *webhooks.Worker

	Queue        *tasky.Queue[provision.JobName]
	queueBackend *taskysqlite.Backend[provision.JobName]
}

func New(ctx context.Context, config *conf.Config, logger *slog.Logger, opts Options) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.Open(ctx, filepath.Join(config.Server.DataDir, DBFile))
	if err != nil {
		return nil, err
	}

	c := &Core{Config: config, Logger: logger, Store: s}
	if err := c.init(ctx, opts); err != nil {
		return nil, multierr.Append(err, s.Close())
	}
	return c, nil
}

func (c *Core) init(ctx context.Context, opts Options) error {
	config := c.Config
	c.Git = opts.Git
	if c.Git == nil {
		c.Git = workspace.NewLocalHost()
	}
	if err := os.MkdirAll(config.Worktrees.Dir, 0o755); err != nil {
		return err
	}

	provider := opts.Provider
	if provider == nil {
		gh, err := remote.NewGitHub(remote.GitHubConfig{
			APIURL: config.Providers.Github.APIURL,
			Token:  auth.ResolveGitHubToken,
		})
		if err != nil {
			return err
		}
		provider = gh
	}
	runtime := opts.Runtime
	if runtime == nil && config.Containers.Enabled {
		runtime = container.NewCLI(config.Containers.Runtime)
	}

	sink := webhooks.Sink{}
	c.Projects = projects.New(c.Store, c.Git, c.Logger)
	c.Tasks = tasks.New(c.Store, sink, c.Logger)
	c.Provisioner = provision.New(c.Store, c.Git, runtime, sink, provision.Config{
		Image:      config.Containers.Image,
		Containers: config.Containers.Enabled,
	}, c.Logger.With(slog.String("component", "provision")))

	queue, backend, err := NewQueue(ctx, c.Store, c.Provisioner, c.Logger)
	if err != nil {
		return err
	}
	c.Queue = queue
	c.queueBackend = backend

	c.Workspaces = workspaces.New(c.Store, c.Tasks, c.Git, c.Provisioner, provision.NewQueueDispatcher(queue), sink, workspaces.Config{
		WorktreesDir: config.Worktrees.Dir,
	}, c.Logger)
	c.PRs = prs.New(c.Store, c.Git, provider, c.Tasks, sink, c.Logger.With(slog.String("component", "prs")))
	c.Webhooks = webhooks.NewService(c.Store, c.Logger)
	c.Deliveries = webhooks.NewWorker(c.Store, webhooks.WorkerConfig{
		MaxAttempts:  config.Webhooks.MaxAttempts,
		Timeout:      conf.Duration(config.Webhooks.Timeout),
		PollInterval: conf.Duration(config.Webhooks.PollInterval),
		BatchSize:    config.Webhooks.BatchSize,
		Workers:      config.Webhooks.Workers,
		BackoffBase:  conf.Duration(config.Webhooks.BackoffBase),
		BackoffMax:   conf.Duration(config.Webhooks.BackoffMax),
		HTTPClient:   opts.WebhookClient,
	}, c.Logger.With(slog.String("component", "webhooks")))
	return nil
}

func (c *Core) Close() error {
	return c.Store.Close()
}

// durationOr returns the parsed value, or def when it is not positive.
func durationOr(value string, def time.Duration) time.Duration {
	if d := conf.Duration(value); d > 0 {
		return d
	}
	return def
}
