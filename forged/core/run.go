package core

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Oudwins/taskforge/internals/conf"
	"github.com/Oudwins/taskforge/internals/tasky"
)

// Run starts the provisioning consumer, the webhook worker, the cleanup
// sweep and, when configured, the PR poller. It returns when ctx is done.
func (c *Core) Run(ctx context.Context) error {
	recovered, err := c.queueBackend.RecoverInFlight(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		c.Logger.Info("Recovered in-flight provisioning jobs", slog.Int64("count", recovered))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tasky.NewConsumer(c.Queue, tasky.ConsumerOptions{Workers: c.Config.Provisioning.Workers}).Run(ctx)
	})
	g.Go(func() error {
		return c.Deliveries.Run(ctx)
	})
	g.Go(func() error {
		return c.Provisioner.RunSweeper(ctx,
			durationOr(c.Config.Cleanup.Interval, time.Hour),
			durationOr(c.Config.Cleanup.Retention, 72*time.Hour))
	})
	g.Go(func() error {
		return c.PRs.RunPoller(ctx, conf.Duration(c.Config.Providers.Github.PollInterval))
	})
	return g.Wait()
}
