package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Oudwins/taskforge/internals/metrics"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasky"
	"github.com/Oudwins/taskforge/internals/timeouts"
)

const (
	reasonInactive = "webhook inactive or missing"
	maxErrorBody   = 512
)

type WorkerConfig struct {
	MaxAttempts  int
	Timeout      time.Duration
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	BackoffBase  time.Duration
	BackoffMax   time.Duration

	HTTPClient *http.Client
	// Backoff overrides the delay before the next attempt, given the
	// attempts made so far.
	Backoff func(attempts int) time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 7
	}
	if c.Timeout <= 0 {
		c.Timeout = timeouts.WebhookRequest
	}
	if c.PollInterval <= 0 {
		c.PollInterval = timeouts.WebhookPoll
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 8 * time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Backoff == nil {
		c.Backoff = tasky.BackoffJitter(tasky.BackoffExponential(tasky.BackoffConfig{
			Base:   c.BackoffBase,
			Max:    c.BackoffMax,
			Factor: 5,
		}), 0.2)
	}
	return c
}

// Worker POSTs due deliveries and records the outcome of each attempt.
type Worker struct {
	store  *store.Store
	cfg    WorkerConfig
	logger *slog.Logger
}

func NewWorker(s *store.Store, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: s, cfg: cfg.withDefaults(), logger: logger}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Webhook delivery pass failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce attempts every due delivery once and returns how many it attempted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	due, err := w.store.ListDueDeliveries(ctx, w.store.Now(), w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	hooks := map[string]*store.Webhook{}
	for _, d := range due {
		if _, seen := hooks[d.WebhookID]; seen {
			continue
		}
		hook, err := w.store.GetWebhook(ctx, d.WebhookID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
		hooks[d.WebhookID] = hook
	}

	// attempts share ctx, not a group context: a store error on one row
	// must not cancel posts that are already in flight
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed error
	)
	g.SetLimit(w.cfg.Workers)
	for i := range due {
		d := due[i]
		hook := hooks[d.WebhookID]
		g.Go(func() error {
			if err := w.attempt(ctx, hook, &d); err != nil {
				mu.Lock()
				failed = multierr.Append(failed, fmt.Errorf("delivery %s: %w", d.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(due), failed
}

func (w *Worker) attempt(ctx context.Context, hook *store.Webhook, d *store.Delivery) error {
	logger := w.logger.With(slog.String("delivery_id", d.ID), slog.String("webhook_id", d.WebhookID))
	if hook == nil || !hook.IsActive {
		logger.Info("Dropping delivery for inactive webhook")
		metrics.RecordDelivery(ctx, "failed", 0)
		return ignoreGone(w.store.MarkDeliveryFailed(ctx, d.ID, reasonInactive, nil, false))
	}

	start := time.Now()
	status, postErr := w.post(ctx, hook, d)
	elapsed := time.Since(start)
	if postErr == nil {
		logger.Debug("Webhook delivered", slog.Int("status", status), slog.Int("attempt", d.Attempts+1))
		metrics.RecordDelivery(ctx, "success", elapsed)
		return ignoreGone(w.store.MarkDeliverySuccess(ctx, d.ID, status))
	}
	if ctx.Err() != nil {
		// shutting down; the row stays due and is retried on the next start
		return nil
	}

	var responseStatus *int
	if status != 0 {
		responseStatus = &status
	}
	attempts := d.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		logger.Warn("Webhook delivery failed permanently", slog.Int("attempts", attempts), slog.String("error", postErr.Error()))
		metrics.RecordDelivery(ctx, "failed", elapsed)
		return ignoreGone(w.store.MarkDeliveryFailed(ctx, d.ID, postErr.Error(), responseStatus, true))
	}

	next := w.store.Now().Add(w.cfg.Backoff(attempts))
	logger.Info("Webhook delivery will be retried", slog.Int("attempts", attempts), slog.Time("next_retry_at", next), slog.String("error", postErr.Error()))
	metrics.RecordDelivery(ctx, "retrying", elapsed)
	return ignoreGone(w.store.MarkDeliveryRetrying(ctx, d.ID, postErr.Error(), responseStatus, next))
}

// post returns the response status (0 when there was none) and an error for
// anything other than 2xx.
func (w *Worker) post(ctx context.Context, hook *store.Webhook, d *store.Delivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	body := []byte(d.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderSignature, Sign(hook.Secret, body))
	req.Header.Set(HeaderEvent, d.EventType)
	req.Header.Set(HeaderDelivery, d.ID)

	resp, err := w.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	if len(bytes.TrimSpace(snippet)) > 0 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// ignoreGone tolerates a row that another worker already finalized.
func ignoreGone(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
