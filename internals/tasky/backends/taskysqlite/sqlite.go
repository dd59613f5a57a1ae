// Package taskysqlite is a durable tasky backend that keeps its queue table
// in an existing sqlite database.
package taskysqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Oudwins/taskforge/internals/tasky"
)

var ErrRetriesExceeded = errors.New("retries exceeded")

type Config struct {
	DB           *sql.DB
	QueueName    string
	RetryDelay   func(attempts int) time.Duration
	RetryMax     int
	PollInterval time.Duration
}

type Backend[T ~string] struct {
	db     *sql.DB
	cfg    Config
	signal chan struct{}
	now    func() time.Time
}

func New[T ~string](ctx context.Context, cfg Config) (*Backend[T], error) {
	if cfg.DB == nil {
		return nil, errors.New("sqlite backend requires a db")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "tasky_queue"
	}
	if err := validateQueueName(cfg.QueueName); err != nil {
		return nil, err
	}

	backend := &Backend[T]{
		db:     cfg.DB,
		cfg:    cfg,
		signal: make(chan struct{}, 1),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := backend.init(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func (b *Backend[T]) init(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, b.q(`
CREATE TABLE IF NOT EXISTS {q} (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	payload BLOB,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	last_error TEXT,
	available_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_{q}_dequeue ON {q}(status, available_at, priority DESC, created_at ASC);
`))
	return err
}

// Enqueue ignores a task id that is already queued.
func (b *Backend[T]) Enqueue(ctx context.Context, task *tasky.Task[T], job *tasky.Job[T]) error {
	if task.TaskID == "" {
		return errors.New("task id is empty")
	}
	now := b.now().UnixNano()
	_, err := b.db.ExecContext(ctx, b.q(`
INSERT INTO {q} (id, job_id, payload, priority, status, attempts, available_at, created_at, updated_at)
VALUES (?, ?, ?, ?, 'pending', 0, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`), task.TaskID, string(task.JobID), task.Payload, job.Priority, now, now, now)
	if err != nil {
		return err
	}
	b.wake()
	return nil
}

func (b *Backend[T]) Dequeue(ctx context.Context) (T, string, []byte, error) {
	var zero T
	timer := time.NewTimer(b.cfg.PollInterval)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return zero, "", nil, ctx.Err()
		}

		now := b.now().UnixNano()
		row := b.db.QueryRowContext(ctx, b.q(`
WITH next AS (
	SELECT id FROM {q}
	WHERE status = 'pending' AND available_at <= ?
	ORDER BY priority DESC, created_at ASC
	LIMIT 1
)
UPDATE {q}
SET status = 'in_flight', updated_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, job_id, payload
`), now, now)
		var taskID, jobID string
		var payload []byte
		err := row.Scan(&taskID, &jobID, &payload)
		switch {
		case err == nil:
			return T(jobID), taskID, payload, nil
		case !errors.Is(err, sql.ErrNoRows):
			return zero, "", nil, err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.cfg.PollInterval)

		select {
		case <-ctx.Done():
			return zero, "", nil, ctx.Err()
		case <-b.signal:
		case <-timer.C:
		}
	}
}

func (b *Backend[T]) Ack(ctx context.Context, taskID string) error {
	now := b.now().UnixNano()
	res, err := b.db.ExecContext(ctx, b.q(`
UPDATE {q} SET status = 'completed', updated_at = ?, completed_at = ? WHERE id = ?
`), now, now, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	return nil
}

// Nack puts an in-flight task back after RetryDelay, or marks it failed once
// RetryMax retries are used up.
func (b *Backend[T]) Nack(ctx context.Context, taskID string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts int
	err = tx.QueryRowContext(ctx, b.q(`SELECT attempts FROM {q} WHERE id = ? AND status = 'in_flight'`), taskID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unknown task id: %v", taskID)
		}
		return err
	}

	attempts++
	now := b.now()
	if attempts > b.cfg.RetryMax {
		if _, err := tx.ExecContext(ctx, b.q(`UPDATE {q} SET status = 'failed', attempts = ?, updated_at = ? WHERE id = ?`), attempts, now.UnixNano(), taskID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return ErrRetriesExceeded
	}

	availableAt := now
	if b.cfg.RetryDelay != nil {
		availableAt = now.Add(b.cfg.RetryDelay(attempts))
	}
	if _, err := tx.ExecContext(ctx, b.q(`
UPDATE {q} SET status = 'pending', attempts = ?, available_at = ?, updated_at = ? WHERE id = ?
`), attempts, availableAt.UnixNano(), now.UnixNano(), taskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.wake()
	return nil
}

// ForceFlush is a no-op; every enqueue is written immediately.
func (b *Backend[T]) ForceFlush(ctx context.Context) error {
	return ctx.Err()
}

// RecoverInFlight returns tasks left in flight by a previous process to the
// pending state. Call before starting consumers.
func (b *Backend[T]) RecoverInFlight(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, b.q(`UPDATE {q} SET status = 'pending', updated_at = ? WHERE status = 'in_flight'`), b.now().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if n > 0 {
		b.wake()
	}
	return n, err
}

// Status reports the queue state of one task. Tests and diagnostics.
func (b *Backend[T]) Status(ctx context.Context, taskID string) (string, int, error) {
	var status string
	var attempts int
	err := b.db.QueryRowContext(ctx, b.q(`SELECT status, attempts FROM {q} WHERE id = ?`), taskID).Scan(&status, &attempts)
	return status, attempts, err
}

func (b *Backend[T]) wake() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Backend[T]) q(query string) string {
	return strings.ReplaceAll(query, "{q}", b.cfg.QueueName)
}

var queueNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateQueueName(name string) error {
	if !queueNamePattern.MatchString(name) {
		return fmt.Errorf("invalid queue name: %s", name)
	}
	return nil
}
