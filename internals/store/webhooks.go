package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const webhookColumns = `id, project_id, url, secret, events, is_active, created_at, updated_at`

func scanWebhook(scan func(dest ...any) error) (*Webhook, error) {
	var w Webhook
	var events, createdAt, updatedAt string
	var active int
	if err := scan(&w.ID, &w.ProjectID, &w.URL, &w.Secret, &events, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	w.Events = []string{}
	if events != "" {
		if err := json.Unmarshal([]byte(events), &w.Events); err != nil {
			return nil, err
		}
	}
	w.IsActive = active != 0
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}

func encodeEvents(events []string) (string, error) {
	if events == nil {
		events = []string{}
	}
	data, err := json.Marshal(events)
	return string(data), err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (q *Queries) InsertWebhook(ctx context.Context, w *Webhook) error {
	events, err := encodeEvents(w.Events)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
INSERT INTO webhooks (`+webhookColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, w.ID, w.ProjectID, w.URL, w.Secret, events, boolInt(w.IsActive), formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	return err
}

func (q *Queries) GetWebhook(ctx context.Context, id string) (*Webhook, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhook(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (q *Queries) ListWebhooks(ctx context.Context, projectID string) ([]Webhook, error) {
	return q.queryWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE project_id = ? ORDER BY created_at ASC`, projectID)
}

func (q *Queries) ListActiveWebhooks(ctx context.Context, projectID string) ([]Webhook, error) {
	return q.queryWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE project_id = ? AND is_active = 1 ORDER BY created_at ASC`, projectID)
}

// UpdateWebhook writes every mutable column of w.
func (q *Queries) UpdateWebhook(ctx context.Context, w *Webhook) error {
	events, err := encodeEvents(w.Events)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
UPDATE webhooks SET url = ?, secret = ?, events = ?, is_active = ?, updated_at = ? WHERE id = ?
`, w.URL, w.Secret, events, boolInt(w.IsActive), formatTime(w.UpdatedAt), w.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) DeleteWebhook(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) queryWebhooks(ctx context.Context, query string, args ...any) ([]Webhook, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hooks := []Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows.Scan)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *w)
	}
	return hooks, rows.Err()
}

const deliveryColumns = `id, webhook_id, event_type, payload, status, attempts, last_error, response_status, next_retry_at, delivered_at, created_at, updated_at`

func scanDelivery(scan func(dest ...any) error) (*Delivery, error) {
	var d Delivery
	var status, createdAt, updatedAt string
	var lastError, nextRetry, deliveredAt sql.NullString
	var responseStatus sql.NullInt64
	if err := scan(&d.ID, &d.WebhookID, &d.EventType, &d.Payload, &status, &d.Attempts, &lastError, &responseStatus, &nextRetry, &deliveredAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Status = DeliveryStatus(status)
	d.LastError = stringPtr(lastError)
	if responseStatus.Valid {
		code := int(responseStatus.Int64)
		d.ResponseStatus = &code
	}
	d.NextRetryAt = timePtr(nextRetry)
	d.DeliveredAt = timePtr(deliveredAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func (q *Queries) InsertDelivery(ctx context.Context, d *Delivery) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO webhook_deliveries (`+deliveryColumns+`)
VALUES (?, ?, ?, ?, 'pending', 0, NULL, NULL, NULL, NULL, ?, ?)
`, d.ID, d.WebhookID, d.EventType, d.Payload, formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	return err
}

func (q *Queries) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

func (q *Queries) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error) {
	return q.queryDeliveries(ctx, `
SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE webhook_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, webhookID, limit)
}

// ListDueDeliveries returns pending deliveries and retrying deliveries whose
// next_retry_at has passed, oldest first.
func (q *Queries) ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]Delivery, error) {
	return q.queryDeliveries(ctx, `
SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE status = 'pending' OR (status = 'retrying' AND next_retry_at <= ?)
ORDER BY created_at ASC, id ASC
LIMIT ?
`, formatTime(now), limit)
}

func (q *Queries) MarkDeliverySuccess(ctx context.Context, id string, responseStatus int) error {
	now := formatTime(q.Now())
	return q.execDelivery(ctx, `
UPDATE webhook_deliveries
SET status = 'success', attempts = attempts + 1, response_status = ?, next_retry_at = NULL, delivered_at = ?, updated_at = ?
WHERE id = ? AND status IN ('pending', 'retrying')
`, responseStatus, now, now, id)
}

func (q *Queries) MarkDeliveryRetrying(ctx context.Context, id string, lastError string, responseStatus *int, nextRetryAt time.Time) error {
	return q.execDelivery(ctx, `
UPDATE webhook_deliveries
SET status = 'retrying', attempts = attempts + 1, last_error = ?, response_status = ?, next_retry_at = ?, updated_at = ?
WHERE id = ? AND status IN ('pending', 'retrying')
`, lastError, nullInt(responseStatus), formatTime(nextRetryAt), formatTime(q.Now()), id)
}

// MarkDeliveryFailed is terminal. countAttempt is false when the delivery is
// abandoned without a POST (its webhook is gone or inactive).
func (q *Queries) MarkDeliveryFailed(ctx context.Context, id string, lastError string, responseStatus *int, countAttempt bool) error {
	increment := 0
	if countAttempt {
		increment = 1
	}
	return q.execDelivery(ctx, `
UPDATE webhook_deliveries
SET status = 'failed', attempts = attempts + ?, last_error = ?, response_status = ?, next_retry_at = NULL, updated_at = ?
WHERE id = ? AND status IN ('pending', 'retrying')
`, increment, lastError, nullInt(responseStatus), formatTime(q.Now()), id)
}

func (q *Queries) execDelivery(ctx context.Context, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) queryDeliveries(ctx context.Context, query string, args ...any) ([]Delivery, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows.Scan)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}
