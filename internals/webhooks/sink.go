package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/store"
)

const timestampLayout = time.RFC3339

// Envelope is the JSON body POSTed to subscribers.
type Envelope struct {
	Event      string `json:"event"`
	Timestamp  string `json:"timestamp"`
	DeliveryID string `json:"delivery_id"`
	Data       any    `json:"data"`
}

// Sink writes one pending delivery per active subscribed webhook of the
// project, inside the caller's transaction. Nothing is sent here.
type Sink struct{}

var _ events.Sink = Sink{}

func (Sink) Enqueue(ctx context.Context, q *store.Queries, projectID string, event string, data any) error {
	hooks, err := q.ListActiveWebhooks(ctx, projectID)
	if err != nil {
		return err
	}
	now := q.Now()
	for _, hook := range hooks {
		if !hook.Subscribes(event) {
			continue
		}
		id := store.NewID()
		body, err := json.Marshal(Envelope{Event: event, Timestamp: now.Format(timestampLayout), DeliveryID: id, Data: data})
		if err != nil {
			return err
		}
		delivery := &store.Delivery{
			ID:        id,
			WebhookID: hook.ID,
			EventType: event,
			Payload:   string(body),
			Status:    store.DeliveryStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := q.InsertDelivery(ctx, delivery); err != nil {
			return err
		}
	}
	return nil
}
