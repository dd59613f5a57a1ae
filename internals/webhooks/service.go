// Package webhooks manages project webhook subscriptions and delivers events
// to them through a durable, retried delivery table.
package webhooks

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/store"
)

const (
	DefaultDeliveryLimit = 50
	MaxDeliveryLimit     = 500
)

type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(s *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, logger: logger}
}

type CreateParams struct {
	ProjectID string
	URL       string
	Secret    string
	Events    []string
	IsActive  *bool
}

func validateURL(op string, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", errs.Ef(errs.KindInvalidInput, op, "url must be an http or https url, got %q", raw)
	}
	return raw, nil
}

func validateEvents(op string, list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	seen := map[string]struct{}{}
	for _, e := range list {
		e = strings.TrimSpace(e)
		if !events.Known(e) {
			return nil, errs.Ef(errs.KindInvalidInput, op, "unknown event %q", e)
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*store.Webhook, error) {
	const op = "webhooks.Create"
	u, err := validateURL(op, params.URL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Secret) == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "secret is required")
	}
	subscribed, err := validateEvents(op, params.Events)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, params.ProjectID); err != nil {
		return nil, notFound(op, "project", err)
	}

	now := s.store.Now()
	hook := &store.Webhook{
		ID:        store.NewID(),
		ProjectID: params.ProjectID,
		URL:       u,
		Secret:    params.Secret,
		Events:    subscribed,
		IsActive:  params.IsActive == nil || *params.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertWebhook(ctx, hook); err != nil {
		return nil, err
	}
	s.logger.Info("Webhook created", slog.String("webhook_id", hook.ID), slog.String("project_id", hook.ProjectID))
	return hook, nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.Webhook, error) {
	hook, err := s.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, notFound("webhooks.Get", "webhook", err)
	}
	return hook, nil
}

func (s *Service) List(ctx context.Context, projectID string) ([]store.Webhook, error) {
	const op = "webhooks.List"
	if projectID == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "project_id is required")
	}
	return s.store.ListWebhooks(ctx, projectID)
}

// UpdateParams is a partial update; nil leaves the field alone.
type UpdateParams struct {
	URL      *string
	Secret   *string
	Events   *[]string
	IsActive *bool
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*store.Webhook, error) {
	const op = "webhooks.Update"
	var hook *store.Webhook
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		hook, err = q.GetWebhook(ctx, id)
		if err != nil {
			return notFound(op, "webhook", err)
		}
		if params.URL != nil {
			if hook.URL, err = validateURL(op, *params.URL); err != nil {
				return err
			}
		}
		if params.Secret != nil {
			if strings.TrimSpace(*params.Secret) == "" {
				return errs.E(errs.KindInvalidInput, op, "secret cannot be empty")
			}
			hook.Secret = *params.Secret
		}
		if params.Events != nil {
			if hook.Events, err = validateEvents(op, *params.Events); err != nil {
				return err
			}
		}
		if params.IsActive != nil {
			hook.IsActive = *params.IsActive
		}
		hook.UpdatedAt = q.Now()
		return q.UpdateWebhook(ctx, hook)
	})
	if err != nil {
		return nil, err
	}
	return hook, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*store.Webhook, error) {
	return s.Update(ctx, id, UpdateParams{IsActive: &active})
}

// Delete removes the subscription. Its deliveries stay; pending ones are
// failed by the worker.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteWebhook(ctx, id); err != nil {
		return notFound("webhooks.Delete", "webhook", err)
	}
	return nil
}

func (s *Service) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]store.Delivery, error) {
	const op = "webhooks.ListDeliveries"
	if _, err := s.store.GetWebhook(ctx, webhookID); err != nil {
		return nil, notFound(op, "webhook", err)
	}
	switch {
	case limit < 0:
		return nil, errs.E(errs.KindInvalidInput, op, "limit must not be negative")
	case limit == 0:
		limit = DefaultDeliveryLimit
	case limit > MaxDeliveryLimit:
		limit = MaxDeliveryLimit
	}
	return s.store.ListDeliveries(ctx, webhookID, limit)
}

// Redeliver queues a fresh copy of a failed delivery. The failed row is left
// as it is.
func (s *Service) Redeliver(ctx context.Context, webhookID string, deliveryID string) (*store.Delivery, error) {
	const op = "webhooks.Redeliver"
	var fresh *store.Delivery
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetWebhook(ctx, webhookID); err != nil {
			return notFound(op, "webhook", err)
		}
		original, err := q.GetDelivery(ctx, deliveryID)
		if err != nil || original.WebhookID != webhookID {
			return errs.E(errs.KindNotFound, op, "delivery not found")
		}
		if original.Status != store.DeliveryStatusFailed {
			return errs.Ef(errs.KindFailedPrecondition, op, "only failed deliveries can be retried, delivery is %s", original.Status)
		}

		now := q.Now()
		id := store.NewID()
		payload, err := sjson.Set(original.Payload, "delivery_id", id)
		if err != nil {
			return err
		}
		if payload, err = sjson.Set(payload, "timestamp", now.Format(timestampLayout)); err != nil {
			return err
		}
		fresh = &store.Delivery{
			ID:        id,
			WebhookID: webhookID,
			EventType: original.EventType,
			Payload:   payload,
			Status:    store.DeliveryStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return q.InsertDelivery(ctx, fresh)
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func notFound(op string, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errs.Ef(errs.KindNotFound, op, "%s not found", what)
	}
	return err
}
