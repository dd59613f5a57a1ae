package sdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
)

func webhookPath(id string, suffix string) string {
	return "/webhooks/" + url.PathEscape(id) + suffix
}

func (c *Client) CreateWebhook(ctx context.Context, request schemas.WebhookCreateRequest) (*store.Webhook, error) {
	var out store.Webhook
	if err := c.call(ctx, http.MethodPost, "/webhooks", request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListWebhooks(ctx context.Context, projectID string) ([]store.Webhook, error) {
	var out []store.Webhook
	if err := c.call(ctx, http.MethodGet, "/webhooks?project_id="+url.QueryEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetWebhook(ctx context.Context, id string) (*store.Webhook, error) {
	var out store.Webhook
	if err := c.call(ctx, http.MethodGet, webhookPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateWebhook(ctx context.Context, id string, request schemas.WebhookUpdateRequest) (*store.Webhook, error) {
	var out store.Webhook
	if err := c.call(ctx, http.MethodPatch, webhookPath(id, ""), request, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, webhookPath(id, ""), nil, nil)
}

func (c *Client) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]store.Delivery, error) {
	path := webhookPath(webhookID, "/deliveries")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []store.Delivery
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Redeliver(ctx context.Context, webhookID string, deliveryID string) (*store.Delivery, error) {
	var out store.Delivery
	path := webhookPath(webhookID, "/deliveries/"+url.PathEscape(deliveryID)+"/retry")
	if err := c.call(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
