package schemas

import (
	z "github.com/Oudwins/zog"
)

type WebhookCreateRequest struct {
	ProjectID string   `json:"project_id" zog:"project_id"`
	URL       string   `json:"url" zog:"url"`
	Secret    string   `json:"secret" zog:"secret"`
	Events    []string `json:"events,omitempty" zog:"events"`
	IsActive  *bool    `json:"is_active,omitempty" zog:"is_active"`
}

var WebhookCreateSchema = z.Struct(z.Shape{
	"ProjectID": z.String().Required(z.Message("project_id is required")).Trim(),
	"URL":       z.String().Required(z.Message("url is required")).Trim().URL(z.Message("url is not valid")),
	"Secret":    z.String().Required(z.Message("secret is required")),
	"Events":    z.Slice(z.String().Trim()).Optional(),
})

type WebhookUpdateRequest struct {
	URL      *string   `json:"url,omitempty"`
	Secret   *string   `json:"secret,omitempty"`
	Events   *[]string `json:"events,omitempty"`
	IsActive *bool     `json:"is_active,omitempty"`
}

type DeliveryListQuery struct {
	Limit int `zog:"limit"`
}

var DeliveryListQuerySchema = z.Struct(z.Shape{
	"Limit": z.Int().Optional().GTE(0, z.Message("limit must not be negative")),
})
