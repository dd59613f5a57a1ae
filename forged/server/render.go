package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/logbuf"
)

type JsonResponseStatus string

const (
	JsonResponseStatusSuccess JsonResponseStatus = "success"
	JsonResponseStatusFailed  JsonResponseStatus = "failed"
)

type JsonResponseErrorCode string

const (
	JsonResponseErrorCodeInvalidJson        JsonResponseErrorCode = "invalid_json"
	JsonResponseErrorCodeValidationFailed   JsonResponseErrorCode = "validation_failed"
	JsonResponseErrorCodeInternal           JsonResponseErrorCode = "internal"
	JsonResponseErrorCodeNotFound           JsonResponseErrorCode = "not_found"
	JsonResponseErrorCodeInvalidInput       JsonResponseErrorCode = "invalid_input"
	JsonResponseErrorCodeInvalidArgument    JsonResponseErrorCode = "invalid_argument"
	JsonResponseErrorCodeFailedPrecondition JsonResponseErrorCode = "failed_precondition"
	JsonResponseErrorCodeConflict           JsonResponseErrorCode = "conflict"
	JsonResponseErrorCodeProvisioningFailed JsonResponseErrorCode = "provisioning_failed"
	JsonResponseErrorCodeExternalAPI        JsonResponseErrorCode = "external_api_error"
	JsonResponseErrorCodeDeliveryFailed     JsonResponseErrorCode = "delivery_failed"
)

type ErrorResponse struct {
	Status  JsonResponseStatus    `json:"status"`
	Code    JsonResponseErrorCode `json:"code"`
	Message string                `json:"message"`
	Errors  map[string][]string   `json:"errors,omitempty"`
}

func JsonResponseError(code JsonResponseErrorCode, message string, errors map[string][]string) *ErrorResponse {
	return &ErrorResponse{
		Status:  JsonResponseStatusFailed,
		Code:    code,
		Message: message,
		Errors:  errors,
	}
}

type RenderOption = func(w http.ResponseWriter, r *http.Request)

type Renderer struct {
}

func (r *Renderer) Status(status int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

var Render = Renderer{}

func RenderJSON(w http.ResponseWriter, r *http.Request, payload any, opts ...RenderOption) {
	w.Header().Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(w, r)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

var kindStatus = map[errs.Kind]struct {
	status int
	code   JsonResponseErrorCode
}{
	errs.KindNotFound:           {http.StatusNotFound, JsonResponseErrorCodeNotFound},
	errs.KindInvalidInput:       {http.StatusBadRequest, JsonResponseErrorCodeInvalidInput},
	errs.KindInvalidArgument:    {http.StatusBadRequest, JsonResponseErrorCodeInvalidArgument},
	errs.KindFailedPrecondition: {http.StatusConflict, JsonResponseErrorCodeFailedPrecondition},
	errs.KindConflict:           {http.StatusConflict, JsonResponseErrorCodeConflict},
	errs.KindProvisioningFailed: {http.StatusInternalServerError, JsonResponseErrorCodeProvisioningFailed},
	errs.KindExternalAPI:        {http.StatusBadGateway, JsonResponseErrorCodeExternalAPI},
	errs.KindDeliveryFailed:     {http.StatusBadGateway, JsonResponseErrorCodeDeliveryFailed},
}

// RenderError maps err's kind to a status and error code. Internal errors
// are logged and rendered without their message.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	mapped, ok := kindStatus[errs.KindOf(err)]
	if !ok {
		logbuf.FromContext(r.Context()).Error("internal error", slog.String("error", err.Error()))
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInternal, "internal error", nil), Render.Status(http.StatusInternalServerError))
		return
	}
	message := err.Error()
	var e *errs.Error
	if errors.As(err, &e) && e.Msg != "" {
		message = e.Msg
	}
	RenderJSON(w, r, JsonResponseError(mapped.code, message, nil), Render.Status(mapped.status))
}

func renderIssues(w http.ResponseWriter, r *http.Request, issues map[string][]string) {
	RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "Schema validation failed", issues), Render.Status(http.StatusBadRequest))
}

func renderInvalid(w http.ResponseWriter, r *http.Request, message string) {
	RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidInput, message, nil), Render.Status(http.StatusBadRequest))
}

// decodeJSON reads the body into dst. An empty body leaves dst untouched.
// It renders the error and returns false on malformed JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
	return false
}
