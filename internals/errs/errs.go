package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal           Kind = "internal"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidArgument    Kind = "invalid_argument"
	KindFailedPrecondition Kind = "failed_precondition"
	KindConflict           Kind = "conflict"
	KindProvisioningFailed Kind = "provisioning_failed"
	KindExternalAPI        Kind = "external_api_error"
	KindDeliveryFailed     Kind = "delivery_failed"
)

// Error carries a Kind through wrapping so the HTTP layer can pick a status
// without string matching.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, errs.NotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	NotFound           = &Error{Kind: KindNotFound}
	InvalidInput       = &Error{Kind: KindInvalidInput}
	InvalidArgument    = &Error{Kind: KindInvalidArgument}
	FailedPrecondition = &Error{Kind: KindFailedPrecondition}
	Conflict           = &Error{Kind: KindConflict}
	ProvisioningFailed = &Error{Kind: KindProvisioningFailed}
	ExternalAPI        = &Error{Kind: KindExternalAPI}
	DeliveryFailed     = &Error{Kind: KindDeliveryFailed}
)

func E(kind Kind, op string, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Ef(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost Kind in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
