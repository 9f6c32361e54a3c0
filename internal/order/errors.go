package order

import (
	"errors"

	"go_certbot/internal/model"
)

// Error kinds. Every *Error carries exactly one of these as Kind.
var (
	ErrValidation         = errors.New("validation error")
	ErrQuotaExhausted     = errors.New("quota exhausted")
	ErrDuplicateOrder     = errors.New("duplicate order")
	ErrIllegalTransition  = errors.New("illegal transition")
	ErrExternalTool       = errors.New("external tool failure")
	ErrTerminalFailure    = errors.New("terminal failure")
	ErrNotFound           = errors.New("order not found")
	ErrPropagationPending = errors.New("dns propagation pending")
)

// Error is the structured failure returned by every machine operation.
// Message is user facing; Order is the latest known snapshot, if any.
type Error struct {
	Kind    error
	Message string
	Order   *model.Order
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, o *model.Order, message string) *Error {
	return &Error{Kind: kind, Message: message, Order: o}
}

func wrapError(kind error, o *model.Order, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Order: o, Err: err}
}

// KindOf returns the kind of err, or nil when err is not an *Error
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// OrderOf returns the order snapshot attached to err, if any
func OrderOf(err error) *model.Order {
	var e *Error
	if errors.As(err, &e) {
		return e.Order
	}
	return nil
}
