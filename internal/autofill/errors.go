package autofill

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why a run stopped short of writing the amount.
type Kind string

const (
	KindParamsMissing       Kind = "PARAMS_MISSING"
	KindNotFound            Kind = "NOT_FOUND"
	KindMatchNotFound       Kind = "MATCH_NOT_FOUND"
	KindBalanceUnresolved   Kind = "BALANCE_UNRESOLVED"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindPageUnavailable     Kind = "PAGE_UNAVAILABLE"
	KindCanceled            Kind = "CANCELED"
)

// Error is a run failure carrying a human-readable message suitable for the
// warning surface.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf reports the failure kind of err. Cancellation of the parent context
// maps to KindCanceled. A parent deadline is a page that did not answer in
// time and, like anything else unclassified, is KindPageUnavailable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var runErr *Error
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindPageUnavailable
}

func messageOf(err error) string {
	var runErr *Error
	if errors.As(err, &runErr) {
		return runErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the page did not respond before the run deadline"
	}
	return err.Error()
}
