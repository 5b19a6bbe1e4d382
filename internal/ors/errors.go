package ors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed matrix request. Every Kind is transient from the
// pipeline's point of view: the row is skipped and the run continues.
type Kind string

const (
	KindConnection Kind = "connection"
	KindAPI        Kind = "api"
	KindHTTP       Kind = "http"
	KindTimeout    Kind = "timeout"
	KindValidation Kind = "validation"
)

// Error is a classified routing service failure.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when no response was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("ors %s error (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("ors %s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a classified error. Every classified error is a
// transient row failure; ok is false for anything else.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// classifyTransport maps an error returned before any response was read.
// Cancellation of the caller's context is returned unclassified so that it halts the run.
func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}
