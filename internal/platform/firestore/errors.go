package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error annotates a Firestore failure with the operation that produced it.
type Error struct {
	Op          string
	Err         error
	NotFound    bool
	Unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// WrapError classifies err by its gRPC status. Context cancellation passes through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	wrapped := &Error{Op: op, Err: err}
	switch status.Code(err) {
	case codes.NotFound:
		wrapped.NotFound = true
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		wrapped.Unavailable = true
	}
	return wrapped
}

// IsUnavailable reports whether err is a transient backend outage.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Unavailable
}
