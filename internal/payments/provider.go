package payments

import (
	"context"
	"errors"
	"fmt"
)

// ErrProviderNotConfigured is returned when no payment provider is wired.
var ErrProviderNotConfigured = errors.New("payments: provider not configured")

// IntentRequest is the provider-level request for one payment intent.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	ReceiptEmail   string
	IdempotencyKey string
}

// Intent is the provider's answer: the intent id and the secret the browser widget needs.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
}

// Provider creates payment intents with an external payment processor.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// UpstreamError wraps a failure reported by, or while reaching, the payment processor.
// Message is the processor's own text and is safe to return to the storefront client.
type UpstreamError struct {
	Message    string
	StatusCode int
	Code       string
	Retryable  bool
	Attempts   int
	Err        error
}

// Error returns the upstream message.
func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "payment provider error"
}

// Unwrap exposes the underlying error.
func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrUpstream matches any *UpstreamError via errors.Is.
var ErrUpstream = errors.New("payments: upstream payment error")

// Is reports whether target is ErrUpstream.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

func upstreamf(err error, retryable bool, format string, args ...any) *UpstreamError {
	return &UpstreamError{Message: fmt.Sprintf(format, args...), Retryable: retryable, Err: err}
}
