package events

import (
	"context"
	"errors"
	"time"
)

// TypePaymentCreated is the event type attribute for PaymentCreated messages.
const TypePaymentCreated = "storefront.payment_intent.created"

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("events: publisher closed")

// PaymentCreated announces that a payment intent was created for a validated order. It
// never carries card data or the client secret.
type PaymentCreated struct {
	OrderRef        string            `json:"orderRef"`
	PaymentIntentID string            `json:"paymentIntentId"`
	PackageID       string            `json:"packageId"`
	PackageName     string            `json:"packageName"`
	CatalogVersion  string            `json:"catalogVersion,omitempty"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Customizations  map[string]string `json:"customizations,omitempty"`
	CustomerEmail   string            `json:"customerEmail,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Publisher delivers checkout events to a downstream sink.
type Publisher interface {
	PublishPaymentCreated(ctx context.Context, event PaymentCreated) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event PaymentCreated) error

// PublishPaymentCreated calls f.
func (f PublisherFunc) PublishPaymentCreated(ctx context.Context, event PaymentCreated) error {
	return f(ctx, event)
}
