package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes checkout events to the structured log. It is the default sink for
// local runs.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher that logs at info level.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishPaymentCreated(_ context.Context, event PaymentCreated) error {
	p.logger.Info(TypePaymentCreated,
		zap.String("orderRef", event.OrderRef),
		zap.String("paymentIntentId", event.PaymentIntentID),
		zap.String("packageId", event.PackageID),
		zap.Int64("amount", event.Amount),
		zap.String("currency", event.Currency),
		zap.String("catalogVersion", event.CatalogVersion),
		zap.Time("createdAt", event.CreatedAt),
	)
	return nil
}

// Noop discards every event.
type Noop struct{}

func (Noop) PublishPaymentCreated(context.Context, PaymentCreated) error { return nil }
