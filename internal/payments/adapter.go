package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wantinglittle/patches/internal/pricing"
)

const (
	defaultAttemptTimeout = 10 * time.Second
	maxAttempts           = 2
	metricNamespace       = "github.com/wantinglittle/patches/internal/payments"
)

// ErrInvalidQuote is returned when a request carries a quote that was not produced by a valid
// validation result.
var ErrInvalidQuote = errors.New("payments: quote is not validated")

// Logger receives structured adapter events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// PaymentRequest asks for a payment handle for a validated quote. The amount charged is always
// the quote's amount.
type PaymentRequest struct {
	Quote          pricing.Quote
	Customer       *Customer
	IdempotencyKey string
}

// PaymentHandle is what the browser needs to complete the payment.
type PaymentHandle struct {
	IntentID     string
	ClientSecret string
	Amount       int64
	Currency     string
	OrderRef     string
	Metadata     map[string]string
}

// Adapter turns validated quotes into payment intents. Each provider call is bounded by a
// timeout; a retryable failure (5xx, network, timeout) is retried once, immediately, with the
// same idempotency key.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	logger   Logger
	newRef   func() string
	latency  metric.Float64Histogram
	failures metric.Int64Counter
}

// AdapterOption customises the Adapter.
type AdapterOption func(*Adapter)

// WithAttemptTimeout bounds each provider call.
func WithAttemptTimeout(timeout time.Duration) AdapterOption {
	return func(a *Adapter) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(logger Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithOrderRefGenerator overrides how order references are minted.
func WithOrderRefGenerator(fn func() string) AdapterOption {
	return func(a *Adapter) {
		if fn != nil {
			a.newRef = fn
		}
	}
}

// WithMeter records provider latency and failures on m.
func WithMeter(m metric.Meter) AdapterOption {
	return func(a *Adapter) {
		if m != nil {
			a.registerMetrics(m)
		}
	}
}

// NewAdapter constructs an Adapter around provider.
func NewAdapter(provider Provider, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		provider: provider,
		timeout:  defaultAttemptTimeout,
		logger:   func(context.Context, string, map[string]any) {},
		newRef:   newOrderRef,
	}
	a.registerMetrics(otel.GetMeterProvider().Meter(metricNamespace))
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (a *Adapter) registerMetrics(m metric.Meter) {
	if h, err := m.Float64Histogram("payments.provider.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of payment intent creation attempts"),
	); err == nil {
		a.latency = h
	}
	if c, err := m.Int64Counter("payments.provider.failures",
		metric.WithDescription("Failed payment intent creation attempts"),
	); err == nil {
		a.failures = c
	}
}

// CreatePaymentRequest requests a payment intent for req.Quote.
func (a *Adapter) CreatePaymentRequest(ctx context.Context, req PaymentRequest) (PaymentHandle, error) {
	if a == nil || a.provider == nil {
		return PaymentHandle{}, ErrProviderNotConfigured
	}
	if req.Quote.IsZero() {
		return PaymentHandle{}, ErrInvalidQuote
	}

	orderRef := a.newRef()
	metadata := BuildMetadata(req.Quote, req.Customer, orderRef)
	intentReq := IntentRequest{
		Amount:         req.Quote.Amount(),
		Currency:       pricing.Currency,
		Metadata:       metadata,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	if intentReq.IdempotencyKey == "" {
		intentReq.IdempotencyKey = "storefront-" + orderRef
	}
	if req.Customer != nil {
		intentReq.ReceiptEmail = strings.TrimSpace(req.Customer.Email)
	}

	var lastErr *UpstreamError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		intent, err := a.attempt(ctx, intentReq)
		if err == nil {
			a.logger(ctx, "payments.intent.created", map[string]any{
				"orderRef":  orderRef,
				"packageId": req.Quote.PackageID(),
				"amount":    req.Quote.Amount(),
				"attempt":   attempt,
			})
			return PaymentHandle{
				IntentID:     intent.ID,
				ClientSecret: intent.ClientSecret,
				Amount:       req.Quote.Amount(),
				Currency:     pricing.Currency,
				OrderRef:     orderRef,
				Metadata:     metadata,
			}, nil
		}

		lastErr = asUpstream(err)
		lastErr.Attempts = attempt
		a.logger(ctx, "payments.intent.attempt_failed", map[string]any{
			"orderRef":  orderRef,
			"attempt":   attempt,
			"status":    lastErr.StatusCode,
			"retryable": lastErr.Retryable,
			"error":     lastErr.Error(),
		})
		if !lastErr.Retryable || ctx.Err() != nil {
			break
		}
	}
	return PaymentHandle{}, lastErr
}

func (a *Adapter) attempt(ctx context.Context, req IntentRequest) (Intent, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	intent, err := a.provider.CreatePaymentIntent(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = upstreamf(err, true, "payment provider timed out")
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if a.failures != nil {
			a.failures.Add(ctx, 1)
		}
	}
	if a.latency != nil {
		a.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
			metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return intent, err
}

func asUpstream(err error) *UpstreamError {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		copied := *upstream
		return &copied
	}
	return &UpstreamError{Message: err.Error(), Err: err}
}

func newOrderRef() string {
	return ulid.Make().String()
}
