package payments

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey     string
	HTTPClient *http.Client
	Backends   *stripe.Backends
	Logger     StripeLogger

	intents stripePaymentIntentAPI
}

// StripeProvider implements Provider with the Stripe PaymentIntents API.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider. Unless Backends is supplied, stripe-go's own
// network retries are disabled so the Adapter's retry policy is the only one in effect.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	intents := cfg.intents
	if intents == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		backends := cfg.Backends
		if backends == nil {
			backends = noRetryBackends(cfg.HTTPClient)
		}
		intents = client.New(apiKey, backends).PaymentIntents
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{intents: intents, logger: logger}, nil
}

func noRetryBackends(httpClient *http.Client) *stripe.Backends {
	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		HTTPClient:        httpClient,
	}
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}
}

// CreatePaymentIntent creates a USD PaymentIntent with automatic payment methods enabled.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, ErrProviderNotConfigured
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.intents.New(params)
	if err != nil {
		upstream := translateStripeError(ctx, err)
		p.logger(ctx, "payments.stripe.intent.failed", map[string]any{
			"status":    upstream.StatusCode,
			"code":      upstream.Code,
			"retryable": upstream.Retryable,
		})
		return Intent{}, upstream
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      string(intent.Currency),
		"status":        string(intent.Status),
	})

	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
	}, nil
}

func translateStripeError(ctx context.Context, err error) *UpstreamError {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := stripeErr.Msg
		if msg == "" {
			msg = http.StatusText(stripeErr.HTTPStatusCode)
		}
		return &UpstreamError{
			Message:    msg,
			StatusCode: stripeErr.HTTPStatusCode,
			Code:       string(stripeErr.Code),
			Retryable:  stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.Type == stripe.ErrorTypeAPI,
			Err:        err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return upstreamf(err, true, "payment provider timed out")
	}
	if errors.Is(err, context.Canceled) {
		return upstreamf(err, false, "payment request cancelled")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return upstreamf(err, true, "payment provider unreachable: %v", netErr)
	}
	return upstreamf(err, false, "%v", err)
}
