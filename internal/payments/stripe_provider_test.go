package payments

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

type fakeIntentAPI struct {
	params *stripe.PaymentIntentParams
	intent *stripe.PaymentIntent
	err    error
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	return f.intent, f.err
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	_, err := NewStripeProvider(StripeProviderConfig{})
	assert.Error(t, err)

	provider, err := NewStripeProvider(StripeProviderConfig{APIKey: "sk_test_123"})
	require.NoError(t, err)
	assert.NotNil(t, provider)
}

func TestStripeProviderCreatePaymentIntent(t *testing.T) {
	api := &fakeIntentAPI{intent: &stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret_x",
		Amount:       34000,
		Currency:     stripe.CurrencyUSD,
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	var logged []string
	provider, err := NewStripeProvider(StripeProviderConfig{
		intents: api,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	intent, err := provider.CreatePaymentIntent(ctx, IntentRequest{
		Amount:         34000,
		Currency:       "USD",
		Metadata:       map[string]string{"packageId": "classic"},
		ReceiptEmail:   "ada@example.com",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_1_secret_x", intent.ClientSecret)
	assert.Equal(t, "usd", intent.Currency)
	assert.Equal(t, []string{"payments.stripe.intent.created"}, logged)

	params := api.params
	require.NotNil(t, params)
	assert.Equal(t, int64(34000), *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.True(t, *params.AutomaticPaymentMethods.Enabled)
	assert.Equal(t, "ada@example.com", *params.ReceiptEmail)
	assert.Equal(t, "key-1", *params.IdempotencyKey)
	assert.Equal(t, map[string]string{"packageId": "classic"}, params.Metadata)
	assert.Equal(t, ctx, params.Context)
}

func TestStripeProviderOmitsEmptyReceiptEmail(t *testing.T) {
	api := &fakeIntentAPI{intent: &stripe.PaymentIntent{ID: "pi_2"}}
	provider, err := NewStripeProvider(StripeProviderConfig{intents: api})
	require.NoError(t, err)

	_, err = provider.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 100, Currency: "usd"})
	require.NoError(t, err)
	assert.Nil(t, api.params.ReceiptEmail)
	assert.Nil(t, api.params.IdempotencyKey)
}

func TestTranslateStripeError(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name      string
		err       error
		message   string
		retryable bool
	}{
		{"card error", &stripe.Error{HTTPStatusCode: 402, Msg: "Your card was declined.", Type: stripe.ErrorTypeCard}, "Your card was declined.", false},
		{"invalid request", &stripe.Error{HTTPStatusCode: 400, Msg: "Invalid currency", Type: stripe.ErrorTypeInvalidRequest}, "Invalid currency", false},
		{"server error", &stripe.Error{HTTPStatusCode: 500, Msg: "Something went wrong", Type: stripe.ErrorTypeAPI}, "Something went wrong", true},
		{"deadline", context.DeadlineExceeded, "payment provider timed out", true},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, "payment provider unreachable: dial: connection refused", true},
		{"other", errors.New("unexpected"), "unexpected", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateStripeError(ctx, tc.err)
			assert.Equal(t, tc.message, got.Error())
			assert.Equal(t, tc.retryable, got.Retryable)
			assert.True(t, errors.Is(got, tc.err) || errors.Is(got, ErrUpstream))
		})
	}
}

func TestStripeProviderReturnsUpstreamError(t *testing.T) {
	api := &fakeIntentAPI{err: &stripe.Error{HTTPStatusCode: 503, Msg: "Service unavailable", Type: stripe.ErrorTypeAPI}}
	provider, err := NewStripeProvider(StripeProviderConfig{intents: api})
	require.NoError(t, err)

	_, err = provider.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 100, Currency: "usd"})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, 503, upstream.StatusCode)
	assert.True(t, upstream.Retryable)
}
