package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/wantinglittle/patches/internal/events"
	"github.com/wantinglittle/patches/internal/payments"
	"github.com/wantinglittle/patches/internal/platform/httpx"
	"github.com/wantinglittle/patches/internal/platform/observability"
	"github.com/wantinglittle/patches/internal/platform/requestctx"
	"github.com/wantinglittle/patches/internal/pricing"
)

const (
	defaultMaxPaymentBody = 16 * 1024
	maxIdempotencyKeyLen  = 255

	paymentMethods = "POST, OPTIONS"
	meterName      = "github.com/wantinglittle/patches/internal/handlers"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

// PaymentRequester creates payment handles for validated quotes.
type PaymentRequester interface {
	CreatePaymentRequest(ctx context.Context, req payments.PaymentRequest) (payments.PaymentHandle, error)
}

// PaymentIntentHandlers exposes the create-payment-intent function.
type PaymentIntentHandlers struct {
	validator *pricing.Validator
	payments  PaymentRequester
	publisher events.Publisher
	limiter   rateLimiter
	cors      corsPolicy
	maxBody   int64
	clock     func() time.Time

	quotes metric.Int64Counter
}

// PaymentIntentOption customises PaymentIntentHandlers.
type PaymentIntentOption func(*PaymentIntentHandlers)

// WithPaymentPublisher sets where created intents are announced.
func WithPaymentPublisher(p events.Publisher) PaymentIntentOption {
	return func(h *PaymentIntentHandlers) {
		if p != nil {
			h.publisher = p
		}
	}
}

// WithPaymentRateLimit allows perMinute requests per client IP. Zero disables limiting.
func WithPaymentRateLimit(perMinute int, clock func() time.Time) PaymentIntentOption {
	return func(h *PaymentIntentHandlers) {
		h.limiter = newClientRateLimiter(perMinute, time.Minute, clock)
	}
}

// WithPaymentAllowedOrigin sets Access-Control-Allow-Origin.
func WithPaymentAllowedOrigin(origin string) PaymentIntentOption {
	return func(h *PaymentIntentHandlers) {
		h.cors = newCORSPolicy(origin)
	}
}

// WithPaymentMaxBody caps the request body size in bytes.
func WithPaymentMaxBody(limit int64) PaymentIntentOption {
	return func(h *PaymentIntentHandlers) {
		if limit > 0 {
			h.maxBody = limit
		}
	}
}

// WithPaymentMeter records quote outcomes on m.
func WithPaymentMeter(m metric.Meter) PaymentIntentOption {
	return func(h *PaymentIntentHandlers) {
		if m != nil {
			h.registerMetrics(m)
		}
	}
}

// WithPaymentClock overrides the clock used for event timestamps.
func WithPaymentClock(clock func() time.Time) PaymentIntentOption {
	return func(h *PaymentIntentHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewPaymentIntentHandlers wires the validator and payment adapter into the HTTP function.
func NewPaymentIntentHandlers(validator *pricing.Validator, requester PaymentRequester, opts ...PaymentIntentOption) *PaymentIntentHandlers {
	h := &PaymentIntentHandlers{
		validator: validator,
		payments:  requester,
		publisher: events.Noop{},
		cors:      newCORSPolicy(defaultAllowedOrigin),
		maxBody:   defaultMaxPaymentBody,
		clock:     time.Now,
	}
	h.registerMetrics(otel.GetMeterProvider().Meter(meterName))
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *PaymentIntentHandlers) registerMetrics(m metric.Meter) {
	quotes, err := m.Int64Counter("storefront.quotes",
		metric.WithDescription("Priced customization requests by outcome"))
	if err == nil {
		h.quotes = quotes
	}
}

// Routes registers the function. Method dispatch happens in the handler so every response,
// 405 included, carries the CORS headers.
func (h *PaymentIntentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.HandleFunc("/create-payment-intent", h.serve)
}

type createPaymentIntentRequest struct {
	PackageID      string             `json:"packageId"`
	Customizations json.RawMessage    `json:"customizations"`
	Customer       *payments.Customer `json:"customer"`
}

type createPaymentIntentResponse struct {
	ClientSecret       string `json:"clientSecret"`
	ClientSecretLegacy string `json:"client_secret"`
	Amount             int64  `json:"amount"`
	OrderRef           string `json:"orderRef,omitempty"`
}

func (h *PaymentIntentHandlers) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodOptions {
		h.cors.preflight(w, paymentMethods)
		return
	}
	h.cors.apply(w, paymentMethods)
	if r.Method != http.MethodPost {
		httpx.WriteError(ctx, w, httpx.NewError("Method Not Allowed", "", http.StatusMethodNotAllowed))
		return
	}

	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(clientKey(r)); !ok {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment requests, try again shortly", http.StatusTooManyRequests))
			return
		}
	}

	if h.validator == nil || h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, h.maxBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req createPaymentIntentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	packageID := strings.TrimSpace(req.PackageID)
	if packageID == "" || isAbsent(req.Customizations) {
		httpx.WriteError(ctx, w, httpx.NewError("Missing required fields: packageId and customizations", "", http.StatusBadRequest))
		return
	}
	ctx = requestctx.WithFields(ctx, zap.String("packageId", observability.SanitizeField(packageID)))

	result := h.validator.ValidateJSON(packageID, req.Customizations)
	quote, err := result.Quote()
	if err == nil {
		err = h.validator.CheckRequired(packageID, quote.Selections())
	}
	if err != nil {
		h.recordQuote(ctx, packageID, string(pricing.KindOf(err)))
		requestctx.Logger(ctx).Info("package validation failed",
			zap.String("reason", string(pricing.KindOf(err))),
		)
		httpx.WriteError(ctx, w, httpx.NewError("Invalid package configuration", err.Error(), http.StatusBadRequest))
		return
	}
	h.recordQuote(ctx, packageID, "valid")

	handle, err := h.payments.CreatePaymentRequest(ctx, payments.PaymentRequest{
		Quote:          quote,
		Customer:       req.Customer,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		requestctx.Logger(ctx).Error("payment intent creation failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("Failed to create payment intent", err.Error(), http.StatusInternalServerError))
		return
	}

	h.announce(ctx, handle, quote, req.Customer)

	httpx.WriteJSON(w, http.StatusOK, createPaymentIntentResponse{
		ClientSecret:       handle.ClientSecret,
		ClientSecretLegacy: handle.ClientSecret,
		Amount:             handle.Amount,
		OrderRef:           handle.OrderRef,
	})
}

// announce publishes the created intent. Failures are logged and never change the response.
func (h *PaymentIntentHandlers) announce(ctx context.Context, handle payments.PaymentHandle, quote pricing.Quote, customer *payments.Customer) {
	event := events.PaymentCreated{
		OrderRef:        handle.OrderRef,
		PaymentIntentID: handle.IntentID,
		PackageID:       quote.PackageID(),
		PackageName:     quote.PackageName(),
		CatalogVersion:  quote.CatalogVersion(),
		Amount:          handle.Amount,
		Currency:        handle.Currency,
		Customizations:  quote.Selections(),
		CreatedAt:       h.clock().UTC(),
	}
	if customer != nil {
		event.CustomerEmail = strings.TrimSpace(customer.Email)
	}
	if err := h.publisher.PublishPaymentCreated(ctx, event); err != nil {
		requestctx.Logger(ctx).Warn("payment event not published",
			zap.String("orderRef", handle.OrderRef),
			zap.Error(err),
		)
	}
}

func (h *PaymentIntentHandlers) recordQuote(ctx context.Context, packageID, outcome string) {
	if h.quotes == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if h.validator != nil && h.validator.Catalog().Contains(packageID) {
		attrs = append(attrs, attribute.String("package", packageID))
	}
	h.quotes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// isAbsent mirrors a falsy check on the decoded field: missing, null, false, "" and 0 count
// as not supplied. An empty object is present.
func isAbsent(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		return ""
	}
	return key
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxPaymentBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
