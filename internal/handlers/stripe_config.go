package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wantinglittle/patches/internal/platform/httpx"
)

const stripeConfigMethods = "GET, OPTIONS"

// StripeConfigHandlers exposes the publishable key to the browser.
type StripeConfigHandlers struct {
	publicKey string
	cors      corsPolicy
}

// NewStripeConfigHandlers returns the stripe-config function. An empty key is served as "".
func NewStripeConfigHandlers(publicKey, allowedOrigin string) *StripeConfigHandlers {
	return &StripeConfigHandlers{
		publicKey: strings.TrimSpace(publicKey),
		cors:      newCORSPolicy(allowedOrigin),
	}
}

// Routes registers the function.
func (h *StripeConfigHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.HandleFunc("/stripe-config", h.serve)
}

type stripeConfigResponse struct {
	PublicKey string `json:"publicKey"`
}

func (h *StripeConfigHandlers) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.cors.preflight(w, stripeConfigMethods)
		return
	}
	h.cors.apply(w, stripeConfigMethods)
	if r.Method != http.MethodGet {
		httpx.WriteError(r.Context(), w, httpx.NewError("Method Not Allowed", "", http.StatusMethodNotAllowed))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stripeConfigResponse{PublicKey: h.publicKey})
}
