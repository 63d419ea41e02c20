package handlers

import (
	"net/http"
	"strings"
)

const defaultAllowedOrigin = "*"

// corsPolicy decorates every storefront function response, errors included.
type corsPolicy struct {
	origin  string
	headers string
}

func newCORSPolicy(origin string) corsPolicy {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = defaultAllowedOrigin
	}
	return corsPolicy{origin: origin, headers: "Content-Type, Idempotency-Key"}
}

func (p corsPolicy) apply(w http.ResponseWriter, methods ...string) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", p.origin)
	h.Set("Access-Control-Allow-Headers", p.headers)
	h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	if p.origin != defaultAllowedOrigin {
		h.Add("Vary", "Origin")
	}
}

// preflight answers OPTIONS with 200 and an empty body.
func (p corsPolicy) preflight(w http.ResponseWriter, methods ...string) {
	p.apply(w, methods...)
	w.WriteHeader(http.StatusOK)
}
