package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wantinglittle/patches/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	functions        []RouteRegistrar
	functionPrefixes []string
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	// NetlifyFunctionsPrefix is where the storefront's browser code calls the functions.
	NetlifyFunctionsPrefix = "/.netlify/functions"

	defaultTimeout    = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware, health probes and the
// storefront functions mounted at the root and under every configured prefix.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		functionPrefixes: []string{NetlifyFunctionsPrefix},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	register := func(group chi.Router) {
		for _, registrar := range cfg.functions {
			if registrar != nil {
				registrar(group)
			}
		}
	}
	register(r)
	for _, prefix := range cfg.functionPrefixes {
		if prefix == "" || prefix == "/" {
			continue
		}
		r.Route(prefix, register)
	}

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithFunctionRoutes adds a registrar for storefront function endpoints.
func WithFunctionRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.functions = append(cfg.functions, reg)
	}
}

// WithFunctionPrefixes replaces the extra path prefixes the functions are mounted under.
func WithFunctionPrefixes(prefixes ...string) Option {
	return func(cfg *routerConfig) {
		cfg.functionPrefixes = append([]string(nil), prefixes...)
	}
}
