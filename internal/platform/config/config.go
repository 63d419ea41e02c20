package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultEnvironment      = "local"
	defaultPSPTimeout       = 10 * time.Second
	defaultCatalogSource    = "embedded"
	defaultAllowedOrigin    = "*"
	defaultPaymentRateLimit = 30
	defaultEventsSink       = "log"
	defaultEventsQueue      = "storefront_payments"
	defaultEventsPoolSize   = 4
	defaultMaxBodyBytes     = 16 * 1024
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	GCP         GCPConfig
	PSP         PSPConfig
	Catalog     CatalogConfig
	CORS        CORSConfig
	RateLimits  RateLimitConfig
	Events      EventsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

// GCPConfig stores the Google Cloud project used for secrets, trace and optional catalog/event backends.
type GCPConfig struct {
	ProjectID       string
	CredentialsFile string
}

// PSPConfig collects payment processor credentials and call policy.
type PSPConfig struct {
	StripeSecretKey      string
	StripePublishableKey string
	Timeout              time.Duration
}

// CatalogConfig selects where the package catalog is loaded from at startup.
type CatalogConfig struct {
	Source string
}

// CORSConfig controls the cross-origin headers attached to every function response.
type CORSConfig struct {
	AllowedOrigin string
}

// RateLimitConfig controls request throttling of payment intent creation.
type RateLimitConfig struct {
	PaymentPerMinute int
}

// EventsConfig selects the sink for checkout notifications.
type EventsConfig struct {
	Sink     string
	Queue    string
	PoolSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets are empty after resolution.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed secret identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.names))
	copy(out, e.names)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "PSP.StripeSecretKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func defaultOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// EnvironmentValues returns the effective key/value environment after applying the same
// precedence as Load (dotenv < OS env < explicit env map), so callers can build
// dependencies such as the secret fetcher before loading.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := defaultOptions(opts)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnvValues))
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the configuration from defaults, .env overrides, environment variables
// and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions(opts)
	if options.secret == nil {
		options.secret = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		})
	}

	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, defaultEnvironment, "STOREFRONT_ENVIRONMENT")),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, defaultPort, "STOREFRONT_SERVER_PORT", "PORT"),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			MaxBodyBytes: int64(intWithDefault(lookup, "STOREFRONT_SERVER_MAX_BODY_BYTES", defaultMaxBodyBytes)),
		},
		GCP: GCPConfig{
			ProjectID:       stringWithDefault(lookup, "", "STOREFRONT_GCP_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
			CredentialsFile: stringWithDefault(lookup, "", "STOREFRONT_GCP_CREDENTIALS_FILE"),
		},
		PSP: PSPConfig{
			StripeSecretKey:      stringWithDefault(lookup, "", "STOREFRONT_PSP_STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY"),
			StripePublishableKey: stringWithDefault(lookup, "", "STOREFRONT_PSP_STRIPE_PUBLISHABLE_KEY", "VITE_STRIPE_PUBLIC_KEY", "TESTING_VITE_STRIPE_PUBLIC_KEY"),
			Timeout:              durationWithDefault(lookup, "STOREFRONT_PSP_TIMEOUT", defaultPSPTimeout),
		},
		Catalog: CatalogConfig{
			Source: stringWithDefault(lookup, defaultCatalogSource, "STOREFRONT_CATALOG_SOURCE"),
		},
		CORS: CORSConfig{
			AllowedOrigin: stringWithDefault(lookup, defaultAllowedOrigin, "STOREFRONT_CORS_ALLOWED_ORIGIN"),
		},
		RateLimits: RateLimitConfig{
			PaymentPerMinute: intWithDefault(lookup, "STOREFRONT_RATELIMIT_PAYMENT_PER_MIN", defaultPaymentRateLimit),
		},
		Events: EventsConfig{
			Sink:     stringWithDefault(lookup, defaultEventsSink, "STOREFRONT_EVENTS_SINK"),
			Queue:    stringWithDefault(lookup, defaultEventsQueue, "STOREFRONT_EVENTS_QUEUE"),
			PoolSize: intWithDefault(lookup, "STOREFRONT_EVENTS_POOL_SIZE", defaultEventsPoolSize),
		},
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeSecretKey", &cfg.PSP.StripeSecretKey},
		{"PSP.StripePublishableKey", &cfg.PSP.StripePublishableKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = strings.TrimSpace(value)
		resolved[target.name] = *target.field
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		var secretErr *SecretError
		if errors.As(err, &secretErr) {
			return "", err
		}
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	} else if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port <= 0 || port > 65535 {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		invalid = append(invalid, "Server.MaxBodyBytes")
	}
	if cfg.PSP.Timeout <= 0 {
		invalid = append(invalid, "PSP.Timeout")
	}
	if strings.TrimSpace(cfg.CORS.AllowedOrigin) == "" {
		invalid = append(invalid, "CORS.AllowedOrigin")
	}
	if cfg.RateLimits.PaymentPerMinute < 0 {
		invalid = append(invalid, "RateLimits.PaymentPerMinute")
	}
	if cfg.Events.PoolSize <= 0 {
		invalid = append(invalid, "Events.PoolSize")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if strings.TrimSpace(resolved[trimmed]) == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

// stringWithDefault returns the first non-empty value among keys.
func stringWithDefault(lookup func(string) (string, bool), fallback string, keys ...string) string {
	for _, key := range keys {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
