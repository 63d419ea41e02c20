package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/wantinglittle/patches/internal/catalog"
	"github.com/wantinglittle/patches/internal/events"
	"github.com/wantinglittle/patches/internal/handlers"
	"github.com/wantinglittle/patches/internal/payments"
	"github.com/wantinglittle/patches/internal/platform/config"
	pfirestore "github.com/wantinglittle/patches/internal/platform/firestore"
	"github.com/wantinglittle/patches/internal/platform/observability"
	"github.com/wantinglittle/patches/internal/platform/secrets"
	platformstorage "github.com/wantinglittle/patches/internal/platform/storage"
	"github.com/wantinglittle/patches/internal/pricing"
)

const (
	shutdownTimeout    = 10 * time.Second
	dispatchWorkers    = 2
	catalogLoadTimeout = 30 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger("storefront")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	clientOpts := gcpClientOptions(cfg)

	loadCtx, cancelLoad := context.WithTimeout(ctx, catalogLoadTimeout)
	sources, closeSources, err := catalogSources(loadCtx, cfg, clientOpts)
	if err != nil {
		cancelLoad()
		logger.Fatal("failed to initialise catalog source", zap.String("source", cfg.Catalog.Source), zap.Error(err))
	}
	cat, err := catalog.Load(loadCtx, cfg.Catalog.Source, sources)
	cancelLoad()
	closeSources()
	if err != nil {
		logger.Fatal("failed to load catalog", zap.String("source", cfg.Catalog.Source), zap.Error(err))
	}
	logger.Info("catalog loaded",
		zap.String("version", cat.Version()),
		zap.Strings("packages", cat.IDs()),
	)
	validator := pricing.NewValidator(cat)

	var provider payments.Provider
	if cfg.PSP.StripeSecretKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeSecretKey,
			Logger: observability.EventLogger(logger.Named("stripe"), "stripe"),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		provider = stripeProvider
	} else {
		logger.Warn("stripe secret key not configured; payment intents will fail")
	}
	adapter := payments.NewAdapter(provider,
		payments.WithAttemptTimeout(cfg.PSP.Timeout),
		payments.WithLogger(observability.EventLogger(logger.Named("payments"), "payments")),
	)

	sink, err := events.OpenSink(ctx, events.SinkConfig{
		Sink:          cfg.Events.Sink,
		Queue:         cfg.Events.Queue,
		PoolSize:      cfg.Events.PoolSize,
		Logger:        logger,
		PubSubOptions: clientOpts,
	})
	if err != nil {
		logger.Fatal("failed to open event sink", zap.Error(err))
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("event sink close error", zap.Error(err))
		}
	}()
	dispatcher := events.NewDispatcher(sink.Publisher, dispatchWorkers,
		events.WithDispatchLogger(observability.EventLogger(logger.Named("events"), "event dispatch")),
	)
	logger.Info("event sink ready", zap.String("kind", sink.Kind))

	paymentHandlers := handlers.NewPaymentIntentHandlers(validator, adapter,
		handlers.WithPaymentPublisher(dispatcher),
		handlers.WithPaymentRateLimit(cfg.RateLimits.PaymentPerMinute, nil),
		handlers.WithPaymentAllowedOrigin(cfg.CORS.AllowedOrigin),
		handlers.WithPaymentMaxBody(cfg.Server.MaxBodyBytes),
	)
	stripeConfigHandlers := handlers.NewStripeConfigHandlers(cfg.PSP.StripePublishableKey, cfg.CORS.AllowedOrigin)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithReadinessChecks(readinessChecks(cat, cfg)...),
	)

	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(cfg.GCP.ProjectID),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithFunctionRoutes(paymentHandlers.Routes),
		handlers.WithFunctionRoutes(stripeConfigHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		serverLogger.Info("storefront listening", zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if derr := dispatcher.Close(shutdownCtx); derr != nil {
			logger.Warn("event dispatcher did not drain", zap.Error(derr))
		}
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("storefront stopped with error", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := envLookup(env)

	defaultProject := firstNonEmpty(
		lookup("STOREFRONT_SECRET_DEFAULT_PROJECT_ID"),
		lookup("STOREFRONT_GCP_PROJECT_ID"),
		lookup("GOOGLE_CLOUD_PROJECT"),
	)
	fallbackPath := lookup("STOREFRONT_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("STOREFRONT_GCP_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames makes the Stripe secret key mandatory outside local development.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(envLookup(env)("STOREFRONT_ENVIRONMENT")) {
	case "", "local", "dev", "test":
		return nil
	default:
		return []string{"PSP.StripeSecretKey"}
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	lookup := envLookup(env)
	version := lookup("STOREFRONT_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookup("STOREFRONT_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func gcpClientOptions(cfg config.Config) []option.ClientOption {
	if cfg.GCP.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GCP.CredentialsFile)}
}

// catalogSources opens only the backend the configured catalog source needs. The returned
// close function is always safe to call.
func catalogSources(ctx context.Context, cfg config.Config, clientOpts []option.ClientOption) (catalog.Sources, func(), error) {
	source := strings.TrimSpace(cfg.Catalog.Source)
	noop := func() {}

	switch {
	case strings.HasPrefix(source, "gs://"):
		client, err := cloudstorage.NewClient(ctx, clientOpts...)
		if err != nil {
			return catalog.Sources{}, noop, fmt.Errorf("storage client: %w", err)
		}
		reader, err := platformstorage.NewReader(client)
		if err != nil {
			_ = client.Close()
			return catalog.Sources{}, noop, err
		}
		return catalog.Sources{Objects: reader}, func() { _ = client.Close() }, nil
	case strings.HasPrefix(source, "firestore://"):
		if cfg.GCP.ProjectID == "" {
			return catalog.Sources{}, noop, errors.New("firestore catalog requires STOREFRONT_GCP_PROJECT_ID")
		}
		provider := pfirestore.NewProvider(cfg.GCP.ProjectID, pfirestore.WithClientOptions(clientOpts...))
		return catalog.Sources{Documents: catalog.NewFirestoreSource(provider)}, func() { _ = provider.Close() }, nil
	default:
		return catalog.Sources{}, noop, nil
	}
}

func readinessChecks(cat *catalog.Catalog, cfg config.Config) []handlers.ReadinessCheck {
	return []handlers.ReadinessCheck{
		{
			Name: "catalog",
			Check: func(context.Context) error {
				if cat == nil || cat.Len() == 0 {
					return errors.New("catalog is empty")
				}
				return nil
			},
		},
		{
			Name: "stripe",
			Check: func(context.Context) error {
				if cfg.PSP.StripeSecretKey == "" {
					return errors.New("secret key not configured")
				}
				return nil
			},
		},
	}
}

func envLookup(env map[string]string) func(string) string {
	return func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
