package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/velvette/api/internal/di"
	"github.com/velvette/api/internal/handlers"
	"github.com/velvette/api/internal/payments"
	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/platform/config"
	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/platform/idempotency"
	"github.com/velvette/api/internal/platform/jobs"
	"github.com/velvette/api/internal/platform/observability"
	"github.com/velvette/api/internal/platform/secrets"
	platformstorage "github.com/velvette/api/internal/platform/storage"
	"github.com/velvette/api/internal/repositories"
	firestoreRepo "github.com/velvette/api/internal/repositories/firestore"
	"github.com/velvette/api/internal/repositories/sqlite"
	"github.com/velvette/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
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

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	extraChecks := make([]repositories.DependencyCheck, 0, 2)

	var orderPublisher services.OrderEventPublisher
	if topicName := strings.TrimSpace(cfg.Events.OrderEventTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicName)
		orderPublisher, err = jobs.NewPubSubOrderPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("pubsub topic %q not found", topicName)
				}
				return nil
			},
		})
	} else {
		logger.Warn("order event topic not configured; order events disabled")
	}

	var galleryStorage services.GalleryStorage
	if bucketName := strings.TrimSpace(cfg.Storage.GalleryBucket); bucketName != "" {
		credentialsFile := strings.TrimSpace(cfg.Firebase.CredentialsFile)
		if credentialsFile == "" {
			logger.Warn("gallery bucket configured without signing credentials; gallery disabled")
		} else {
			signer, err := platformstorage.NewServiceAccountSignerFromFile(credentialsFile)
			if err != nil {
				logger.Fatal("failed to load storage signer credentials", zap.Error(err))
			}
			signingClient, err := platformstorage.NewClient(signer)
			if err != nil {
				logger.Fatal("failed to initialise signed url client", zap.Error(err))
			}
			gcsClient, err := cloudstorage.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
			if err != nil {
				logger.Fatal("failed to initialise storage client", zap.Error(err))
			}
			defer func() {
				if err := gcsClient.Close(); err != nil {
					logger.Warn("storage close error", zap.Error(err))
				}
			}()
			bucket, err := platformstorage.NewBucket(signingClient, gcsClient, bucketName, cfg.Storage.SignedURLTTL)
			if err != nil {
				logger.Fatal("failed to initialise gallery bucket", zap.Error(err))
			}
			galleryStorage = bucket
			extraChecks = append(extraChecks, repositories.DependencyCheck{
				Name:    "storage",
				Timeout: 2 * time.Second,
				Check: func(ctx context.Context) error {
					_, err := gcsClient.Bucket(bucketName).Attrs(ctx)
					return err
				},
			})
		}
	}

	registry, err := firestoreRepo.NewRegistry(firestoreRepo.RegistryDeps{
		Provider:    firestoreProvider,
		ExtraChecks: extraChecks,
	})
	if err != nil {
		logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
	}

	guestDB, err := sqlite.Open(cfg.GuestStore.Path)
	if err != nil {
		logger.Fatal("failed to open guest cart store", zap.Error(err), zap.String("path", cfg.GuestStore.Path))
	}
	defer func() {
		if err := guestDB.Close(); err != nil {
			logger.Warn("guest cart store close error", zap.Error(err))
		}
	}()
	guestStore, err := sqlite.NewGuestCartStore(guestDB)
	if err != nil {
		logger.Fatal("failed to initialise guest cart store", zap.Error(err))
	}

	outbox, err := services.NewCartSyncOutbox(services.CartSyncOutboxDeps{
		Remote:        registry.Carts(),
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		BaseBackoff:   cfg.Outbox.BaseBackoff,
		MaxBackoff:    cfg.Outbox.MaxBackoff,
		DrainInterval: cfg.Outbox.DrainInterval,
		Clock:         time.Now,
		Logger:        zapLoggerFunc(logger.Named("cart_sync")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart sync outbox", zap.Error(err))
	}

	outboxCtx, outboxCancel := context.WithCancel(context.Background())
	var outboxWG sync.WaitGroup
	outboxWG.Add(1)
	go func() {
		defer outboxWG.Done()
		outbox.Run(outboxCtx)
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	var intentCreator services.PaymentIntentCreator
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		creator, err := payments.NewStripeIntentCreator(payments.StripeIntentCreatorConfig{
			APIKey: cfg.Stripe.APIKey,
			Logger: zapLoggerFunc(logger.Named("payments")),
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe intent creator", zap.Error(err))
		}
		intentCreator = creator
	} else {
		logger.Warn("stripe api key not configured; online payment disabled")
	}

	container, err := di.NewContainer(di.ContainerDeps{
		Config:     cfg,
		Registry:   registry,
		GuestStore: guestStore,
		Sync:       outbox,
		Payments:   intentCreator,
		Events:     orderPublisher,
		Firebase:   firebaseVerifier,
		Storage:    galleryStorage,
		Build:      buildInfo,
		Clock:      time.Now,
		Logger:     zapLoggerFunc(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithTTL(24*time.Hour),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), 256)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	healthHandlers := handlers.NewHealthHandlers(container.Services.System)
	publicHandlers := handlers.NewPublicCatalogHandlers(container.Services.Catalog)
	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart, container.Services.Catalog)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	meHandlers := handlers.NewMeHandlers(authenticator, container.Services.Users)
	adminHandlers := handlers.NewAdminHandlers(container.Services.Orders, container.Services.Users)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(container.Services.Catalog)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(func(r chi.Router) {
			r.Use(idempotencyMiddleware)
			orderHandlers.Routes(r)
		}),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			adminHandlers.Routes(r)
			adminCatalogHandlers.Routes(r)
		}),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin)),
	}
	if container.Services.Gallery != nil {
		galleryHandlers := handlers.NewGalleryHandlers(authenticator, container.Services.Gallery)
		opts = append(opts, handlers.WithGalleryRoutes(galleryHandlers.Routes))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("velvette api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// Give the outbox a final drain before stopping it.
	outboxCancel()
	outboxWG.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := container.Close(closeCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

// zapLoggerFunc adapts a zap logger to the map-based event logger the services accept.
func zapLoggerFunc(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STORE_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("STORE_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("STORE_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("STORE_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("STORE_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("STORE_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames marks the Stripe key as mandatory whenever one is
// configured at all, so a secret reference that resolves to an empty string
// fails startup instead of silently disabling online payment.
func requiredSecretNames(env map[string]string) []string {
	if env == nil {
		return nil
	}
	if strings.TrimSpace(env["STORE_STRIPE_API_KEY"]) == "" {
		return nil
	}
	return []string{"Stripe.APIKey"}
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["STORE_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}
