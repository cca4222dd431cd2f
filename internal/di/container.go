package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/muse-store/miniapp/internal/handlers"
	"github.com/muse-store/miniapp/internal/host"
	"github.com/muse-store/miniapp/internal/media"
	"github.com/muse-store/miniapp/internal/platform/auth"
	"github.com/muse-store/miniapp/internal/platform/config"
	pfirestore "github.com/muse-store/miniapp/internal/platform/firestore"
	"github.com/muse-store/miniapp/internal/platform/gemini"
	"github.com/muse-store/miniapp/internal/platform/idempotency"
	"github.com/muse-store/miniapp/internal/platform/jobs"
	"github.com/muse-store/miniapp/internal/platform/observability"
	"github.com/muse-store/miniapp/internal/platform/storage"
	"github.com/muse-store/miniapp/internal/repositories"
	firestorerepo "github.com/muse-store/miniapp/internal/repositories/firestore"
	"github.com/muse-store/miniapp/internal/repositories/memory"
	"github.com/muse-store/miniapp/internal/services"
)

// Container wires repositories, services, and transport for runtime use.
type Container struct {
	Config   config.Config
	Sessions *services.SessionRegistry
	Reviews  *services.ReviewService
	Health   repositories.HealthRepository
	Router   http.Handler

	closers []func(context.Context) error
}

// Options tune container construction.
type Options struct {
	Logger *zap.Logger

	// ServeContext bounds long-lived websocket host channels.
	ServeContext context.Context
}

// NewContainer constructs the runtime dependencies from configuration. Optional collaborators
// (Firestore, Cloud Storage, Pub/Sub, the AI client) are only created when configured.
func NewContainer(ctx context.Context, cfg config.Config, opts Options) (_ *Container, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	var probes []repositories.DependencyProbe

	seed, seedReviews, err := memory.Seed()
	if err != nil {
		return nil, fmt.Errorf("load seed catalog: %w", err)
	}
	var (
		catalog repositories.CatalogRepository
		reviews repositories.ReviewRepository
	)
	switch cfg.Store.CatalogSource {
	case config.CatalogSourceFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.closers = append(c.closers, provider.Close)
		catalogRepo, err := firestorerepo.NewCatalogRepository(provider)
		if err != nil {
			return nil, fmt.Errorf("build firestore catalog: %w", err)
		}
		if count, err := catalogRepo.HeroCount(ctx); err == nil && count == 0 {
			if err := catalogRepo.Import(ctx, seed); err != nil {
				return nil, fmt.Errorf("import seed catalog: %w", err)
			}
			logger.Info("seed catalog imported into firestore", zap.Int("products", len(seed.Products)))
		}
		reviewRepo, err := firestorerepo.NewReviewRepository(provider)
		if err != nil {
			return nil, fmt.Errorf("build firestore reviews: %w", err)
		}
		catalog, reviews = catalogRepo, reviewRepo
		probes = append(probes, repositories.DependencyProbe{Name: "firestore", Check: provider.Ping})
	default:
		catalog = memory.NewCatalogRepository(seed)
		reviews = memory.NewReviewRepository(seedReviews)
	}

	template := services.StorefrontDeps{
		Catalog:     catalog,
		Decoder:     media.NewDecoder(cfg.AI.MaxImageBytes),
		Fetcher:     media.NewFetcher(media.WithMaxBytes(cfg.AI.MaxImageBytes)),
		Payments:    services.SimulatedPaymentProcessor{Delay: cfg.Checkout.SimulatedDelay},
		ShippingFee: cfg.Store.ShippingFee,
		Currency:    cfg.Store.CurrencySymbol,
		Logger:      services.Logger(observability.ServiceLogger(logger, "storefront")),
	}

	if cfg.AI.Enabled() {
		client, err := gemini.NewClient(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("build gemini client: %w", err)
		}
		template.Chat = client
		template.Editor = client
	} else {
		logger.Warn("ai collaborators disabled; generation and chat return unavailable")
	}

	if bucket := strings.TrimSpace(cfg.Storage.MediaBucket); bucket != "" {
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		var storeOpts []storage.MediaStoreOption
		if base := strings.TrimSpace(cfg.Storage.PublicBaseURL); base != "" {
			storeOpts = append(storeOpts, storage.WithPublicBaseURL(base))
		}
		store, err := storage.NewMediaStore(client, bucket, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("build media store: %w", err)
		}
		template.Store = store
	}

	if topicID := strings.TrimSpace(cfg.PubSub.MediaTopic); topicID != "" {
		if cfg.PubSub.ProjectID == "" {
			return nil, errors.New("pubsub media topic requires a project id")
		}
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		topic := client.Topic(topicID)
		c.closers = append(c.closers, func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		publisher, err := jobs.NewPubSubMediaEventPublisher(topic)
		if err != nil {
			return nil, err
		}
		template.Publisher = publisher
	}

	registry, err := services.NewSessionRegistry(services.SessionRegistryDeps{
		Template:      template,
		Hosts:         func() services.SessionHost { return host.NewRemote() },
		AdminUserIDs:  cfg.Telegram.AdminUserIDs,
		AllowAllAdmin: cfg.IsLocal() && len(cfg.Telegram.AdminUserIDs) == 0,
		Logger:        services.Logger(observability.ServiceLogger(logger, "sessions")),
	})
	if err != nil {
		return nil, fmt.Errorf("build session registry: %w", err)
	}
	c.Sessions = registry

	reviewService, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews: reviews,
		Catalog: catalog,
		Logger:  services.Logger(observability.ServiceLogger(logger, "reviews")),
	})
	if err != nil {
		return nil, fmt.Errorf("build review service: %w", err)
	}
	c.Reviews = reviewService

	health, err := repositories.NewProbeHealthRepository(probes)
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	c.Health = health

	router, err := c.buildRouter(opts.ServeContext, logger)
	if err != nil {
		return nil, err
	}
	c.Router = router
	return c, nil
}

func (c *Container) buildRouter(serveCtx context.Context, logger *zap.Logger) (http.Handler, error) {
	cfg := c.Config
	signingKey := cfg.Session.SigningKey
	if signingKey == "" && cfg.IsLocal() {
		signingKey = "local-development-signing-key"
		logger.Warn("session signing key not set; using the local development key")
	}
	tokens, err := auth.NewSessionTokens(signingKey, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("build session tokens: %w", err)
	}

	verifierOpts := []auth.InitDataOption{auth.WithInitDataMaxAge(cfg.Telegram.InitDataMaxAge)}
	if cfg.Telegram.BotToken == "" && cfg.IsLocal() {
		verifierOpts = append(verifierOpts, auth.WithUnsignedInitData())
		logger.Warn("telegram bot token not set; accepting unsigned init data")
	}
	verifier := auth.NewInitDataVerifier(cfg.Telegram.BotToken, verifierOpts...)

	sessionHandlers := handlers.NewSessionHandlers(handlers.SessionHandlerDeps{
		Verifier:            verifier,
		Tokens:              tokens,
		Parser:              tokens,
		Sessions:            c.Sessions,
		Currency:            cfg.Store.CurrencySymbol,
		GenerationPerMinute: cfg.RateLimits.GenerationPerMinute,
		ChatPerMinute:       cfg.RateLimits.ChatPerMinute,
		AllowedOrigins:      cfg.Server.AllowedOrigins,
		Replays:             idempotency.NewMemoryStore(),
		ServeContext:        serveCtx,
	})
	catalogHandlers := handlers.NewCatalogHandlers(tokens, c.Sessions, c.Reviews, cfg.Store.CurrencySymbol)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(c.Health),
		handlers.WithHealthEnvironment(cfg.Environment),
	)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithSessionRoutes(sessionHandlers.Routes))
	opts = append(opts, handlers.WithCatalogRoutes(catalogHandlers.Routes))
	return handlers.NewRouter(opts...), nil
}

// Close releases cloud clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
