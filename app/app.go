package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sifrokapp/sifrok/internal/auth"
	"github.com/sifrokapp/sifrok/internal/cache"
	"github.com/sifrokapp/sifrok/internal/catalog"
	"github.com/sifrokapp/sifrok/internal/config"
	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/design"
	"github.com/sifrokapp/sifrok/internal/gelato"
	"github.com/sifrokapp/sifrok/internal/handlers"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/observability"
	"github.com/sifrokapp/sifrok/internal/services"
	"github.com/sifrokapp/sifrok/internal/stripe"
)

const (
	vendorTimeout     = 30 * time.Second
	generationTimeout = 120 * time.Second
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
	flushSentry   func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flushSentry, err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
	})
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stdout, logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Sentry: cfg.SentryDSN != "",
	})

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		flushSentry()
		return nil, err
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		flushSentry()
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		flushSentry()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	productCatalog, err := catalog.Default()
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		flushSentry()
		return nil, fmt.Errorf("failed to load product catalog: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	mappingStore := db.NewProductMappingStore(database)
	promotionStore := db.NewPromotionStore(database)
	reportStore := db.NewReportStore(database)
	webhookLogStore := db.NewWebhookLogStore(database)

	stripeClient := stripe.NewClient(cfg.StripeSecretKey, observability.NewHTTPClient(vendorTimeout))
	gelatoClient := gelato.NewClient(gelato.Config{
		APIKey:       cfg.GelatoAPIKey,
		StoreID:      cfg.GelatoStoreID,
		OrderURL:     cfg.GelatoOrderAPIURL,
		ProductURL:   cfg.GelatoProductAPIURL,
		EcommerceURL: cfg.GelatoEcommerceURL,
		HTTPClient:   observability.NewHTTPClient(vendorTimeout),
	})

	orderCache := services.NewOrderCache(cacheProvider, logger)
	fulfillmentService := services.NewFulfillmentService(orderStore, mappingStore, gelatoClient, webhookLogStore, orderCache, logger)
	webhookService := services.NewWebhookService(orderStore, fulfillmentService, orderCache, services.WebhookOptions{
		AutoSubmit:     cfg.FulfillmentAutoSubmit,
		DefaultCountry: cfg.DefaultShippingCountry,
	}, logger)
	stripeRouter := handlers.NewStripeEventRouter(webhookService, logger.With("component", "stripe_router"))

	h, err := handlers.New(handlers.Dependencies{
		Config:             cfg,
		DB:                 database,
		CacheProvider:      cacheProvider,
		StripeRouter:       stripeRouter,
		WebhookLogs:        webhookLogStore,
		Tokens:             auth.NewIssuer(cfg.AdminTokenSecret),
		OrderService:       services.NewOrderService(orderStore, orderCache, logger),
		ProfitService:      services.NewProfitService(orderStore, mappingStore, orderCache, logger),
		RefundService:      services.NewRefundService(orderStore, stripeClient, webhookLogStore, orderCache, logger),
		FulfillmentService: fulfillmentService,
		MappingService:     services.NewMappingService(mappingStore, gelatoClient, logger),
		PromotionService:   services.NewPromotionService(promotionStore, cfg.HardPromotionCap(), logger),
		StatsService:       services.NewStatsService(reportStore, orderStore, logger),
		ExportService:      services.NewExportService(orderStore, reportStore, logger),
		DesignService:      newDesignService(cfg, productCatalog, gelatoClient, logger),
		StudioService:      newStudioService(cfg, cacheProvider, logger),
		Logger:             logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		flushSentry()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
		flushSentry:   flushSentry,
	}, nil
}

// newDesignService wires the generation pipeline only when it is enabled.
// The catalog and image validation stay available either way.
func newDesignService(cfg *config.Config, productCatalog *catalog.Catalog, store *gelato.Client, logger *slog.Logger) *services.DesignService {
	validationClient := observability.NewHTTPClient(0)
	if !cfg.DesignPipelineEnabled {
		return services.NewDesignService(nil, nil, productCatalog, validationClient, logger)
	}

	openRouter := design.NewOpenRouter(design.OpenRouterConfig{
		APIKey:     cfg.OpenRouterAPIKey,
		ImageModel: cfg.OpenRouterImageModel,
		TextModel:  cfg.OpenRouterTextModel,
		Referer:    cfg.BaseURL,
		HTTPClient: observability.NewHTTPClient(generationTimeout),
	})
	imgur := design.NewImgur(design.ImgurConfig{
		ClientID:   cfg.ImgurClientID,
		HTTPClient: observability.NewHTTPClient(60 * time.Second),
	})
	pipeline := design.NewPipeline(design.PipelineConfig{
		Generator:     openRouter,
		Host:          imgur,
		Store:         store,
		Catalog:       productCatalog,
		BatchInterval: cfg.BatchGenerationInterval,
		Logger:        logger,
	})
	return services.NewDesignService(pipeline, openRouter, productCatalog, validationClient, logger)
}

// newStudioService enables idea generation when the router key is set and
// image edits when the replicate token is set.
func newStudioService(cfg *config.Config, cacheProvider cache.Provider, logger *slog.Logger) *services.StudioService {
	var (
		writer services.IdeaWriter
		editor services.ImageEditor
	)
	if cfg.OpenRouterAPIKey != "" {
		writer = design.NewOpenRouter(design.OpenRouterConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			TextModel:  cfg.OpenRouterTextModel,
			Referer:    cfg.BaseURL,
			Title:      "Sifrok - AI Design Ideas",
			HTTPClient: observability.NewHTTPClient(generationTimeout),
		})
	}
	if cfg.ReplicateAPIToken != "" {
		editor = design.NewReplicate(design.ReplicateConfig{
			APIToken:   cfg.ReplicateAPIToken,
			HTTPClient: observability.NewHTTPClient(generationTimeout),
		})
	}
	return services.NewStudioService(writer, editor, cacheProvider, logger)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.flushSentry != nil {
		a.flushSentry()
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
