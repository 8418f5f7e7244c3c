package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/sifrokapp/sifrok/internal/auth"
	"github.com/sifrokapp/sifrok/internal/cache"
	"github.com/sifrokapp/sifrok/internal/config"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/services"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

type pinger interface {
	Ping(ctx context.Context) error
}

type stripeEventHandler interface {
	Handle(ctx context.Context, event *stripeapi.Event) error
}

type webhookLogStore interface {
	Create(ctx context.Context, entry *models.WebhookLog) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) error
	ListRecent(ctx context.Context, source string, limit int) ([]*models.WebhookLog, error)
}

// Handlers serves the admin API and the payment processor webhook.
type Handlers struct {
	config        *config.Config
	db            pinger
	cacheProvider cache.Provider
	stripeRouter  stripeEventHandler
	webhookLogs   webhookLogStore
	tokens        *auth.Issuer
	orders        *services.OrderService
	profit        *services.ProfitService
	refunds       *services.RefundService
	fulfillment   *services.FulfillmentService
	mappings      *services.MappingService
	promotions    *services.PromotionService
	stats         *services.StatsService
	exports       *services.ExportService
	designs       *services.DesignService
	studio        *services.StudioService
	logger        *slog.Logger
}

type Dependencies struct {
	Config             *config.Config
	DB                 pinger
	CacheProvider      cache.Provider
	StripeRouter       stripeEventHandler
	WebhookLogs        webhookLogStore
	Tokens             *auth.Issuer
	OrderService       *services.OrderService
	ProfitService      *services.ProfitService
	RefundService      *services.RefundService
	FulfillmentService *services.FulfillmentService
	MappingService     *services.MappingService
	PromotionService   *services.PromotionService
	StatsService       *services.StatsService
	ExportService      *services.ExportService
	DesignService      *services.DesignService
	StudioService      *services.StudioService
	Logger             *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}
	if deps.WebhookLogs == nil {
		return nil, fmt.Errorf("handlers dependencies: webhookLogs is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("handlers dependencies: tokens is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.ProfitService == nil {
		return nil, fmt.Errorf("handlers dependencies: profitService is required")
	}
	if deps.RefundService == nil {
		return nil, fmt.Errorf("handlers dependencies: refundService is required")
	}
	if deps.FulfillmentService == nil {
		return nil, fmt.Errorf("handlers dependencies: fulfillmentService is required")
	}
	if deps.MappingService == nil {
		return nil, fmt.Errorf("handlers dependencies: mappingService is required")
	}
	if deps.PromotionService == nil {
		return nil, fmt.Errorf("handlers dependencies: promotionService is required")
	}
	if deps.StatsService == nil {
		return nil, fmt.Errorf("handlers dependencies: statsService is required")
	}
	if deps.ExportService == nil {
		return nil, fmt.Errorf("handlers dependencies: exportService is required")
	}
	if deps.DesignService == nil {
		return nil, fmt.Errorf("handlers dependencies: designService is required")
	}
	if deps.StudioService == nil {
		return nil, fmt.Errorf("handlers dependencies: studioService is required")
	}

	return &Handlers{
		config:        deps.Config,
		db:            deps.DB,
		cacheProvider: deps.CacheProvider,
		stripeRouter:  deps.StripeRouter,
		webhookLogs:   deps.WebhookLogs,
		tokens:        deps.Tokens,
		orders:        deps.OrderService,
		profit:        deps.ProfitService,
		refunds:       deps.RefundService,
		fulfillment:   deps.FulfillmentService,
		mappings:      deps.MappingService,
		promotions:    deps.PromotionService,
		stats:         deps.StatsService,
		exports:       deps.ExportService,
		designs:       deps.DesignService,
		studio:        deps.StudioService,
		logger:        logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unhealthy")
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
