package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sifrokapp/sifrok/internal/config"
	"github.com/sifrokapp/sifrok/internal/handlers"
)

// designWriteTimeout bounds design generation requests, which outlive the
// default write timeout.
const designWriteTimeout = 10 * time.Minute

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.buildRouter(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	r.NotFoundHandler = jsonStatusHandler(http.StatusNotFound, "not found")
	r.MethodNotAllowedHandler = jsonStatusHandler(http.StatusMethodNotAllowed, "method not allowed")

	api := r.PathPrefix("/api/admin").Subrouter()
	api.Use(h.RequireAdmin)
	api.Use(h.RequireSameOrigin)

	api.HandleFunc("/orders", h.ListOrders).Methods("GET").Name("admin.orders.list")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("admin.orders.get")
	api.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods("PATCH").Name("admin.orders.status")
	api.HandleFunc("/orders/{id}/profit", h.CalculateOrderProfit).Methods("POST").Name("admin.orders.profit")
	api.HandleFunc("/orders/{id}/refund", h.RefundOrder).Methods("POST").Name("admin.orders.refund")
	api.HandleFunc("/orders/{id}/payment", h.PaymentDetails).Methods("GET").Name("admin.orders.payment")
	api.HandleFunc("/orders/{id}/payment/verify", h.VerifyPayment).Methods("GET").Name("admin.orders.payment.verify")
	api.HandleFunc("/orders/{id}/fulfillment", h.SubmitFulfillment).Methods("POST").Name("admin.orders.fulfillment.submit")
	api.HandleFunc("/orders/{id}/fulfillment/sync", h.SyncFulfillment).Methods("POST").Name("admin.orders.fulfillment.sync")
	api.HandleFunc("/orders/{id}/fulfillment", h.CancelFulfillment).Methods("DELETE").Name("admin.orders.fulfillment.cancel")

	api.HandleFunc("/stats", h.Stats).Methods("GET").Name("admin.stats")
	api.HandleFunc("/stats/profitability", h.ProfitabilityStats).Methods("GET").Name("admin.stats.profitability")
	api.HandleFunc("/export", h.Export).Methods("GET").Name("admin.export")
	api.HandleFunc("/webhook-logs", h.WebhookLogs).Methods("GET").Name("admin.webhook_logs")
	api.HandleFunc("/pricing/preview", h.PricingPreview).Methods("GET").Name("admin.pricing.preview")

	api.HandleFunc("/mappings", h.ListMappings).Methods("GET").Name("admin.mappings.list")
	api.HandleFunc("/mappings", h.CreateMapping).Methods("POST").Name("admin.mappings.create")
	api.HandleFunc("/mappings/sync-prices", h.SyncMappingPrices).Methods("POST").Name("admin.mappings.sync_prices")
	api.HandleFunc("/mappings/by-local/{localID}", h.GetMappingByLocalID).Methods("GET").Name("admin.mappings.by_local")
	api.HandleFunc("/mappings/{id}", h.GetMapping).Methods("GET").Name("admin.mappings.get")
	api.HandleFunc("/mappings/{id}", h.UpdateMapping).Methods("PATCH").Name("admin.mappings.update")
	api.HandleFunc("/mappings/{id}", h.DeleteMapping).Methods("DELETE").Name("admin.mappings.delete")

	api.HandleFunc("/promotions", h.ListPromotions).Methods("GET").Name("admin.promotions.list")
	api.HandleFunc("/promotions", h.CreatePromotion).Methods("POST").Name("admin.promotions.create")
	api.HandleFunc("/promotions/{id}", h.UpdatePromotion).Methods("PUT").Name("admin.promotions.update")
	api.HandleFunc("/promotions/{id}", h.DeletePromotion).Methods("DELETE").Name("admin.promotions.delete")
	api.HandleFunc("/promotions/{id}/redeem", h.RedeemPromotion).Methods("POST").Name("admin.promotions.redeem")
	api.HandleFunc("/promotions/{id}/quote", h.QuotePromotion).Methods("POST").Name("admin.promotions.quote")

	designRouter := api.PathPrefix("/design").Subrouter()
	designRouter.Use(h.ExtendWriteDeadline(designWriteTimeout))
	designRouter.HandleFunc("/templates", h.DesignTemplates).Methods("GET").Name("admin.design.templates")
	designRouter.HandleFunc("/generate", h.GenerateDesign).Methods("POST").Name("admin.design.generate")
	designRouter.HandleFunc("/batch", h.GenerateDesignBatch).Methods("POST").Name("admin.design.batch")
	designRouter.HandleFunc("/enhance", h.EnhancePrompt).Methods("POST").Name("admin.design.enhance")
	designRouter.HandleFunc("/validate", h.ValidateDesignImage).Methods("POST").Name("admin.design.validate")
	designRouter.HandleFunc("/ideas", h.GenerateIdeas).Methods("POST").Name("admin.design.ideas")
	designRouter.HandleFunc("/models", h.DesignModels).Methods("GET").Name("admin.design.models")
	designRouter.HandleFunc("/remove-background", h.RemoveBackground).Methods("POST").Name("admin.design.remove_background")
	designRouter.HandleFunc("/edit", h.EditDesign).Methods("POST").Name("admin.design.edit")

	return r
}

func jsonStatusHandler(status int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
	})
}
