package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/observability"
	"github.com/sifrokapp/sifrok/internal/pricing"
	"github.com/sifrokapp/sifrok/internal/stripe"
)

const defaultCurrency = "eur"

type checkoutStore interface {
	UpsertCheckout(ctx context.Context, order *models.Order, items []models.OrderItem, feeFor func(totalCents int64) int64) (*db.CheckoutUpsert, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) error
}

type orderSubmitter interface {
	SubmitOrder(ctx context.Context, orderID uuid.UUID) (*SubmitResult, error)
}

type WebhookOptions struct {
	AutoSubmit     bool
	DefaultCountry string
}

// WebhookService reconciles local orders with payment processor events.
type WebhookService struct {
	orders    checkoutStore
	submitter orderSubmitter
	cache     *OrderCache
	options   WebhookOptions
	logger    *slog.Logger
}

func NewWebhookService(orders checkoutStore, submitter orderSubmitter, cache *OrderCache, options WebhookOptions, logger *slog.Logger) *WebhookService {
	if options.DefaultCountry == "" {
		options.DefaultCountry = "ES"
	}
	return &WebhookService{
		orders:    orders,
		submitter: submitter,
		cache:     cache,
		options:   options,
		logger:    componentLogger(logger, "webhook_service"),
	}
}

func (s *WebhookService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// HandleCheckoutSessionCompleted records the order for a paid checkout. A
// replayed session converges on the same row. Fulfillment submission failures
// are logged and never fail the event.
func (s *WebhookService) HandleCheckoutSessionCompleted(ctx context.Context, payload []byte) error {
	span := sentry.StartSpan(
		ctx,
		"service.webhook.checkout_completed",
		sentry.WithOpName("service.webhook"),
		sentry.WithDescription("HandleCheckoutSessionCompleted"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	session, err := stripe.ParseCheckoutSession(payload)
	if err != nil {
		return err
	}
	if session.ItemsErr != nil {
		logger.Warn("checkout items unreadable, creating order without items", "session_id", session.ID, "error", session.ItemsErr)
	}

	order, items := s.orderFromSession(session)
	result, err := s.orders.UpsertCheckout(ctx, order, items, pricing.StripeFee)
	if err != nil {
		return fmt.Errorf("failed to record checkout: %w", err)
	}
	s.cache.Invalidate(ctx)

	stored := result.Order
	switch {
	case result.Created:
		meter.Count("order.created", 1)
		logger.Info("order created from checkout", "order_id", stored.ID, "session_id", session.ID, "items", len(items))
	case !result.Paid:
		logger.Info("checkout replay ignored, order already past paid", "order_id", stored.ID, "status", stored.Status)
		span.Status = sentry.SpanStatusOK
		return nil
	default:
		logger.Info("existing order marked paid", "order_id", stored.ID, "session_id", session.ID)
	}

	if s.options.AutoSubmit && s.submitter != nil && stored.GelatoOrderID == "" {
		if _, err := s.submitter.SubmitOrder(ctx, stored.ID); err != nil {
			meter.Count("order.auto_submit.failed", 1)
			logger.Error("automatic fulfillment submission failed", "order_id", stored.ID, "error", err)
		}
	}

	span.Status = sentry.SpanStatusOK
	return nil
}

func (s *WebhookService) orderFromSession(session *stripe.CheckoutSession) (*models.Order, []models.OrderItem) {
	currency := session.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	country := strings.ToUpper(session.Shipping.Country)
	if country == "" {
		country = s.options.DefaultCountry
	}

	order := &models.Order{
		UserID:          session.UserID,
		StripeSessionID: session.ID,
		StripePaymentID: session.PaymentIntentID,
		TotalCents:      session.AmountTotal,
		Currency:        currency,
		Status:          models.StatusPaid,
		ShippingName:    session.Shipping.Name,
		ShippingEmail:   session.CustomerEmail,
		ShippingAddress: session.Shipping.Line1,
		ShippingCity:    session.Shipping.City,
		ShippingZipCode: session.Shipping.PostalCode,
		ShippingCountry: country,
	}

	items := make([]models.OrderItem, 0, len(session.Items))
	for _, item := range session.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		items = append(items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			Quantity:    quantity,
			PriceCents:  item.PriceCents(),
			Image:       item.Image,
		})
	}
	return order, items
}

// HandleCheckoutSessionExpired fails the pending order of an abandoned session.
func (s *WebhookService) HandleCheckoutSessionExpired(ctx context.Context, payload []byte) error {
	logger := s.loggerFromContext(ctx)

	session, err := stripe.ParseCheckoutSession(payload)
	if err != nil {
		return err
	}

	order, err := s.orders.GetBySessionID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			logger.Info("expired session has no order", "session_id", session.ID)
			return nil
		}
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order.Status != models.StatusPending {
		return nil
	}

	return s.transition(ctx, order, models.StatusFailed, "checkout.session.expired")
}

// HandlePaymentIntentSucceeded marks the order paid. Orders already paid or
// further along are left alone.
func (s *WebhookService) HandlePaymentIntentSucceeded(ctx context.Context, payload []byte) error {
	intentID, err := stripe.ParsePaymentIntentID(payload)
	if err != nil {
		return err
	}

	order, err := s.orderByPayment(ctx, intentID)
	if err != nil || order == nil {
		return err
	}
	if !models.CanTransition(order.Status, models.StatusPaid) {
		return nil
	}

	return s.transition(ctx, order, models.StatusPaid, "payment_intent.succeeded")
}

// HandleChargeRefunded cancels the order the refunded charge paid for.
func (s *WebhookService) HandleChargeRefunded(ctx context.Context, payload []byte) error {
	intentID, err := stripe.ParseChargePaymentIntent(payload)
	if err != nil {
		return err
	}
	if intentID == "" {
		s.loggerFromContext(ctx).Info("refunded charge has no payment intent")
		return nil
	}

	order, err := s.orderByPayment(ctx, intentID)
	if err != nil || order == nil {
		return err
	}
	if order.Status == models.StatusCancelled {
		return nil
	}

	return s.transition(ctx, order, models.StatusCancelled, "charge.refunded")
}

func (s *WebhookService) orderByPayment(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	order, err := s.orders.GetByPaymentID(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.loggerFromContext(ctx).Info("no order for payment intent", "payment_intent_id", paymentIntentID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *WebhookService) transition(ctx context.Context, order *models.Order, to models.OrderStatus, event string) error {
	logger := s.loggerFromContext(ctx)
	if err := s.orders.Transition(ctx, order.ID, to); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("ignoring event due to state transition", "event", event, "order_id", order.ID, "status", order.Status, "error", err)
			return nil
		}
		return fmt.Errorf("failed to move order to %s: %w", to, err)
	}
	s.cache.Invalidate(ctx)

	logger.Info("order status updated from webhook", "event", event, "order_id", order.ID, "from", order.Status, "to", to)
	return nil
}
