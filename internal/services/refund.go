package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/observability"
	"github.com/sifrokapp/sifrok/internal/pricing"
	"github.com/sifrokapp/sifrok/internal/stripe"
)

type paymentGateway interface {
	Refund(ctx context.Context, paymentIntentID string, amountCents *int64) (*stripe.Refund, error)
	PaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type refundOrders interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) error
}

type RefundService struct {
	orders   refundOrders
	payments paymentGateway
	logs     auditLog
	cache    *OrderCache
	logger   *slog.Logger
}

func NewRefundService(orders refundOrders, payments paymentGateway, logs auditLog, cache *OrderCache, logger *slog.Logger) *RefundService {
	return &RefundService{
		orders:   orders,
		payments: payments,
		logs:     logs,
		cache:    cache,
		logger:   componentLogger(logger, "refund_service"),
	}
}

func (s *RefundService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// RefundResult reports a refund attempt. Rejections and processor failures
// come back with Success false and a short Error.
type RefundResult struct {
	Success     bool   `json:"success"`
	RefundID    string `json:"refund_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Error       string `json:"error,omitempty"`
	// Reason is a stable code for a failed refund.
	Reason string `json:"reason,omitempty"`
}

const (
	RefundReasonOrderNotFound    = "order_not_found"
	RefundReasonMissingPayment   = "missing_payment"
	RefundReasonAlreadyCancelled = "already_cancelled"
	RefundReasonInvalidAmount    = "invalid_amount"
	RefundReasonNotRefundable    = "not_refundable"
	RefundReasonProcessorFailed  = "processor_failed"
)

func refundRejected(reason, message string) *RefundResult {
	return &RefundResult{Error: message, Reason: reason}
}

type refundAudit struct {
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_intent_id"`
	RefundID    string `json:"refund_id,omitempty"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
}

// ProcessRefund refunds an order in full, or partially when amountCents is
// set, and cancels it. Orders that cannot be refunded are rejected before
// the payment processor is called.
func (s *RefundService) ProcessRefund(ctx context.Context, orderID uuid.UUID, amountCents *int64) (*RefundResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.refund.process",
		sentry.WithOpName("service.refund"),
		sentry.WithDescription("ProcessRefund"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	recordFailure := observability.FailureCounter(observability.MeterFromContext(ctx), "refund.failed")

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("failed to get order: %w", err)
		}
		recordFailure(RefundReasonOrderNotFound)
		return refundRejected(RefundReasonOrderNotFound, "order not found"), nil
	}
	if order.StripePaymentID == "" {
		recordFailure(RefundReasonMissingPayment)
		return refundRejected(RefundReasonMissingPayment, "order has no payment to refund"), nil
	}
	if order.Status == models.StatusCancelled {
		recordFailure(RefundReasonAlreadyCancelled)
		return refundRejected(RefundReasonAlreadyCancelled, "order is already cancelled"), nil
	}
	if !models.CanTransition(order.Status, models.StatusCancelled) {
		recordFailure(RefundReasonNotRefundable)
		return refundRejected(RefundReasonNotRefundable, fmt.Sprintf("%s orders cannot be refunded", order.Status)), nil
	}
	if amountCents != nil && (*amountCents <= 0 || *amountCents > order.TotalCents) {
		recordFailure(RefundReasonInvalidAmount)
		return refundRejected(RefundReasonInvalidAmount, "refund amount must be between 0 and the order total"), nil
	}

	audit := refundAudit{OrderID: order.ID.String(), PaymentID: order.StripePaymentID, AmountCents: amountCents}
	refund, err := s.payments.Refund(ctx, order.StripePaymentID, amountCents)
	if err != nil {
		recordFailure(RefundReasonProcessorFailed)
		logger.Error("refund failed", "order_id", order.ID, "payment_intent_id", order.StripePaymentID, "error", err)
		recordAudit(ctx, s.logs, logger, models.WebhookSourceStripe, "refund_failed", order.ID.String(), audit, err)
		return refundRejected(RefundReasonProcessorFailed, "refund failed"), nil
	}

	audit.RefundID = refund.ID
	recordAudit(ctx, s.logs, logger, models.WebhookSourceStripe, "refund_created", refund.ID, audit, nil)

	if err := s.orders.Transition(ctx, order.ID, models.StatusCancelled); err != nil {
		logger.Error("refund created but order not cancelled", "order_id", order.ID, "refund_id", refund.ID, "error", err)
	}
	s.cache.Invalidate(ctx)

	logger.Info("refund created", "order_id", order.ID, "refund_id", refund.ID, "amount_cents", refund.AmountCents)
	span.Status = sentry.SpanStatusOK
	return &RefundResult{Success: true, RefundID: refund.ID, AmountCents: refund.AmountCents}, nil
}

type PaymentDetails struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	Created         time.Time `json:"created"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	FeeCents        int64     `json:"estimated_fee_cents"`
}

func (s *RefundService) GetPaymentDetails(ctx context.Context, orderID uuid.UUID) (*PaymentDetails, error) {
	intent, err := s.paymentIntent(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &PaymentDetails{
		PaymentIntentID: intent.ID,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
		Status:          intent.Status,
		Created:         intent.Created,
		PaymentMethod:   intent.PaymentMethod,
		FeeCents:        pricing.StripeFee(intent.AmountCents),
	}, nil
}

// VerifyPayment reports whether the order's payment intent succeeded.
func (s *RefundService) VerifyPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	intent, err := s.paymentIntent(ctx, orderID)
	if err != nil {
		return false, err
	}
	return intent.Succeeded(), nil
}

func (s *RefundService) paymentIntent(ctx context.Context, orderID uuid.UUID) (*stripe.PaymentIntent, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderError(err)
	}
	if order.StripePaymentID == "" {
		return nil, UserError{Message: "order has no payment"}
	}

	intent, err := s.payments.PaymentIntent(ctx, order.StripePaymentID)
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to retrieve payment", "order_id", order.ID, "error", err)
		return nil, fmt.Errorf("failed to retrieve payment: %w", err)
	}
	return intent, nil
}
