package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/observability"
)

type stripeEventService interface {
	HandleCheckoutSessionCompleted(ctx context.Context, payload []byte) error
	HandleCheckoutSessionExpired(ctx context.Context, payload []byte) error
	HandlePaymentIntentSucceeded(ctx context.Context, payload []byte) error
	HandleChargeRefunded(ctx context.Context, payload []byte) error
}

// StripeEventRouter dispatches verified events to the order reconciler.
type StripeEventRouter struct {
	service stripeEventService
	logger  *slog.Logger
}

func NewStripeEventRouter(service stripeEventService, logger *slog.Logger) *StripeEventRouter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StripeEventRouter{
		service: service,
		logger:  logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := observability.FailureCounter(meter, "webhook.router.failed")

	if event == nil {
		recordFailed("missing_event")
		return fmt.Errorf("missing stripe event")
	}
	if event.Data == nil {
		recordFailed("missing_event_data")
		return fmt.Errorf("missing stripe event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	var (
		handle func(context.Context, []byte) error
		reason string
	)
	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted:
		handle, reason = r.service.HandleCheckoutSessionCompleted, "checkout_session_completed_failed"
	case stripeapi.EventTypeCheckoutSessionExpired:
		handle, reason = r.service.HandleCheckoutSessionExpired, "checkout_session_expired_failed"
	case stripeapi.EventTypePaymentIntentSucceeded:
		handle, reason = r.service.HandlePaymentIntentSucceeded, "payment_intent_succeeded_failed"
	case stripeapi.EventTypeChargeRefunded:
		handle, reason = r.service.HandleChargeRefunded, "charge_refunded_failed"
	default:
		logging.FromContext(ctx, r.logger).Info("unhandled Stripe event type", "type", event.Type)
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	if err := handle(ctx, event.Data.Raw); err != nil {
		recordFailed(reason)
		span.Status = sentry.SpanStatusInternalError
		return err
	}
	meter.Count("webhook.router.processed", 1)
	span.Status = sentry.SpanStatusOK
	return nil
}
