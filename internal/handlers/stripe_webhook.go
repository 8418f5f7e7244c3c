package handlers

import (
	"context"
	"net/http"
	"time"

	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/sifrokapp/sifrok/internal/cache"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/observability"
	stripewebhook "github.com/sifrokapp/sifrok/internal/stripe"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

type webhookAck struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies, records and dispatches one payment processor
// event. Only a bad signature is rejected with 400. A processing failure is
// recorded on the log row and answered with 500 so the processor redelivers.
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	recordFailed := observability.FailureCounter(observability.MeterFromContext(ctx), "webhook.stripe.failed")
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := stripewebhook.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		recordFailed("invalid_signature")
		logger.Warn("failed to read Stripe webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	if event.ID == "" {
		recordFailed("missing_event_id")
		logger.Warn("missing Stripe event ID")
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}
	logger = logger.With("event_id", event.ID, "event_type", string(event.Type))

	cacheKey := cache.WebhookKey(models.WebhookSourceStripe, event.ID)
	claimed, err := h.cacheProvider.SetNX(ctx, cacheKey, "processing", stripeWebhookIdempotencyTTL)
	if err != nil {
		// The order upsert stays idempotent without the claim.
		logger.Error("failed to claim webhook event", "error", err)
		claimed = true
	}
	entry := &models.WebhookLog{
		Source:    models.WebhookSourceStripe,
		EventType: string(event.Type),
		EventID:   event.ID,
		Payload:   webhookPayload(event),
	}
	if !claimed {
		logger.Info("webhook already processed")
		entry.Processed = true
		entry.Duplicate = true
		if err := h.webhookLogs.Create(ctx, entry); err != nil {
			logger.Error("failed to record duplicate webhook", "error", err)
		}
		h.writeJSON(w, r, http.StatusOK, webhookAck{Received: true})
		return
	}

	if err := h.webhookLogs.Create(ctx, entry); err != nil {
		recordFailed("log_create_failed")
		logger.Error("failed to record webhook", "error", err)
		h.releaseWebhookClaim(ctx, cacheKey)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	if processErr := h.stripeRouter.Handle(ctx, event); processErr != nil {
		recordFailed("processing_failed")
		logger.Error("failed to process Stripe webhook", "error", processErr)
		if err := h.webhookLogs.MarkFailed(ctx, entry.ID, processErr.Error()); err != nil {
			logger.Error("failed to mark webhook as failed", "error", err)
		}
		h.releaseWebhookClaim(ctx, cacheKey)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	if err := h.webhookLogs.MarkProcessed(ctx, entry.ID); err != nil {
		logger.Error("failed to mark webhook as processed", "error", err)
	}
	if err := h.cacheProvider.Set(ctx, cacheKey, "processed", stripeWebhookIdempotencyTTL); err != nil {
		logger.Error("failed to mark webhook as processed in cache", "error", err)
	}

	h.writeJSON(w, r, http.StatusOK, webhookAck{Received: true})
}

// releaseWebhookClaim lets a redelivery of a failed event run again.
func (h *Handlers) releaseWebhookClaim(ctx context.Context, key string) {
	if err := h.cacheProvider.Delete(ctx, key); err != nil {
		h.loggerFromContext(ctx).Error("failed to release webhook claim", "error", err)
	}
}

func webhookPayload(event *stripeapi.Event) string {
	if event.Data == nil {
		return ""
	}
	return string(event.Data.Raw)
}
