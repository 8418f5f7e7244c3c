package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sifrokapp/sifrok/internal/models"
)

type auditLog interface {
	Create(ctx context.Context, entry *models.WebhookLog) error
}

// recordAudit stores an outbound vendor attempt in the webhook log. A failed
// write is logged and otherwise ignored.
func recordAudit(ctx context.Context, logs auditLog, logger *slog.Logger, source, eventType, eventID string, payload any, failure error) {
	if logs == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to encode audit payload", "event_type", eventType, "error", err)
		raw = []byte("{}")
	}

	entry := &models.WebhookLog{
		Source:    source,
		EventType: eventType,
		EventID:   eventID,
		Payload:   string(raw),
		Processed: failure == nil,
	}
	if failure != nil {
		entry.Error = failure.Error()
	}
	if err := logs.Create(ctx, entry); err != nil {
		logger.Error("failed to write audit log", "event_type", eventType, "event_id", eventID, "error", err)
	}
}
