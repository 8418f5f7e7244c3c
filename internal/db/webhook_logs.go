package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/models"
)

type WebhookLogStore struct {
	pool Conn
}

func NewWebhookLogStore(pool Conn) *WebhookLogStore {
	return &WebhookLogStore{pool: pool}
}

func (s *WebhookLogStore) Create(ctx context.Context, entry *models.WebhookLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_logs (id, source, event_type, event_id, payload, processed, duplicate, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, entry.ID, entry.Source, entry.EventType, entry.EventID, entry.Payload, entry.Processed, entry.Duplicate, entry.Error).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook log: %w", err)
	}
	return nil
}

func (s *WebhookLogStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, true, "")
}

// MarkFailed keeps processed=false and records the handler error.
func (s *WebhookLogStore) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	return s.finish(ctx, id, false, errText)
}

func (s *WebhookLogStore) finish(ctx context.Context, id uuid.UUID, processed bool, errText string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE webhook_logs SET processed = $2, error = $3 WHERE id = $1`, id, processed, errText)
	if err != nil {
		return fmt.Errorf("failed to update webhook log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *WebhookLogStore) ListRecent(ctx context.Context, source string, limit int) ([]*models.WebhookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, event_type, event_id, payload, processed, duplicate, error, created_at
		FROM webhook_logs
		WHERE ($1::text = '' OR source = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.WebhookLog
	for rows.Next() {
		var entry models.WebhookLog
		if err := rows.Scan(&entry.ID, &entry.Source, &entry.EventType, &entry.EventID, &entry.Payload, &entry.Processed, &entry.Duplicate, &entry.Error, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook log: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
