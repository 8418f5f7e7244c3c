package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sifrokapp/sifrok/internal/models"
)

// ErrUsageLimitReached is returned when a capped promotion has no uses left.
var ErrUsageLimitReached = errors.New("promotion usage limit reached")

const promotionColumns = `id, name, code, type, value, is_active, start_date, end_date, min_amount_cents,
	max_uses, current_uses, apply_to, category_filter, product_filter, created_at, updated_at`

type PromotionStore struct {
	pool Conn
}

func NewPromotionStore(pool Conn) *PromotionStore {
	return &PromotionStore{pool: pool}
}

func (s *PromotionStore) List(ctx context.Context) ([]*models.Promotion, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+promotionColumns+` FROM promotions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	defer rows.Close()

	var promotions []*models.Promotion
	for rows.Next() {
		promotion, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		promotions = append(promotions, promotion)
	}
	return promotions, rows.Err()
}

func (s *PromotionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	promotion, err := scanPromotion(s.pool.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return promotion, nil
}

func (s *PromotionStore) Create(ctx context.Context, p *models.Promotion) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO promotions (id, name, code, type, value, is_active, start_date, end_date, min_amount_cents,
			max_uses, current_uses, apply_to, category_filter, product_filter)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Code, string(p.Type), p.Value, p.IsActive, p.StartDate, p.EndDate, p.MinAmountCents,
		p.MaxUses, p.CurrentUses, string(p.ApplyTo), p.CategoryFilter, p.ProductFilter,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: promotion code %s", ErrConflict, p.Code)
		}
		return fmt.Errorf("failed to create promotion: %w", err)
	}
	return nil
}

func (s *PromotionStore) Update(ctx context.Context, p *models.Promotion) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE promotions
		SET name = $2, code = NULLIF($3, ''), type = $4, value = $5, is_active = $6, start_date = $7, end_date = $8,
		    min_amount_cents = $9, max_uses = $10, apply_to = $11, category_filter = $12, product_filter = $13,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING current_uses, updated_at
	`, p.ID, p.Name, p.Code, string(p.Type), p.Value, p.IsActive, p.StartDate, p.EndDate, p.MinAmountCents,
		p.MaxUses, string(p.ApplyTo), p.CategoryFilter, p.ProductFilter,
	).Scan(&p.CurrentUses, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: promotion code %s", ErrConflict, p.Code)
		}
		return notFound(err)
	}
	return nil
}

func (s *PromotionStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete promotion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUses records one redemption. With enforceCap the increment only
// happens while current_uses < max_uses, in the same statement, so concurrent
// redemptions cannot overshoot the cap.
func (s *PromotionStore) IncrementUses(ctx context.Context, id uuid.UUID, enforceCap bool) (*models.Promotion, error) {
	query := `UPDATE promotions SET current_uses = current_uses + 1, updated_at = NOW() WHERE id = $1`
	if enforceCap {
		query += ` AND (max_uses IS NULL OR current_uses < max_uses)`
	}
	query += ` RETURNING ` + promotionColumns

	promotion, err := scanPromotion(s.pool.QueryRow(ctx, query, id))
	if err == nil {
		return promotion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to increment promotion uses: %w", err)
	}
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrUsageLimitReached
}

func scanPromotion(row pgx.Row) (*models.Promotion, error) {
	var (
		p                  models.Promotion
		code               pgtype.Text
		promoType, applyTo string
		start, end         pgtype.Timestamptz
		minAmount          pgtype.Int8
		maxUses            pgtype.Int4
	)
	err := row.Scan(&p.ID, &p.Name, &code, &promoType, &p.Value, &p.IsActive, &start, &end, &minAmount,
		&maxUses, &p.CurrentUses, &applyTo, &p.CategoryFilter, &p.ProductFilter, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Code = code.String
	p.Type = models.PromotionType(promoType)
	p.ApplyTo = models.PromotionTarget(applyTo)
	if start.Valid {
		t := start.Time
		p.StartDate = &t
	}
	if end.Valid {
		t := end.Time
		p.EndDate = &t
	}
	p.MinAmountCents = int8Ptr(minAmount)
	if maxUses.Valid {
		n := int(maxUses.Int32)
		p.MaxUses = &n
	}
	return &p, nil
}
