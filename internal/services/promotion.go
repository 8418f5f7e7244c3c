package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/observability"
	"github.com/sifrokapp/sifrok/internal/pricing"
)

type promotionStore interface {
	List(ctx context.Context) ([]*models.Promotion, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error)
	Create(ctx context.Context, p *models.Promotion) error
	Update(ctx context.Context, p *models.Promotion) error
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementUses(ctx context.Context, id uuid.UUID, enforceCap bool) (*models.Promotion, error)
}

type PromotionService struct {
	store   promotionStore
	hardCap bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewPromotionService builds the service. With hardCap, redemptions stop at
// max_uses; otherwise they are counted past it and reported as exceeded.
func NewPromotionService(store promotionStore, hardCap bool, logger *slog.Logger) *PromotionService {
	return &PromotionService{store: store, hardCap: hardCap, now: time.Now, logger: componentLogger(logger, "promotion_service")}
}

type PromotionInput struct {
	Name           string     `json:"name" validate:"required"`
	Code           string     `json:"code"`
	Type           string     `json:"type" validate:"required,oneof=PERCENTAGE FIXED"`
	Value          int64      `json:"value" validate:"gt=0"`
	IsActive       *bool      `json:"is_active"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	MinAmountCents *int64     `json:"min_amount_cents" validate:"omitempty,gte=0"`
	MaxUses        *int       `json:"max_uses" validate:"omitempty,gt=0"`
	ApplyTo        string     `json:"apply_to" validate:"omitempty,oneof=ALL CATEGORY PRODUCT"`
	CategoryFilter string     `json:"category_filter"`
	ProductFilter  string     `json:"product_filter"`
}

func (in PromotionInput) validate() error {
	if err := validateInput(in); err != nil {
		return err
	}
	if models.PromotionType(in.Type) == models.PromotionPercentage && in.Value > 10_000 {
		return UserError{Message: "percentage promotions are capped at 10000 basis points"}
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return UserError{Message: "end_date must not be before start_date"}
	}
	switch models.PromotionTarget(in.ApplyTo) {
	case models.PromotionTargetCategory:
		if strings.TrimSpace(in.CategoryFilter) == "" {
			return UserError{Message: "category_filter is required for category promotions"}
		}
	case models.PromotionTargetProduct:
		if strings.TrimSpace(in.ProductFilter) == "" {
			return UserError{Message: "product_filter is required for product promotions"}
		}
	}
	return nil
}

func (in PromotionInput) apply(p *models.Promotion) {
	p.Name = strings.TrimSpace(in.Name)
	p.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	p.Type = models.PromotionType(in.Type)
	p.Value = in.Value
	p.IsActive = in.IsActive == nil || *in.IsActive
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	p.MinAmountCents = in.MinAmountCents
	p.MaxUses = in.MaxUses
	p.ApplyTo = models.PromotionTarget(in.ApplyTo)
	if p.ApplyTo == "" {
		p.ApplyTo = models.PromotionTargetAll
	}
	p.CategoryFilter = in.CategoryFilter
	p.ProductFilter = in.ProductFilter
}

func (s *PromotionService) List(ctx context.Context) ([]*models.Promotion, error) {
	promotions, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	if promotions == nil {
		promotions = []*models.Promotion{}
	}
	return promotions, nil
}

func (s *PromotionService) Create(ctx context.Context, input PromotionInput) (*models.Promotion, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	promotion := &models.Promotion{}
	input.apply(promotion)
	if err := s.store.Create(ctx, promotion); err != nil {
		return nil, promotionError(err)
	}

	logging.FromContext(ctx, s.logger).Info("promotion created", "promotion_id", promotion.ID, "type", promotion.Type)
	return promotion, nil
}

func (s *PromotionService) Update(ctx context.Context, id uuid.UUID, input PromotionInput) (*models.Promotion, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	promotion, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, promotionError(err)
	}
	input.apply(promotion)
	if err := s.store.Update(ctx, promotion); err != nil {
		return nil, promotionError(err)
	}
	return promotion, nil
}

func (s *PromotionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return promotionError(err)
	}
	return nil
}

type RedeemResult struct {
	Promotion *models.Promotion `json:"promotion"`
	// Exceeded is set in advisory mode when the redemption went past max_uses.
	Exceeded bool `json:"exceeded"`
}

// Redeem counts one use of the promotion.
func (s *PromotionService) Redeem(ctx context.Context, id uuid.UUID) (*RedeemResult, error) {
	promotion, err := s.store.IncrementUses(ctx, id, s.hardCap)
	if err != nil {
		if errors.Is(err, db.ErrUsageLimitReached) {
			observability.MeterFromContext(ctx).Count("promotion.redeem.exhausted", 1)
			return nil, ErrPromotionExhausted
		}
		return nil, promotionError(err)
	}

	result := &RedeemResult{Promotion: promotion}
	if promotion.MaxUses != nil && promotion.CurrentUses > *promotion.MaxUses {
		result.Exceeded = true
		logging.FromContext(ctx, s.logger).Warn("promotion redeemed past its usage limit", "promotion_id", id, "current_uses", promotion.CurrentUses, "max_uses", *promotion.MaxUses)
	}
	return result, nil
}

type PromotionQuote struct {
	Applies       bool  `json:"applies"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// Quote evaluates the promotion against a cart without redeeming it.
func (s *PromotionService) Quote(ctx context.Context, id uuid.UUID, target pricing.PromotionTarget) (*PromotionQuote, error) {
	if target.SubtotalCents < 0 {
		return nil, UserError{Message: "subtotal must not be negative"}
	}

	promotion, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, promotionError(err)
	}

	quote := &PromotionQuote{TotalCents: target.SubtotalCents}
	if pricing.PromotionApplies(promotion, s.now(), target) {
		quote.Applies = true
		quote.DiscountCents = pricing.PromotionDiscount(promotion, target.SubtotalCents)
		quote.TotalCents -= quote.DiscountCents
	}
	return quote, nil
}

func promotionError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrPromotionNotFound
	case errors.Is(err, db.ErrConflict):
		return UserError{Message: "a promotion with that code already exists"}
	default:
		return fmt.Errorf("failed to store promotion: %w", err)
	}
}
