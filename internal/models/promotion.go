package models

import (
	"time"

	"github.com/google/uuid"
)

type PromotionType string

const (
	PromotionPercentage PromotionType = "PERCENTAGE"
	PromotionFixed      PromotionType = "FIXED"
)

type PromotionTarget string

const (
	PromotionTargetAll      PromotionTarget = "ALL"
	PromotionTargetCategory PromotionTarget = "CATEGORY"
	PromotionTargetProduct  PromotionTarget = "PRODUCT"
)

// Promotion is a discount rule. Value holds basis points for percentage
// promotions and cents for fixed ones.
type Promotion struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Code           string          `json:"code,omitempty"`
	Type           PromotionType   `json:"type"`
	Value          int64           `json:"value"`
	IsActive       bool            `json:"is_active"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	MinAmountCents *int64          `json:"min_amount_cents,omitempty"`
	MaxUses        *int            `json:"max_uses,omitempty"`
	CurrentUses    int             `json:"current_uses"`
	ApplyTo        PromotionTarget `json:"apply_to"`
	CategoryFilter string          `json:"category_filter,omitempty"`
	ProductFilter  string          `json:"product_filter,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Exhausted reports whether the usage cap has been reached.
func (p *Promotion) Exhausted() bool {
	return p.MaxUses != nil && p.CurrentUses >= *p.MaxUses
}
