package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sifrokapp/sifrok/internal/models"
)

var basisPoints = decimal.NewFromInt(10_000)

// PromotionTarget describes the cart line a promotion is checked against.
type PromotionTarget struct {
	SubtotalCents int64
	Category      string
	ProductID     string
}

// PromotionApplies reports whether promo is usable at now for target. It
// checks activity, window, minimum amount, usage cap and target filter.
func PromotionApplies(promo *models.Promotion, now time.Time, target PromotionTarget) bool {
	if promo == nil || !promo.IsActive || promo.Exhausted() {
		return false
	}
	if promo.StartDate != nil && now.Before(*promo.StartDate) {
		return false
	}
	if promo.EndDate != nil && now.After(*promo.EndDate) {
		return false
	}
	if promo.MinAmountCents != nil && target.SubtotalCents < *promo.MinAmountCents {
		return false
	}

	switch promo.ApplyTo {
	case models.PromotionTargetCategory:
		return promo.CategoryFilter != "" && strings.EqualFold(promo.CategoryFilter, target.Category)
	case models.PromotionTargetProduct:
		return promo.ProductFilter != "" && promo.ProductFilter == target.ProductID
	default:
		return true
	}
}

// PromotionDiscount returns the discount in cents, never more than subtotal.
func PromotionDiscount(promo *models.Promotion, subtotalCents int64) int64 {
	if promo == nil || subtotalCents <= 0 {
		return 0
	}

	var discount int64
	switch promo.Type {
	case models.PromotionPercentage:
		discount = decimal.NewFromInt(subtotalCents).Mul(decimal.NewFromInt(promo.Value)).Div(basisPoints).Round(0).IntPart()
	case models.PromotionFixed:
		discount = promo.Value
	}

	if discount > subtotalCents {
		return subtotalCents
	}
	if discount < 0 {
		return 0
	}
	return discount
}
