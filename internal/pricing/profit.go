package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/sifrokapp/sifrok/internal/models"
)

// OrderProfit is the profit breakdown of one order. SkippedItems lists the ids
// of items whose product had no base cost, so ProductionCents understates
// the real cost whenever it is non-empty.
type OrderProfit struct {
	SaleCents       int64    `json:"sale_price_cents"`
	ProductionCents int64    `json:"production_cost_cents"`
	FeeCents        int64    `json:"stripe_fee_cents"`
	NetCents        int64    `json:"net_profit_cents"`
	Margin          float64  `json:"margin"`
	SkippedItems    []string `json:"skipped_items,omitempty"`
}

func (p OrderProfit) Partial() bool {
	return len(p.SkippedItems) > 0
}

// ComputeOrderProfit sums base cost times quantity over the items found in
// baseCosts (keyed by storefront product id) and derives fee, net and margin.
func ComputeOrderProfit(totalCents int64, items []models.OrderItem, baseCosts map[string]int64) OrderProfit {
	result := OrderProfit{SaleCents: totalCents}

	for _, item := range items {
		base, ok := baseCosts[item.ProductID]
		if !ok {
			result.SkippedItems = append(result.SkippedItems, item.ID.String())
			continue
		}
		result.ProductionCents += base * int64(item.Quantity)
	}

	result.FeeCents = StripeFee(totalCents)
	result.NetCents = totalCents - result.ProductionCents - result.FeeCents
	result.Margin = Margin(result.NetCents, totalCents)
	return result
}

// Margin returns net as a percentage of total, rounded to two decimals, or 0
// when total is not positive.
func Margin(netCents, totalCents int64) float64 {
	if totalCents <= 0 {
		return 0
	}
	margin := decimal.NewFromInt(netCents).Div(decimal.NewFromInt(totalCents)).Mul(hundred).Round(2)
	return margin.InexactFloat64()
}
