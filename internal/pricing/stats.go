package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sifrokapp/sifrok/internal/models"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case PeriodWeek, PeriodMonth, PeriodYear:
		return Period(raw), nil
	case "":
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q", raw)
	}
}

// Since returns the start of the trailing window ending at now: seven days for
// week, one calendar month for month and one calendar year for year.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

type ProfitabilityStats struct {
	Period                 Period  `json:"period"`
	TotalRevenueCents      int64   `json:"total_revenue_cents"`
	TotalCostsCents        int64   `json:"total_costs_cents"`
	TotalFeesCents         int64   `json:"total_fees_cents"`
	NetProfitCents         int64   `json:"net_profit_cents"`
	Margin                 float64 `json:"margin"`
	OrderCount             int     `json:"order_count"`
	AverageOrderValueCents int64   `json:"average_order_value_cents"`
	AverageProfitCents     int64   `json:"average_profit_cents"`
}

// AggregateProfitability sums revenue-counted orders. Orders without a stored
// fee use the estimate; orders without a stored production cost count as zero.
// NetProfitCents always equals revenue minus costs minus fees.
func AggregateProfitability(period Period, orders []*models.Order) ProfitabilityStats {
	stats := ProfitabilityStats{Period: period}

	for _, order := range orders {
		if order == nil || !order.Status.CountsAsRevenue() {
			continue
		}
		stats.OrderCount++
		stats.TotalRevenueCents += order.TotalCents
		if order.ProductionCostCents != nil {
			stats.TotalCostsCents += *order.ProductionCostCents
		}
		if order.StripeFeeCents != nil {
			stats.TotalFeesCents += *order.StripeFeeCents
		} else {
			stats.TotalFeesCents += StripeFee(order.TotalCents)
		}
	}

	stats.NetProfitCents = stats.TotalRevenueCents - stats.TotalCostsCents - stats.TotalFeesCents
	stats.Margin = Margin(stats.NetProfitCents, stats.TotalRevenueCents)
	if stats.OrderCount > 0 {
		count := decimal.NewFromInt(int64(stats.OrderCount))
		stats.AverageOrderValueCents = decimal.NewFromInt(stats.TotalRevenueCents).Div(count).Round(0).IntPart()
		stats.AverageProfitCents = decimal.NewFromInt(stats.NetProfitCents).Div(count).Round(0).IntPart()
	}
	return stats
}

// PercentChange returns the change from previous to current in percent,
// rounded to one decimal, or 0 when previous is zero.
func PercentChange(current, previous int64) float64 {
	if previous == 0 {
		return 0
	}
	change := decimal.NewFromInt(current - previous).Div(decimal.NewFromInt(previous)).Mul(hundred).Round(1)
	return change.InexactFloat64()
}
