package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/pricing"
)

const (
	topProductsWindow = 30 * 24 * time.Hour
	topProductsLimit  = 5
	recentOrdersLimit = 10
)

type reportReader interface {
	RevenueTotals(ctx context.Context, from, to *time.Time) (db.OrderTotals, error)
	CountOrdersWithStatus(ctx context.Context, status models.OrderStatus) (int, error)
	CountUsers(ctx context.Context, since *time.Time) (int, error)
	CountReviews(ctx context.Context) (int, error)
	TopProducts(ctx context.Context, since time.Time, limit int) ([]db.TopProduct, error)
}

type orderLister interface {
	List(ctx context.Context, filter db.OrderFilter) ([]*models.Order, error)
}

type StatsService struct {
	reports reportReader
	orders  orderLister
	now     func() time.Time
	logger  *slog.Logger
}

func NewStatsService(reports reportReader, orders orderLister, logger *slog.Logger) *StatsService {
	return &StatsService{reports: reports, orders: orders, now: time.Now, logger: componentLogger(logger, "stats_service")}
}

type StatsOverview struct {
	TotalOrders       int   `json:"total_orders"`
	TotalRevenueCents int64 `json:"total_revenue_cents"`
	TotalUsers        int   `json:"total_users"`
	TotalReviews      int   `json:"total_reviews"`
	PendingOrders     int   `json:"pending_orders"`
}

type StatsToday struct {
	Orders       int   `json:"orders"`
	RevenueCents int64 `json:"revenue_cents"`
	NewUsers     int   `json:"new_users"`
}

type StatsMonth struct {
	Orders                int     `json:"orders"`
	RevenueCents          int64   `json:"revenue_cents"`
	LastMonthOrders       int     `json:"last_month_orders"`
	LastMonthRevenueCents int64   `json:"last_month_revenue_cents"`
	OrdersChange          float64 `json:"orders_change"`
	RevenueChange         float64 `json:"revenue_change"`
}

type AdminStats struct {
	Overview     StatsOverview   `json:"overview"`
	Today        StatsToday      `json:"today"`
	ThisMonth    StatsMonth      `json:"this_month"`
	TopProducts  []db.TopProduct `json:"top_products"`
	RecentOrders []*models.Order `json:"recent_orders"`
}

// Stats builds the admin dashboard figures. Day and month boundaries use the
// time zone of now.
func (s *StatsService) Stats(ctx context.Context) (*AdminStats, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	stats := &AdminStats{}

	total, err := s.reports.RevenueTotals(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	stats.Overview.TotalOrders = total.Count
	stats.Overview.TotalRevenueCents = total.RevenueCents

	if stats.Overview.TotalUsers, err = s.reports.CountUsers(ctx, nil); err != nil {
		return nil, err
	}
	if stats.Overview.TotalReviews, err = s.reports.CountReviews(ctx); err != nil {
		return nil, err
	}
	if stats.Overview.PendingOrders, err = s.reports.CountOrdersWithStatus(ctx, models.StatusProcessing); err != nil {
		return nil, err
	}

	todayTotals, err := s.reports.RevenueTotals(ctx, &today, nil)
	if err != nil {
		return nil, err
	}
	stats.Today.Orders = todayTotals.Count
	stats.Today.RevenueCents = todayTotals.RevenueCents
	if stats.Today.NewUsers, err = s.reports.CountUsers(ctx, &today); err != nil {
		return nil, err
	}

	month, err := s.reports.RevenueTotals(ctx, &monthStart, nil)
	if err != nil {
		return nil, err
	}
	lastMonth, err := s.reports.RevenueTotals(ctx, &lastMonthStart, &monthStart)
	if err != nil {
		return nil, err
	}
	stats.ThisMonth = StatsMonth{
		Orders:                month.Count,
		RevenueCents:          month.RevenueCents,
		LastMonthOrders:       lastMonth.Count,
		LastMonthRevenueCents: lastMonth.RevenueCents,
		OrdersChange:          pricing.PercentChange(int64(month.Count), int64(lastMonth.Count)),
		RevenueChange:         pricing.PercentChange(month.RevenueCents, lastMonth.RevenueCents),
	}

	if stats.TopProducts, err = s.reports.TopProducts(ctx, now.Add(-topProductsWindow), topProductsLimit); err != nil {
		return nil, err
	}
	if stats.TopProducts == nil {
		stats.TopProducts = []db.TopProduct{}
	}

	recent, err := s.orders.List(ctx, db.OrderFilter{Limit: recentOrdersLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}
	if recent == nil {
		recent = []*models.Order{}
	}
	stats.RecentOrders = recent

	return stats, nil
}
