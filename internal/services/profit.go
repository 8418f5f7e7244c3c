package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/pricing"
)

type profitOrders interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateProfit(ctx context.Context, orderID uuid.UUID, productionCents, feeCents, netCents int64) error
	ListRevenueSince(ctx context.Context, since time.Time) ([]*models.Order, error)
}

type ProfitService struct {
	orders   profitOrders
	mappings mappingLookup
	cache    *OrderCache
	now      func() time.Time
	logger   *slog.Logger
}

func NewProfitService(orders profitOrders, mappings mappingLookup, cache *OrderCache, logger *slog.Logger) *ProfitService {
	return &ProfitService{
		orders:   orders,
		mappings: mappings,
		cache:    cache,
		now:      time.Now,
		logger:   componentLogger(logger, "profit_service"),
	}
}

// CalculateOrderProfit computes and stores the order's cost, fee and net
// profit. Items without a mapped base cost are listed in SkippedItems.
func (s *ProfitService) CalculateOrderProfit(ctx context.Context, orderID uuid.UUID) (*pricing.OrderProfit, error) {
	logger := logging.FromContext(ctx, s.logger)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderError(err)
	}

	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	mappings, err := s.mappings.ByLocalIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load product mappings: %w", err)
	}
	baseCosts := make(map[string]int64, len(mappings))
	for localID, mapping := range mappings {
		baseCosts[localID] = mapping.BasePriceCents
	}

	profit := pricing.ComputeOrderProfit(order.TotalCents, order.Items, baseCosts)
	for _, itemID := range profit.SkippedItems {
		logger.Warn("order item has no base cost, profit is partial", "order_id", order.ID, "item_id", itemID)
	}

	if err := s.orders.UpdateProfit(ctx, order.ID, profit.ProductionCents, profit.FeeCents, profit.NetCents); err != nil {
		return nil, fmt.Errorf("failed to store order profit: %w", orderError(err))
	}
	s.cache.Invalidate(ctx)

	logger.Info("order profit calculated", "order_id", order.ID, "net_profit_cents", profit.NetCents, "partial", profit.Partial())
	return &profit, nil
}

func (s *ProfitService) GetProfitabilityStats(ctx context.Context, rawPeriod string) (*pricing.ProfitabilityStats, error) {
	period, err := pricing.ParsePeriod(rawPeriod)
	if err != nil {
		return nil, UserError{Message: "period must be week, month or year"}
	}

	orders, err := s.orders.ListRevenueSince(ctx, period.Since(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	stats := pricing.AggregateProfitability(period, orders)
	return &stats, nil
}
