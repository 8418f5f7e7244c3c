package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/observability"
)

type orderReader interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter db.OrderFilter) ([]*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) error
}

type OrderService struct {
	orders orderReader
	cache  *OrderCache
	logger *slog.Logger
}

func NewOrderService(orders orderReader, cache *OrderCache, logger *slog.Logger) *OrderService {
	return &OrderService{orders: orders, cache: cache, logger: componentLogger(logger, "order_service")}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type ListOrdersInput struct {
	Statuses []string
	From     *time.Time
	To       *time.Time
	Search   string
	Limit    int
	Offset   int
}

// ListOrders returns orders newest first. The unfiltered first page is served
// from the order cache when present.
func (s *OrderService) ListOrders(ctx context.Context, input ListOrdersInput) ([]*models.Order, error) {
	filter := db.OrderFilter{
		From:   input.From,
		To:     input.To,
		Search: strings.TrimSpace(input.Search),
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultOrderPageSize
	}
	if filter.Limit > maxOrderPageSize {
		filter.Limit = maxOrderPageSize
	}
	if filter.Offset < 0 {
		return nil, UserError{Message: "offset must not be negative"}
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, UserError{Message: "endDate must not be before startDate"}
	}
	for _, raw := range input.Statuses {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		status, ok := models.ParseOrderStatus(strings.ToUpper(raw))
		if !ok {
			return nil, UserError{Message: fmt.Sprintf("unknown order status %q", raw)}
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	cacheable := filter.IsZero() && filter.Limit == DefaultOrderPageSize
	if cacheable {
		if orders, ok := s.cache.firstPage(ctx); ok {
			observability.MeterFromContext(ctx).Count("orders.list.cache_hit", 1)
			return orders, nil
		}
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	if cacheable {
		s.cache.storeFirstPage(ctx, orders)
	}
	return orders, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderError(err)
	}
	return order, nil
}

// UpdateStatus applies a manual status change through the same transition
// guard the webhook reconciler uses.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, rawStatus string) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.update_status",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("UpdateStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	status, ok := models.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(rawStatus)))
	if !ok {
		return nil, UserError{Message: fmt.Sprintf("unknown order status %q", rawStatus)}
	}

	if err := s.orders.Transition(ctx, orderID, status); err != nil {
		return nil, orderError(err)
	}
	s.cache.Invalidate(ctx)

	s.loggerFromContext(ctx).Info("order status updated", "order_id", orderID, "status", status)
	span.Status = sentry.SpanStatusOK
	return s.GetOrder(ctx, orderID)
}
