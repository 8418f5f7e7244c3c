package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sifrokapp/sifrok/internal/cache"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
)

const (
	DefaultOrderPageSize = 50
	maxOrderPageSize     = 200
	orderListTTL         = 5 * time.Minute
)

// OrderCache holds the first page of the unfiltered admin order list. Every
// service that mutates orders invalidates it. A nil OrderCache is a no-op.
type OrderCache struct {
	provider cache.Provider
	logger   *slog.Logger
}

func NewOrderCache(provider cache.Provider, logger *slog.Logger) *OrderCache {
	if provider == nil {
		return nil
	}
	return &OrderCache{provider: provider, logger: logger}
}

func (c *OrderCache) firstPage(ctx context.Context) ([]*models.Order, bool) {
	if c == nil {
		return nil, false
	}
	orders, err := cache.GetJSON[[]*models.Order](ctx, c.provider, cache.OrderListKey(DefaultOrderPageSize))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logging.FromContext(ctx, c.logger).Warn("failed to read cached order list", "error", err)
		}
		return nil, false
	}
	return orders, true
}

func (c *OrderCache) storeFirstPage(ctx context.Context, orders []*models.Order) {
	if c == nil {
		return
	}
	if err := cache.SetJSON(ctx, c.provider, cache.OrderListKey(DefaultOrderPageSize), orders, orderListTTL); err != nil {
		logging.FromContext(ctx, c.logger).Warn("failed to cache order list", "error", err)
	}
}

func (c *OrderCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.provider.Delete(ctx, cache.OrderListKey(DefaultOrderPageSize)); err != nil {
		logging.FromContext(ctx, c.logger).Warn("failed to invalidate cached order list", "error", err)
	}
}
