package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/gelato"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/observability"
)

const vendorStatusCreated = "created"

type fulfillmentOrders interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) error
	AttachFulfillment(ctx context.Context, orderID uuid.UUID, vendorOrderID, vendorStatus string) error
	UpdateTracking(ctx context.Context, orderID uuid.UUID, update db.TrackingUpdate) error
}

type mappingLookup interface {
	ByLocalIDs(ctx context.Context, localIDs []string) (map[string]*models.ProductMapping, error)
}

type fulfillmentVendor interface {
	CreateOrder(ctx context.Context, req gelato.OrderRequest) (*gelato.Order, error)
	GetOrder(ctx context.Context, id string) (*gelato.Order, error)
	CancelOrder(ctx context.Context, id string) error
}

type FulfillmentService struct {
	orders   fulfillmentOrders
	mappings mappingLookup
	vendor   fulfillmentVendor
	logs     auditLog
	cache    *OrderCache
	logger   *slog.Logger
}

func NewFulfillmentService(orders fulfillmentOrders, mappings mappingLookup, vendor fulfillmentVendor, logs auditLog, cache *OrderCache, logger *slog.Logger) *FulfillmentService {
	return &FulfillmentService{
		orders:   orders,
		mappings: mappings,
		vendor:   vendor,
		logs:     logs,
		cache:    cache,
		logger:   componentLogger(logger, "fulfillment_service"),
	}
}

func (s *FulfillmentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// SubmitResult carries the vendor order id and the ids of order items that
// were left out because their product has no mapping.
type SubmitResult struct {
	VendorOrderID string   `json:"gelato_order_id"`
	SkippedItems  []string `json:"skipped_items,omitempty"`
}

// SubmitOrder sends a paid order to the fulfillment vendor once. A failed
// submission leaves the order PAID so it can be retried.
func (s *FulfillmentService) SubmitOrder(ctx context.Context, orderID uuid.UUID) (*SubmitResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.fulfillment.submit",
		sentry.WithOpName("service.fulfillment"),
		sentry.WithDescription("SubmitOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := observability.FailureCounter(meter, "fulfillment.submit.failed")

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		recordFailure("order_lookup_failed")
		return nil, orderError(err)
	}
	if order.GelatoOrderID != "" {
		recordFailure("already_submitted")
		return nil, ErrOrderAlreadySubmitted
	}
	if order.Status != models.StatusPaid && order.Status != models.StatusProcessing {
		recordFailure("invalid_status")
		return nil, fmt.Errorf("%w: %s orders cannot be submitted", ErrInvalidStatusTransition, order.Status)
	}

	req, skipped, err := s.buildOrderRequest(ctx, order)
	if err != nil {
		recordFailure("mapping_failed")
		return nil, err
	}
	for _, itemID := range skipped {
		logger.Warn("order item has no product mapping, skipping", "order_id", order.ID, "item_id", itemID)
	}

	vendorOrder, err := s.vendor.CreateOrder(ctx, req)
	if err != nil {
		recordFailure("vendor_failed")
		logVendorError(logger, "failed to create fulfillment order", err, "order_id", order.ID)
		recordAudit(ctx, s.logs, logger, models.WebhookSourceGelato, "order_creation_failed", order.ID.String(), req, err)
		return nil, fmt.Errorf("failed to create fulfillment order: %w", err)
	}

	if err := s.orders.AttachFulfillment(ctx, order.ID, vendorOrder.ID, vendorStatusCreated); err != nil {
		recordFailure("attach_failed")
		logger.Error("vendor order created but not stored", "order_id", order.ID, "gelato_order_id", vendorOrder.ID, "error", err)
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrOrderAlreadySubmitted
		}
		return nil, fmt.Errorf("failed to store fulfillment order: %w", orderError(err))
	}
	s.cache.Invalidate(ctx)

	recordAudit(ctx, s.logs, logger, models.WebhookSourceGelato, "order_created", order.ID.String(), vendorResponse(vendorOrder), nil)
	meter.Count("fulfillment.submit.succeeded", 1)
	logger.Info("order submitted to fulfillment", "order_id", order.ID, "gelato_order_id", vendorOrder.ID, "items", len(req.Items), "skipped", len(skipped))

	span.Status = sentry.SpanStatusOK
	return &SubmitResult{VendorOrderID: vendorOrder.ID, SkippedItems: skipped}, nil
}

func (s *FulfillmentService) buildOrderRequest(ctx context.Context, order *models.Order) (gelato.OrderRequest, []string, error) {
	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	mappings, err := s.mappings.ByLocalIDs(ctx, productIDs)
	if err != nil {
		return gelato.OrderRequest{}, nil, fmt.Errorf("failed to load product mappings: %w", err)
	}

	var (
		items   []gelato.OrderItem
		skipped []string
	)
	for _, item := range order.Items {
		mapping, ok := mappings[item.ProductID]
		if !ok {
			skipped = append(skipped, item.ID.String())
			continue
		}
		vendorItem := gelato.OrderItem{
			ItemReferenceID: item.ID.String(),
			ProductUID:      mapping.GelatoProductUID,
			Quantity:        item.Quantity,
		}
		if item.Image != "" {
			vendorItem.Files = []gelato.File{{Type: "default", URL: item.Image}}
		}
		items = append(items, vendorItem)
	}
	if len(items) == 0 {
		return gelato.OrderRequest{}, skipped, ErrNoMappedItems
	}

	firstName, lastName := order.ShippingNameParts()
	return gelato.OrderRequest{
		OrderType:           "order",
		OrderReferenceID:    order.ID.String(),
		CustomerReferenceID: order.UserID,
		Currency:            strings.ToUpper(order.Currency),
		Items:               items,
		ShippingAddress: gelato.Address{
			FirstName:    firstName,
			LastName:     lastName,
			AddressLine1: order.ShippingAddress,
			City:         order.ShippingCity,
			Country:      order.ShippingCountry,
			PostCode:     order.ShippingZipCode,
			Email:        order.ShippingEmail,
		},
	}, skipped, nil
}

// SyncStatus copies the vendor status and first shipment onto the order and
// advances the order status when the vendor reports progress.
func (s *FulfillmentService) SyncStatus(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.fulfillment.sync",
		sentry.WithOpName("service.fulfillment"),
		sentry.WithDescription("SyncStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderError(err)
	}
	if order.GelatoOrderID == "" {
		return nil, UserError{Message: "order has not been submitted to fulfillment"}
	}

	vendorOrder, err := s.vendor.GetOrder(ctx, order.GelatoOrderID)
	if err != nil {
		logVendorError(logger, "failed to fetch fulfillment order", err, "order_id", order.ID)
		return nil, fmt.Errorf("failed to fetch fulfillment order: %w", err)
	}

	vendorStatus := vendorOrder.CurrentStatus()
	update := db.TrackingUpdate{VendorStatus: vendorStatus}
	var target models.OrderStatus
	if len(vendorOrder.Shipments) > 0 {
		shipment := vendorOrder.Shipments[0]
		update.TrackingURL = shipment.TrackingURL
		update.TrackingNumber = shipment.TrackingCode
		update.Carrier = shipment.CarrierName
		if shippedAt, ok := shipment.ShippedAt(); ok {
			update.ShippedAt = &shippedAt
			target = models.StatusShipped
		}
	}
	switch strings.ToLower(vendorStatus) {
	case "delivered":
		target = models.StatusDelivered
	case "shipped":
		target = models.StatusShipped
	case "cancelled", "canceled":
		target = models.StatusCancelled
	}

	if err := s.orders.UpdateTracking(ctx, order.ID, update); err != nil {
		return nil, fmt.Errorf("failed to store fulfillment status: %w", orderError(err))
	}

	if target != "" && target != order.Status {
		if err := s.orders.Transition(ctx, order.ID, target); err != nil {
			if !errors.Is(err, db.ErrInvalidStatusTransition) {
				return nil, fmt.Errorf("failed to update order status: %w", err)
			}
			logger.Warn("vendor status does not fit local order status", "order_id", order.ID, "status", order.Status, "vendor_status", vendorStatus)
		}
	}
	s.cache.Invalidate(ctx)

	logger.Info("fulfillment status synced", "order_id", order.ID, "vendor_status", vendorStatus)
	span.Status = sentry.SpanStatusOK
	return s.orders.GetByID(ctx, order.ID)
}

// CancelOrder cancels the vendor order and the local order.
func (s *FulfillmentService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	logger := s.loggerFromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderError(err)
	}
	if order.GelatoOrderID == "" {
		return nil, UserError{Message: "order has not been submitted to fulfillment"}
	}
	if order.Status == models.StatusCancelled {
		return order, nil
	}
	if order.Status == models.StatusDelivered || !models.CanTransition(order.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("%w: %s orders cannot be cancelled at the vendor", ErrInvalidStatusTransition, order.Status)
	}

	if err := s.vendor.CancelOrder(ctx, order.GelatoOrderID); err != nil {
		logVendorError(logger, "failed to cancel fulfillment order", err, "order_id", order.ID)
		recordAudit(ctx, s.logs, logger, models.WebhookSourceGelato, "order_cancel_failed", order.ID.String(), map[string]string{"gelato_order_id": order.GelatoOrderID}, err)
		return nil, fmt.Errorf("failed to cancel fulfillment order: %w", err)
	}
	recordAudit(ctx, s.logs, logger, models.WebhookSourceGelato, "order_cancelled", order.ID.String(), map[string]string{"gelato_order_id": order.GelatoOrderID}, nil)

	if err := s.orders.UpdateTracking(ctx, order.ID, db.TrackingUpdate{VendorStatus: "cancelled"}); err != nil {
		return nil, fmt.Errorf("failed to store fulfillment status: %w", orderError(err))
	}
	if err := s.orders.Transition(ctx, order.ID, models.StatusCancelled); err != nil {
		return nil, orderError(err)
	}
	s.cache.Invalidate(ctx)

	logger.Info("fulfillment order cancelled", "order_id", order.ID, "gelato_order_id", order.GelatoOrderID)
	return s.orders.GetByID(ctx, order.ID)
}

func vendorResponse(order *gelato.Order) any {
	if len(order.Raw) > 0 {
		return order.Raw
	}
	return order
}

// logVendorError logs vendor detail server side; callers only surface a
// short message.
func logVendorError(logger *slog.Logger, msg string, err error, args ...any) {
	var apiErr *gelato.APIError
	if errors.As(err, &apiErr) {
		args = append(args, "status", apiErr.StatusCode, "body", apiErr.Body)
	}
	logger.Error(msg, append(args, "error", err)...)
}
