package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusPaid       OrderStatus = "PAID"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusFailed     OrderStatus = "FAILED"
)

// orderTransitions lists the statuses each status may move to.
// CANCELLED is terminal. A DELIVERED order only leaves through a refund,
// which cancels it.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusPaid, StatusCancelled, StatusFailed},
	StatusPaid:       {StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {StatusCancelled},
	StatusFailed:     {StatusPaid},
}

// RevenueStatuses are the statuses whose orders count toward revenue figures.
var RevenueStatuses = []OrderStatus{StatusPaid, StatusProcessing, StatusShipped, StatusDelivered}

func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(raw)
	switch status {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusFailed:
		return status, true
	default:
		return "", false
	}
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every status that may transition into target.
func SourcesFor(target OrderStatus) []OrderStatus {
	sources := make([]OrderStatus, 0, 4)
	for _, from := range []OrderStatus{StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusFailed} {
		if CanTransition(from, target) {
			sources = append(sources, from)
		}
	}
	return sources
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s OrderStatus) CountsAsRevenue() bool {
	for _, status := range RevenueStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type Order struct {
	ID                  uuid.UUID   `json:"id"`
	UserID              string      `json:"user_id"`
	StripeSessionID     string      `json:"stripe_session_id"`
	StripePaymentID     string      `json:"stripe_payment_id,omitempty"`
	TotalCents          int64       `json:"total_cents"`
	Currency            string      `json:"currency"`
	Status              OrderStatus `json:"status"`
	ProductionCostCents *int64      `json:"production_cost_cents,omitempty"`
	StripeFeeCents      *int64      `json:"stripe_fee_cents,omitempty"`
	NetProfitCents      *int64      `json:"net_profit_cents,omitempty"`
	ShippingName        string      `json:"shipping_name"`
	ShippingEmail       string      `json:"shipping_email"`
	ShippingAddress     string      `json:"shipping_address"`
	ShippingCity        string      `json:"shipping_city"`
	ShippingZipCode     string      `json:"shipping_zip_code"`
	ShippingCountry     string      `json:"shipping_country"`
	GelatoOrderID       string      `json:"gelato_order_id,omitempty"`
	GelatoStatus        string      `json:"gelato_status,omitempty"`
	GelatoTrackingURL   string      `json:"gelato_tracking_url,omitempty"`
	TrackingNumber      string      `json:"tracking_number,omitempty"`
	Carrier             string      `json:"carrier,omitempty"`
	ShippedAt           *time.Time  `json:"shipped_at,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	Items               []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	VariantID   string    `json:"variant_id,omitempty"`
	VariantName string    `json:"variant_name,omitempty"`
	Quantity    int       `json:"quantity"`
	PriceCents  int64     `json:"price_cents"`
	Image       string    `json:"image,omitempty"`
}

// ShippingNameParts splits the shipping name at the first space.
func (o *Order) ShippingNameParts() (string, string) {
	first, last, _ := strings.Cut(o.ShippingName, " ")
	return first, last
}
