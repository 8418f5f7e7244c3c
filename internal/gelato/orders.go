package gelato

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type OrderRequest struct {
	OrderType           string      `json:"orderType"`
	OrderReferenceID    string      `json:"orderReferenceId"`
	CustomerReferenceID string      `json:"customerReferenceId,omitempty"`
	Currency            string      `json:"currency"`
	Items               []OrderItem `json:"items"`
	ShippingAddress     Address     `json:"shippingAddress"`
}

type OrderItem struct {
	ItemReferenceID string `json:"itemReferenceId"`
	ProductUID      string `json:"productUid"`
	Quantity        int    `json:"quantity"`
	Files           []File `json:"files,omitempty"`
}

type File struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Address struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	Country      string `json:"country"`
	PostCode     string `json:"postCode"`
	Email        string `json:"email"`
}

type Order struct {
	ID                string     `json:"id"`
	OrderReferenceID  string     `json:"orderReferenceId"`
	Status            string     `json:"status"`
	FulfillmentStatus string     `json:"fulfillmentStatus"`
	Shipments         []Shipment `json:"shipments"`
	// Raw is the vendor response as received, kept for audit logs.
	Raw json.RawMessage `json:"-"`
}

// CurrentStatus prefers the fulfillment status over the order status.
func (o *Order) CurrentStatus() string {
	if o.FulfillmentStatus != "" {
		return o.FulfillmentStatus
	}
	return o.Status
}

type Shipment struct {
	TrackingURL  string `json:"trackingUrl"`
	TrackingCode string `json:"trackingCode"`
	CarrierName  string `json:"carrierName"`
	ShippedDate  string `json:"shippedDate"`
}

// ShippedAt parses ShippedDate, accepting RFC 3339 or a bare date.
func (s Shipment) ShippedAt() (time.Time, bool) {
	if s.ShippedDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s.ShippedDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.OrderType == "" {
		req.OrderType = "order"
	}

	var order Order
	raw, err := c.do(ctx, http.MethodPost, c.orderURL, "/orders", req, &order)
	if err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, fmt.Errorf("gelato order response missing id")
	}
	order.Raw = raw
	return &order, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var order Order
	raw, err := c.do(ctx, http.MethodGet, c.orderURL, "/orders/"+url.PathEscape(id), nil, &order)
	if err != nil {
		return nil, err
	}
	order.Raw = raw
	return &order, nil
}

func (c *Client) CancelOrder(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.orderURL, "/orders/"+url.PathEscape(id), nil, nil)
	return err
}
