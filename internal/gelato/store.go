package gelato

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sifrokapp/sifrok/internal/retry"
)

var ErrStoreNotConfigured = errors.New("gelato store id is not configured")

type StoreProductRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Variants    []StoreVariant `json:"variants"`
	IsAvailable bool           `json:"isAvailable"`
	PreviewURL  string         `json:"previewUrl,omitempty"`
	RetailPrice *Money         `json:"retailPrice,omitempty"`
}

type StoreVariant struct {
	ProductUID string `json:"productUid"`
	Title      string `json:"title"`
	Files      []File `json:"files"`
}

// Money is sent as a JSON number in major units.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// EuroCents builds a retail price from cents.
func EuroCents(cents int64) *Money {
	return &Money{Amount: decimal.New(cents, -2).InexactFloat64(), Currency: "EUR"}
}

type StoreProduct struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Raw   json.RawMessage `json:"-"`
}

func (c *Client) CreateStoreProduct(ctx context.Context, req StoreProductRequest) (*StoreProduct, error) {
	if c.storeID == "" {
		return nil, ErrStoreNotConfigured
	}

	var product StoreProduct
	path := "/stores/" + url.PathEscape(c.storeID) + "/products"
	raw, err := c.do(ctx, http.MethodPost, c.ecommerceURL, path, req, &product)
	if err != nil {
		return nil, err
	}
	product.Raw = raw
	return &product, nil
}

// StoreProductPolicy lists the store product failures worth another attempt:
// a 400 while a retail price is set is retried without the price, and
// throttling or vendor outages are retried unchanged.
func StoreProductPolicy(maxAttempts uint) retry.Policy[StoreProductRequest] {
	return retry.Policy[StoreProductRequest]{
		MaxAttempts:     maxAttempts,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Rules: []retry.Rule[StoreProductRequest]{
			{
				Name: "drop_retail_price",
				Matches: func(err error, req StoreProductRequest) bool {
					return req.RetailPrice != nil && StatusCode(err) == http.StatusBadRequest
				},
				Degrade: DropRetailPrice,
			},
			{
				Name: "vendor_unavailable",
				Matches: func(err error, _ StoreProductRequest) bool {
					var apiErr *APIError
					return errors.As(err, &apiErr) && apiErr.Retryable()
				},
			},
		},
	}
}

func DropRetailPrice(req StoreProductRequest) StoreProductRequest {
	req.RetailPrice = nil
	return req
}
