package gelato

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

var ErrPriceUnavailable = errors.New("gelato returned no unit price")

type productPrice struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// ProductPrice returns the vendor base cost in cents for a single unit.
func (c *Client) ProductPrice(ctx context.Context, productUID string) (int64, error) {
	var prices []productPrice
	path := "/products/" + url.PathEscape(productUID) + "/prices"
	if _, err := c.do(ctx, http.MethodGet, c.productURL, path, nil, &prices); err != nil {
		return 0, err
	}

	for _, p := range prices {
		if p.Quantity == 1 && p.Price.IsPositive() {
			return p.Price.Shift(2).Round(0).IntPart(), nil
		}
	}
	return 0, fmt.Errorf("%w for %s", ErrPriceUnavailable, productUID)
}
