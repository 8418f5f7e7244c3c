package stripe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	stripeapi "github.com/stripe/stripe-go/v84"
)

type Client struct {
	api *stripeapi.Client
}

// NewClient builds an API client. A nil httpClient uses the library default.
func NewClient(secretKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		return &Client{api: stripeapi.NewClient(secretKey)}
	}
	backends := stripeapi.NewBackendsWithConfig(&stripeapi.BackendConfig{HTTPClient: httpClient})
	return &Client{api: stripeapi.NewClient(secretKey, stripeapi.WithBackends(backends))}
}

type Refund struct {
	ID          string
	AmountCents int64
}

// Refund refunds a payment intent. A nil amount refunds the full charge.
func (c *Client) Refund(ctx context.Context, paymentIntentID string, amountCents *int64) (*Refund, error) {
	params := &stripeapi.RefundCreateParams{
		PaymentIntent: stripeapi.String(paymentIntentID),
	}
	if amountCents != nil {
		params.Amount = stripeapi.Int64(*amountCents)
	}

	refund, err := c.api.V1Refunds.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}
	return &Refund{ID: refund.ID, AmountCents: refund.Amount}, nil
}

type PaymentIntent struct {
	ID            string    `json:"id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Created       time.Time `json:"created"`
	PaymentMethod string    `json:"payment_method,omitempty"`
}

func (p *PaymentIntent) Succeeded() bool {
	return p.Status == string(stripeapi.PaymentIntentStatusSucceeded)
}

func (c *Client) PaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	intent, err := c.api.V1PaymentIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	out := &PaymentIntent{
		ID:          intent.ID,
		AmountCents: intent.Amount,
		Currency:    string(intent.Currency),
		Status:      string(intent.Status),
		Created:     time.Unix(intent.Created, 0).UTC(),
	}
	if len(intent.PaymentMethodTypes) > 0 {
		out.PaymentMethod = intent.PaymentMethodTypes[0]
	}
	return out, nil
}
