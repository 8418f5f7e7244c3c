package stripe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v84"
)

// CheckoutSession is the subset of a completed or expired checkout session
// the order reconciler needs.
type CheckoutSession struct {
	ID              string
	PaymentIntentID string
	UserID          string
	AmountTotal     int64
	Currency        string
	CustomerName    string
	CustomerEmail   string
	Shipping        ShippingAddress
	Items           []CheckoutItem
	// ItemsErr is set when metadata.items is present but unreadable.
	ItemsErr error
}

type ShippingAddress struct {
	Name       string
	Line1      string
	City       string
	PostalCode string
	Country    string
}

// CheckoutItem is one entry of the metadata.items descriptor written by the
// storefront when it creates the session. Price is in major units.
type CheckoutItem struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	VariantID   string          `json:"variantId"`
	VariantName string          `json:"variantName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
}

func (i CheckoutItem) PriceCents() int64 {
	return i.Price.Shift(2).Round(0).IntPart()
}

type shippingDetailsPayload struct {
	Name    string `json:"name"`
	Address *struct {
		Line1      string `json:"line1"`
		City       string `json:"city"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	} `json:"address"`
}

// shipping_details moved under collected_information in newer API versions;
// both locations are read.
type sessionShippingPayload struct {
	ShippingDetails      *shippingDetailsPayload `json:"shipping_details"`
	CollectedInformation *struct {
		ShippingDetails *shippingDetailsPayload `json:"shipping_details"`
	} `json:"collected_information"`
}

func ParseCheckoutSession(raw []byte) (*CheckoutSession, error) {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("invalid checkout session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("missing session ID")
	}

	var shipping sessionShippingPayload
	if err := json.Unmarshal(raw, &shipping); err != nil {
		return nil, fmt.Errorf("invalid checkout session shipping: %w", err)
	}

	out := &CheckoutSession{
		ID:          session.ID,
		AmountTotal: session.AmountTotal,
		Currency:    strings.ToLower(string(session.Currency)),
		UserID:      session.Metadata["userId"],
	}
	if out.UserID == "" {
		out.UserID = session.ClientReferenceID
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.CustomerDetails != nil {
		out.CustomerName = session.CustomerDetails.Name
		out.CustomerEmail = session.CustomerDetails.Email
	}
	if out.CustomerEmail == "" {
		out.CustomerEmail = session.CustomerEmail
	}

	details := shipping.ShippingDetails
	if details == nil && shipping.CollectedInformation != nil {
		details = shipping.CollectedInformation.ShippingDetails
	}
	if details != nil {
		out.Shipping.Name = details.Name
		if details.Address != nil {
			out.Shipping.Line1 = details.Address.Line1
			out.Shipping.City = details.Address.City
			out.Shipping.PostalCode = details.Address.PostalCode
			out.Shipping.Country = details.Address.Country
		}
	}
	if out.Shipping.Name == "" {
		out.Shipping.Name = out.CustomerName
	}

	if rawItems := session.Metadata["items"]; rawItems != "" {
		if err := json.Unmarshal([]byte(rawItems), &out.Items); err != nil {
			out.Items = nil
			out.ItemsErr = fmt.Errorf("invalid metadata items: %w", err)
		}
	}

	return out, nil
}

// ParsePaymentIntentID returns the id of a payment intent event object.
func ParsePaymentIntentID(raw []byte) (string, error) {
	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return "", fmt.Errorf("invalid payment intent: %w", err)
	}
	if intent.ID == "" {
		return "", fmt.Errorf("missing payment intent ID")
	}
	return intent.ID, nil
}

// ParseChargePaymentIntent returns the payment intent a charge belongs to.
// Charges created outside a payment intent yield an empty id.
func ParseChargePaymentIntent(raw []byte) (string, error) {
	var charge stripeapi.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return "", fmt.Errorf("invalid charge: %w", err)
	}
	if charge.PaymentIntent == nil {
		return "", nil
	}
	return charge.PaymentIntent.ID, nil
}
