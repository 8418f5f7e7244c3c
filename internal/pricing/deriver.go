// Package pricing holds the money rules: display price derivation, payment
// fee estimates, order profit and profitability aggregates. Amounts are
// integer cents; intermediate math uses decimal so tier boundaries are exact.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidBaseCost = errors.New("base cost must be positive")

var (
	vatRate      = decimal.RequireFromString("0.21")
	anchorMargin = decimal.RequireFromString("0.35")

	hundred = decimal.NewFromInt(100)
	five    = decimal.NewFromInt(5)
	ten     = decimal.NewFromInt(10)
	fifteen = decimal.NewFromInt(15)
	thirty  = decimal.NewFromInt(30)
	forty   = decimal.NewFromInt(40)
	fifty   = decimal.NewFromInt(50)

	oneCent    = decimal.RequireFromString("0.01")
	fiveCents  = decimal.RequireFromString("0.05")
	anchorLow  = decimal.RequireFromString("4.99")
	anchorHigh = decimal.RequireFromString("9.99")
)

// DisplayPrices are the storefront prices derived from a vendor base cost.
// AnchorCents is the struck-through "original" price shown next to SaleCents.
type DisplayPrices struct {
	SaleCents   int64 `json:"sale_price_cents"`
	AnchorCents int64 `json:"anchor_price_cents"`
}

// DeriveDisplayPrices applies VAT and the attractive-price rounding tiers to a
// vendor base cost.
func DeriveDisplayPrices(baseCents int64) (DisplayPrices, error) {
	if baseCents <= 0 {
		return DisplayPrices{}, ErrInvalidBaseCost
	}

	withVAT := withVAT(baseCents)
	return DisplayPrices{
		SaleCents:   toCents(salePrice(withVAT)),
		AnchorCents: toCents(anchorPrice(withVAT)),
	}, nil
}

// SalePrice returns only the sale price for baseCents.
func SalePrice(baseCents int64) (int64, error) {
	prices, err := DeriveDisplayPrices(baseCents)
	return prices.SaleCents, err
}

// AnchorPrice returns only the anchor price for baseCents.
func AnchorPrice(baseCents int64) (int64, error) {
	prices, err := DeriveDisplayPrices(baseCents)
	return prices.AnchorCents, err
}

func withVAT(baseCents int64) decimal.Decimal {
	return fromCents(baseCents).Mul(decimal.NewFromInt(1).Add(vatRate))
}

func salePrice(withVAT decimal.Decimal) decimal.Decimal {
	switch {
	case withVAT.LessThan(ten):
		return withVAT.Ceil().Sub(oneCent)
	case withVAT.LessThan(thirty):
		return withVAT.Ceil().Sub(fiveCents)
	case withVAT.LessThan(fifty):
		return roundToMultiple(withVAT, five).Sub(oneCent)
	default:
		rounded := roundToMultiple(withVAT, ten)
		if rounded.Equal(withVAT) {
			return rounded
		}
		return rounded.Sub(oneCent)
	}
}

func anchorPrice(withVAT decimal.Decimal) decimal.Decimal {
	anchor := withVAT.Mul(decimal.NewFromInt(1).Add(anchorMargin))
	switch {
	case anchor.LessThan(fifteen):
		return anchor.Ceil().Add(anchorLow)
	case anchor.LessThan(forty):
		return anchor.Div(five).Ceil().Mul(five).Add(anchorLow)
	default:
		return anchor.Div(ten).Ceil().Mul(ten).Add(anchorHigh)
	}
}

// roundToMultiple rounds half up to the nearest multiple of step.
func roundToMultiple(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Round(0).Mul(step)
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func toCents(v decimal.Decimal) int64 {
	return v.Mul(hundred).Round(0).IntPart()
}
