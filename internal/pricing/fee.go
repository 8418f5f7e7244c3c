package pricing

import "github.com/shopspring/decimal"

// The processor fee is estimated with a flat 2.9% + 0.30 per charge. Real
// fees vary by card type and region, so stored fees are approximations.
var (
	feeRate  = decimal.RequireFromString("0.029")
	feeFixed = decimal.NewFromInt(30)
)

// StripeFee estimates the processing fee for a charge, rounded half up to cents.
func StripeFee(totalCents int64) int64 {
	if totalCents <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalCents).Mul(feeRate).Add(feeFixed).Round(0).IntPart()
}
