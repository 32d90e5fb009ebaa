package entities

import (
	"github.com/shopspring/decimal"

	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
)

// MaxMonetaryValue is the precision ceiling for monetary inputs; amounts
// above it are rejected rather than rounded.
var MaxMonetaryValue = decimal.RequireFromString("9999999999.99")

// ParseMoney parses a monetary amount with exact fixed-point semantics:
// at most two fractional digits, strictly positive, and within the
// precision ceiling. The value round-trips storage unchanged.
func ParseMoney(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, domainerrors.ValidationError(field, field+" must be a decimal number")
	}
	if d.Exponent() < -MoneyFractionalDigits {
		return decimal.Zero, domainerrors.ValidationError(field, field+" must have at most 2 decimal places")
	}
	if !d.IsPositive() {
		return decimal.Zero, domainerrors.ValidationError(field, field+" must be positive")
	}
	if d.GreaterThan(MaxMonetaryValue) {
		return decimal.Zero, domainerrors.ValidationError(field, field+" exceeds the maximum supported amount")
	}
	return d, nil
}
