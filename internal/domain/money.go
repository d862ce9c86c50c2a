/**
 * @description
 * Monetary amount handling for the payment service. Balances and prices are
 * stored as int64 minor units (cents) everywhere inside the service and in the
 * database, which keeps ledger arithmetic in integers. API payloads carry
 * amounts as decimal strings with exactly two fraction digits ("10.00"); this
 * file owns the conversion in both directions.
 *
 * @notes
 * - Floating point is never used for money. Parsing goes through
 *   shopspring/decimal and rejects anything with more than two fraction
 *   digits or outside the int64 cent range.
 */

package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMalformedAmount is returned when an amount string is not a valid
// fixed-point decimal with at most two fraction digits.
var ErrMalformedAmount = errors.New("malformed monetary amount")

var centsFactor = decimal.NewFromInt(100)

// ParseAmount converts a decimal string ("10.00", "0.05") into cents.
// Sign is preserved; range and scale are validated here, positivity rules
// belong to the callers.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if d.Exponent() < -2 {
		// More than two fraction digits would silently lose precision.
		return 0, fmt.Errorf("%w: %q has more than two fraction digits", ErrMalformedAmount, s)
	}
	cents := d.Mul(centsFactor)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedAmount, s)
	}
	return cents.IntPart(), nil
}

// FormatAmount renders cents as a decimal string with exactly two fraction
// digits, e.g. 1050 -> "10.50".
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
