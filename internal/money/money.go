// Package money converts between display amounts and the integer
// micro-unit ledger values the engine settles in.
package money

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places in one micro-unit.
const Scale = 6

var (
	ErrNegative  = errors.New("money: amount must not be negative")
	ErrPrecision = errors.New("money: amount has more than 6 decimal places")
)

// ParseAmount parses a display amount such as "10" or "2.5" into micro-units.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("money: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegative
	}
	if !d.Equal(d.Truncate(Scale)) {
		return nil, ErrPrecision
	}
	return d.Shift(Scale).BigInt(), nil
}

// ParseMicros parses a decimal string of micro-units, the form ledger
// values take in events, snapshots and storage.
func ParseMicros(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("money: %q is not an integer micro-unit value", s)
	}
	if v.Sign() < 0 {
		return nil, ErrNegative
	}
	return v, nil
}

// Decimal returns micro-units as a display decimal.
func Decimal(micros *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(micros, -Scale)
}

// Format renders micro-units with the given number of decimal places,
// rounding half away from zero.
func Format(micros *big.Int, places int32) string {
	return Decimal(micros).StringFixed(places)
}

// FormatMicrosString is Format for a ledger string. Unparsable input is
// returned unchanged.
func FormatMicrosString(s string, places int32) string {
	v, err := ParseMicros(s)
	if err != nil {
		return s
	}
	return Format(v, places)
}

// ChangePercent returns (final - initial) / initial * 100, rounded to two
// places. A zero initial ledger reports zero.
func ChangePercent(initial, final *big.Int) decimal.Decimal {
	if initial.Sign() == 0 {
		return decimal.Zero
	}
	from := decimal.NewFromBigInt(initial, 0)
	to := decimal.NewFromBigInt(final, 0)
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Round(2)
}
