package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyAmount is a monetary value in integer centavos. All ledger arithmetic
// happens on this type; conversion to major-unit decimals is strictly a
// presentation concern.
type MoneyAmount int64

func NewMoneyFromCentavos(centavos int64) MoneyAmount {
	return MoneyAmount(centavos)
}

// NewMoneyFromDecimal converts a major-unit decimal amount (e.g. "1234.56")
// into centavos, rounding half-up at the second decimal place.
func NewMoneyFromDecimal(d decimal.Decimal) MoneyAmount {
	return MoneyAmount(d.Shift(2).Round(0).IntPart())
}

func (m MoneyAmount) Centavos() int64 {
	return int64(m)
}

// Decimal returns the major-unit decimal value, for display and rate math.
func (m MoneyAmount) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Shift(-2)
}

func (m MoneyAmount) IsZero() bool     { return m == 0 }
func (m MoneyAmount) IsPositive() bool { return m > 0 }
func (m MoneyAmount) IsNegative() bool { return m < 0 }

func (m MoneyAmount) Add(other MoneyAmount) MoneyAmount { return m + other }
func (m MoneyAmount) Sub(other MoneyAmount) MoneyAmount { return m - other }

// MulRate multiplies the amount by a decimal rate and rounds the result
// half-up to the nearest centavo. This is one of the two defined rounding
// points (per-row interest, penalty accrual).
func (m MoneyAmount) MulRate(rate decimal.Decimal) MoneyAmount {
	return MoneyAmount(decimal.NewFromInt(int64(m)).Mul(rate).Round(0).IntPart())
}

// Min returns the smaller of m and other.
func (m MoneyAmount) Min(other MoneyAmount) MoneyAmount {
	if other < m {
		return other
	}
	return m
}

// String formats as a major-unit decimal with two places, e.g. "100000.00".
func (m MoneyAmount) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
