package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents). Comparisons are exact integer comparisons.
type Money int64

const monetaryPrecision = 2

var maxMoney = decimal.NewFromInt(math.MaxInt64)

// ParseMoney parses a positive decimal string, rounding half away from zero
// to two decimal places.
func ParseMoney(v string) (Money, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
	}
	minor := d.Round(monetaryPrecision).Shift(monetaryPrecision)
	if !minor.IsPositive() || minor.GreaterThan(maxMoney) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
	}
	return Money(minor.IntPart()), nil
}

// MustParseMoney is ParseMoney for constants in tests and defaults.
func MustParseMoney(v string) Money {
	m, err := ParseMoney(v)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -monetaryPrecision)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(monetaryPrecision)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("money must be a decimal string: %w", err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*m = Money(d.Round(monetaryPrecision).Shift(monetaryPrecision).IntPart())
	return nil
}
