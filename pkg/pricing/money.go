package pricing

import (
	"math"
	"strconv"
)

// Money is an amount in minor currency units (cents).
type Money int64

// MaxMoney is the largest representable amount. Conversions and sums
// saturate at ±MaxMoney instead of wrapping around.
const MaxMoney = Money(math.MaxInt64)

// FromFloat rounds a major-unit amount to the nearest minor unit.
// Non-finite input yields zero; out of range input saturates.
func FromFloat(v float64) Money {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	cents := math.Round(v * 100)
	switch {
	case cents >= float64(MaxMoney):
		return MaxMoney
	case cents <= -float64(MaxMoney):
		return -MaxMoney
	}
	return Money(cents)
}

// Add returns m+o, saturating at ±MaxMoney.
func (m Money) Add(o Money) Money {
	sum := m + o
	switch {
	case o > 0 && sum < m:
		return MaxMoney
	case o < 0 && sum > m:
		return -MaxMoney
	}
	return sum
}

// Float returns the amount in major units.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String formats the amount with two decimals.
func (m Money) String() string {
	return strconv.FormatFloat(m.Float(), 'f', 2, 64)
}

// MarshalJSON renders the amount as a major-unit JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON reads a major-unit JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var a Amount
	if err := a.UnmarshalJSON(data); err != nil {
		return err
	}
	v, _ := a.Value()
	*m = FromFloat(v)
	return nil
}
