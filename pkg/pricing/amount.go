package pricing

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// MaxAmount is the largest usable price in major units. Larger values are
// treated like negative ones: present but not usable.
const MaxAmount = 1e13

// Amount is an optional monetary value.
//
// Inventory payloads are loosely typed: prices arrive as JSON numbers, as
// numeric strings, or not at all. Decoding never fails on a malformed value;
// anything that is not a finite number decodes to an absent Amount.
type Amount struct {
	value float64
	set   bool
}

// NewAmount returns a present Amount holding v.
func NewAmount(v float64) Amount {
	return Amount{value: v, set: true}
}

// Value returns the amount and whether it is present and finite.
func (a Amount) Value() (float64, bool) {
	if !a.set || math.IsNaN(a.value) || math.IsInf(a.value, 0) {
		return 0, false
	}
	return a.value, true
}

// Usable reports whether the amount is present, finite, non-negative and
// at most MaxAmount.
func (a Amount) Usable() bool {
	v, ok := a.Value()
	return ok && v >= 0 && v <= MaxAmount
}

// IsZero reports whether the amount is absent. Used by omitzero.
func (a Amount) IsZero() bool {
	return !a.set
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}

	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = bytes.TrimSpace([]byte(s))
	}

	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*a = NewAmount(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	v, ok := a.Value()
	if !ok {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'f', -1, 64), nil
}

// PassengerPrices holds per-passenger-type prices for one room occupancy.
type PassengerPrices struct {
	Adult  Amount `json:"adult,omitzero"`
	Child  Amount `json:"child,omitzero"`
	Infant Amount `json:"infant,omitzero"`
}

// UnmarshalJSON tolerates non-object cells by treating them as empty.
func (p *PassengerPrices) UnmarshalJSON(data []byte) error {
	*p = PassengerPrices{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	type plain PassengerPrices
	var decoded plain
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	*p = PassengerPrices(decoded)
	return nil
}

// Fare is a per-passenger fare. Flight payloads carry it as an object
// ({"cost": 200}); flat transport and activity payloads carry a bare number.
// Both decode into Cost.
type Fare struct {
	Cost Amount `json:"cost,omitzero"`
}

// IsZero reports whether the fare carries no cost. Used by omitzero.
func (f Fare) IsZero() bool {
	return f.Cost.IsZero()
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Fare) UnmarshalJSON(data []byte) error {
	*f = Fare{}
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '{' {
		type plain Fare
		var decoded plain
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil
		}
		*f = Fare(decoded)
		return nil
	}
	return f.Cost.UnmarshalJSON(raw)
}

// PassengerFares groups fares by passenger type.
type PassengerFares struct {
	Adult  Fare `json:"adult,omitzero"`
	Child  Fare `json:"child,omitzero"`
	Infant Fare `json:"infant,omitzero"`
}

// UnmarshalJSON tolerates a non-object pricing block.
func (p *PassengerFares) UnmarshalJSON(data []byte) error {
	*p = PassengerFares{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	type plain PassengerFares
	var decoded plain
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	*p = PassengerFares(decoded)
	return nil
}
