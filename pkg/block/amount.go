package block

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AmountScale fixes the rational representation of a coin amount at three
// decimal digits — enough to hold the 3.125 coinbase reward exactly without
// floating point drift, and the scale every amount in the system shares.
const AmountScale = 1000

// Amount is a fixed-point coin quantity, stored as an integer count of
// 1/AmountScale units. Two amounts are equal iff their underlying integers
// are equal; there is no floating point comparison anywhere in the system.
type Amount int64

// NewAmount converts a decimal float (e.g. the reward constant) to an Amount.
func NewAmount(f float64) Amount {
	return Amount(math.Round(f * AmountScale))
}

// ParseAmount parses the canonical decimal string form of an amount, the
// same string used as the signature payload in §4.4 rule 5.
func ParseAmount(s string) (Amount, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewAmount(f), nil
}

// String renders the amount as a decimal string with no trailing zeros and
// no trailing decimal point, matching the payload rule in §4.4 and the
// Design Notes requirement for deterministic rendering.
func (a Amount) String() string {
	neg := a < 0
	v := int64(a)
	if neg {
		v = -v
	}
	whole := v / AmountScale
	frac := v % AmountScale
	if frac == 0 {
		if neg {
			return "-" + strconv.FormatInt(whole, 10)
		}
		return strconv.FormatInt(whole, 10)
	}
	fracStr := strconv.FormatInt(frac, 10)
	for len(fracStr) < len(strconv.Itoa(AmountScale))-1 {
		fracStr = "0" + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")
	out := strconv.FormatInt(whole, 10) + "." + fracStr
	if neg {
		out = "-" + out
	}
	return out
}

// MarshalJSON renders the amount as a plain JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts any JSON number and rounds it to the fixed scale.
func (a *Amount) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	*a = NewAmount(f)
	return nil
}

// Float64 returns the floating point value, for display only — never for
// comparison or signing.
func (a Amount) Float64() float64 {
	return float64(a) / AmountScale
}
