package swap

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

var (
	// MaxI128 is the largest value of the signed 128-bit domain.
	MaxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	// MinI128 is the smallest value of the signed 128-bit domain.
	MinI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// InI128 reports whether v fits the signed 128-bit domain.
func InI128(v *big.Int) bool {
	return v != nil && v.Cmp(MinI128) >= 0 && v.Cmp(MaxI128) <= 0
}

// ParseI128 parses a canonical base-10 integer. Leading zeros, a plus sign and
// surrounding whitespace are rejected so that every value has one spelling.
func ParseI128(raw string) (*big.Int, error) {
	if raw == "" || strings.TrimSpace(raw) != raw {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.String() != raw {
		return nil, fmt.Errorf("%w: %q is not a canonical integer", ErrInvalidAmount, raw)
	}
	if !InI128(v) {
		return nil, fmt.Errorf("%w: %s outside i128", ErrInvalidAmount, raw)
	}
	return v, nil
}

// ConvertAmount computes amountIn * rateNum / rateDen in the i128 domain. The
// division truncates toward zero, so (-1 * 1) / 2 == 0.
func ConvertAmount(amountIn, rateNum, rateDen *big.Int) (*big.Int, error) {
	for _, v := range []*big.Int{amountIn, rateNum, rateDen} {
		if v == nil {
			return nil, fmt.Errorf("%w: missing operand", ErrInvalidAmount)
		}
		if !InI128(v) {
			return nil, fmt.Errorf("%w: operand %s outside i128", ErrInvalidAmount, v)
		}
	}
	product := new(big.Int).Mul(amountIn, rateNum)
	if !InI128(product) {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, amountIn, rateNum)
	}
	if rateDen.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Quo(product, rateDen)
	// MinI128 / -1 is the only quotient that can leave the domain.
	if !InI128(out) {
		return nil, fmt.Errorf("%w: %s / %s", ErrOverflow, product, rateDen)
	}
	return out, nil
}

func incrementCount(count uint32) (uint32, error) {
	if count == math.MaxUint32 {
		return 0, fmt.Errorf("%w: swap count", ErrOverflow)
	}
	return count + 1, nil
}
