package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Token amounts cross every boundary of this system as decimal strings, never
// as floats. All arithmetic goes through big.Rat so amounts like 0.01 * 0.9
// stay exact.

func parseDecimal(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount: %q", s)
	}
	return r, nil
}

// AddDecimal returns a+b for decimal-string amounts.
func AddDecimal(a, b string) (string, error) {
	ra, err := parseDecimal(a)
	if err != nil {
		return "", err
	}
	rb, err := parseDecimal(b)
	if err != nil {
		return "", err
	}
	return FormatRat(new(big.Rat).Add(ra, rb)), nil
}

// MulDecimal returns amount*rate for decimal-string operands.
func MulDecimal(amount, rate string) (string, error) {
	ra, err := parseDecimal(amount)
	if err != nil {
		return "", err
	}
	rr, err := parseDecimal(rate)
	if err != nil {
		return "", err
	}
	return FormatRat(new(big.Rat).Mul(ra, rr)), nil
}

// DivDecimal returns a/b, erroring on a zero divisor.
func DivDecimal(a, b string) (string, error) {
	ra, err := parseDecimal(a)
	if err != nil {
		return "", err
	}
	rb, err := parseDecimal(b)
	if err != nil {
		return "", err
	}
	if rb.Sign() == 0 {
		return "", fmt.Errorf("division by zero")
	}
	return FormatRat(new(big.Rat).Quo(ra, rb)), nil
}

// IsPositiveDecimal reports whether s parses as a decimal strictly above zero.
func IsPositiveDecimal(s string) bool {
	r, err := parseDecimal(s)
	return err == nil && r.Sign() > 0
}

// FormatRat renders a rational as a plain decimal string with trailing
// zeros trimmed, up to 18 fractional digits.
func FormatRat(r *big.Rat) string {
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// ToWei converts a decimal token amount to its 18-decimals integer
// representation, truncating any precision beyond 18 digits.
func ToWei(amount string) (*big.Int, error) {
	r, err := parseDecimal(amount)
	if err != nil {
		return nil, err
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}

// FromWei converts an 18-decimals integer amount back to a decimal string.
func FromWei(wei *big.Int) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return FormatRat(new(big.Rat).SetFrac(new(big.Int).Set(wei), scale))
}
