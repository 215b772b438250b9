package erc20

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
)

// Scale converts a raw on-chain amount into token units.
func Scale(raw *big.Int, decimals uint8) *big.Float {
	f := new(big.Float).SetPrec(256).SetInt(raw)
	return f.Quo(f, new(big.Float).SetPrec(256).SetInt(pow10(int(decimals))))
}

// ParseUnits converts a decimal amount in token units ("7500000", "0.5")
// into raw on-chain units.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(pow10(int(decimals))))
	if !scaled.IsInt() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", s, decimals)
	}
	return new(big.Int).Set(scaled.Num()), nil
}

// Format renders a scaled amount with thousands separators: 1234567.89
// becomes "1,234,567.89".
func Format(f *big.Float) string {
	v, _ := f.Float64()
	return humanize.CommafWithDigits(v, 2)
}

// Short renders a scaled amount in compact form: 7,500,000 becomes "7.5M".
func Short(f *big.Float) string {
	v, _ := f.Float64()
	abs := math.Abs(v)
	switch {
	case abs >= 1e12:
		return trimZeros(fmt.Sprintf("%.2f", v/1e12)) + "T"
	case abs >= 1e9:
		return trimZeros(fmt.Sprintf("%.2f", v/1e9)) + "B"
	case abs >= 1e6:
		return trimZeros(fmt.Sprintf("%.2f", v/1e6)) + "M"
	case abs >= 1e3:
		return trimZeros(fmt.Sprintf("%.2f", v/1e3)) + "K"
	default:
		return trimZeros(fmt.Sprintf("%.2f", v))
	}
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
