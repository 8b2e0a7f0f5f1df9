// Package units parses and formats wei-denominated amounts.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

var suffixes = []struct {
	name  string
	scale *big.Int
}{
	{"ether", big.NewInt(params.Ether)},
	{"eth", big.NewInt(params.Ether)},
	{"finney", big.NewInt(params.Ether / 1000)},
	{"gwei", big.NewInt(params.GWei)},
	{"wei", big.NewInt(params.Wei)},
}

// Parse reads an amount such as "1.5ether", "200 gwei", "0x10" or "1000"
// (wei). Fractions are allowed with a unit suffix as long as they resolve
// to whole wei.
func Parse(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", arcerrors.ErrInvalidInput)
	}
	for _, suf := range suffixes {
		if num, ok := strings.CutSuffix(s, suf.name); ok {
			return scaled(strings.TrimSpace(num), suf.scale, s)
		}
	}
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount %q", arcerrors.ErrInvalidInput, s)
	}
	return v, nil
}

func scaled(num string, scale *big.Int, orig string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(num)
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount %q", arcerrors.ErrInvalidInput, orig)
	}
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: amount %q is not a whole number of wei", arcerrors.ErrInvalidInput, orig)
	}
	return new(big.Int).Set(r.Num()), nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Ether formats wei as a decimal ether amount without trailing zeros.
func Ether(wei *big.Int) string {
	return Format(wei, 18)
}

// Format renders v with the given number of decimals.
func Format(v *big.Int, decimals uint64) string {
	if v == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(decimals), nil)
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(v), scale, new(big.Int))
	out := q.String()
	if r.Sign() != 0 {
		frac := r.String()
		frac = strings.Repeat("0", int(decimals)-len(frac)) + frac //nolint:gosec
		out += "." + strings.TrimRight(frac, "0")
	}
	if v.Sign() < 0 {
		out = "-" + out
	}
	return out
}
