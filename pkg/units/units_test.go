package units

import (
	"errors"
	"math/big"
	"testing"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1000", "1000"},
		{"0x10", "16"},
		{"1ether", "1000000000000000000"},
		{"1.5 ether", "1500000000000000000"},
		{"2eth", "2000000000000000000"},
		{"10 finney", "10000000000000000"},
		{"3gwei", "3000000000"},
		{"7 wei", "7"},
		{" 0.01ETHER ", "10000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "-1ether", "0.5wei", "1.2.3ether"} {
		if _, err := Parse(in); !errors.Is(err, arcerrors.ErrInvalidInput) {
			t.Errorf("Parse(%q) err = %v", in, err)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		v        *big.Int
		decimals uint64
		want     string
	}{
		{MustParse("1.5ether"), 18, "1.5"},
		{MustParse("1ether"), 18, "1"},
		{big.NewInt(1), 18, "0.000000000000000001"},
		{big.NewInt(-250), 2, "-2.5"},
		{nil, 18, "0"},
		{big.NewInt(42), 0, "42"},
	}
	for _, tt := range tests {
		if got := Format(tt.v, tt.decimals); got != tt.want {
			t.Errorf("Format(%v, %d) = %q, want %q", tt.v, tt.decimals, got, tt.want)
		}
	}
	if got := Ether(MustParse("2ether")); got != "2" {
		t.Errorf("Ether = %q", got)
	}
}
