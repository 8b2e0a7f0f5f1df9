package namehash

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

func TestNameHash(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "0x0000000000000000000000000000000000000000000000000000000000000000"},
		{"eth", "0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae"},
		{"foo.eth", "0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NameHash(tt.name); got != common.HexToHash(tt.want) {
				t.Errorf("NameHash(%q) = %s, want %s", tt.name, got.Hex(), tt.want)
			}
		})
	}
}

func TestSubnodeMatchesNameHash(t *testing.T) {
	eth := NameHash("eth")
	if got := Subnode(eth, LabelHash("foo")); got != NameHash("foo.eth") {
		t.Errorf("Subnode(eth, foo) = %s, want %s", got.Hex(), NameHash("foo.eth").Hex())
	}
}

func TestSplit(t *testing.T) {
	label, parent := Split("alice.aragonid.eth")
	if label != "alice" || parent != "aragonid.eth" {
		t.Errorf("Split = %q, %q", label, parent)
	}
	label, parent = Split("eth")
	if label != "eth" || parent != "" {
		t.Errorf("Split(eth) = %q, %q", label, parent)
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x000000000000000000000000000000000000dEaD")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr != BurnAddress {
		t.Errorf("addr = %s", addr.Hex())
	}
	if _, err := ParseAddress("not-an-address"); !errors.Is(err, arcerrors.ErrInvalidInput) {
		t.Errorf("ParseAddress(bad) err = %v, want ErrInvalidInput", err)
	}
}

func TestParseLabel(t *testing.T) {
	h, err := ParseLabel("name")
	if err != nil || h != LabelHash("name") {
		t.Fatalf("ParseLabel(name) = %s, %v", h.Hex(), err)
	}
	h2, err := ParseLabel(h.Hex())
	if err != nil || h2 != h {
		t.Fatalf("ParseLabel(hex) = %s, %v", h2.Hex(), err)
	}
	for _, bad := range []string{"", "a.b"} {
		if _, err := ParseLabel(bad); !errors.Is(err, arcerrors.ErrInvalidInput) {
			t.Errorf("ParseLabel(%q) err = %v", bad, err)
		}
	}
}

func TestParseHashRejectsShort(t *testing.T) {
	if _, err := ParseHash("0x1234"); err == nil {
		t.Fatal("expected error for short hash")
	}
	if _, err := ParseHash("zz"); err == nil {
		t.Fatal("expected error for non-hex hash")
	}
}
