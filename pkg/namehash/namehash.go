// Package namehash computes hierarchical name identifiers and parses the
// address and hash forms used on the registrar's public surfaces.
package namehash

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

var (
	// Root is the node of the empty name.
	Root = common.Hash{}

	// ZeroAddress is the "no owner" address.
	ZeroAddress = common.Address{}

	// BurnAddress receives burned value and tokens. Nothing can spend from it.
	BurnAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

// LabelHash returns keccak256(label).
func LabelHash(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(label))
}

// Subnode returns keccak256(parent ‖ label).
func Subnode(parent, label common.Hash) common.Hash {
	return crypto.Keccak256Hash(parent.Bytes(), label.Bytes())
}

// NameHash returns the node of a dot-separated name. The empty name maps to Root.
func NameHash(name string) common.Hash {
	node := Root
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		node = Subnode(node, LabelHash(labels[i]))
	}
	return node
}

// Split returns the leftmost label of name and the remaining parent name.
func Split(name string) (label, parent string) {
	label, parent, _ = strings.Cut(name, ".")
	return label, parent
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: address %q", arcerrors.ErrInvalidInput, s)
	}
	return common.HexToAddress(s), nil
}

// ParseHash parses a 0x-prefixed 32-byte hex hash.
func ParseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: hash %q", arcerrors.ErrInvalidInput, s)
	}
	return common.BytesToHash(b), nil
}

// ParseLabel accepts either a raw label or a 0x-prefixed label hash.
func ParseLabel(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") && len(s) == 2+2*common.HashLength {
		return ParseHash(s)
	}
	if s == "" || strings.Contains(s, ".") {
		return common.Hash{}, fmt.Errorf("%w: label %q", arcerrors.ErrInvalidInput, s)
	}
	return LabelHash(s), nil
}
