package names

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Petname generates a deterministic 3-word name for an address using the
// BIP-39 word list, e.g. "leader-monkey-parrot".
func Petname(addr common.Address) string {
	// BIP-39 entropy must be 16..32 bytes; hash the 20-byte address to 32.
	entropy := crypto.Keccak256(addr.Bytes())
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "unknown"
	}
	words := strings.Fields(mnemonic)
	if len(words) < 3 {
		return "unknown"
	}
	return words[0] + "-" + words[1] + "-" + words[2]
}

// Display renders an address with its petname.
func Display(addr common.Address) string {
	return addr.Hex() + " (" + Petname(addr) + ")"
}
