// Package identity provides secp256k1 account identities: keypairs whose
// public identity is a 20-byte address, and recoverable signatures over
// 32-byte digests.
package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// SignatureLength is the length of a recoverable signature [R || S || V].
const SignatureLength = crypto.SignatureLength

var (
	// ErrInvalidEncoding indicates an invalid encoded key or signature.
	ErrInvalidEncoding = errors.New("invalid encoding")
	// ErrInvalidSignature indicates a signature that does not recover.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer signs digests on behalf of an address.
type Signer interface {
	Address() common.Address
	Sign(digest []byte) ([]byte, error)
}

// Provider loads or generates a signer.
type Provider interface {
	Load(ctx context.Context) (Signer, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) (Signer, error)

// Load implements Provider.
func (f ProviderFunc) Load(ctx context.Context) (Signer, error) {
	return f(ctx)
}

// Keypair is a secp256k1 private key.
type Keypair struct {
	private *ecdsa.PrivateKey
}

// Generate creates a new random keypair.
func Generate() (*Keypair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Keypair{private: priv}, nil
}

// FromPrivate wraps an existing key.
func FromPrivate(priv *ecdsa.PrivateKey) *Keypair { return &Keypair{private: priv} }

// FromHex parses a hex private key, with or without 0x.
func FromHex(s string) (*Keypair, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidEncoding, err)
	}
	return &Keypair{private: priv}, nil
}

// FromSeed derives a keypair from a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("%w: seed must be 32 bytes", ErrInvalidEncoding)
	}
	priv, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: seed: %v", ErrInvalidEncoding, err)
	}
	return &Keypair{private: priv}, nil
}

// FromMnemonic derives a keypair from a BIP-39 mnemonic: the key is the
// keccak256 of the mnemonic seed.
func FromMnemonic(mnemonic, passphrase string) (*Keypair, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: mnemonic: %v", ErrInvalidEncoding, err)
	}
	return FromSeed(crypto.Keccak256(seed))
}

// Private returns the underlying key.
func (k *Keypair) Private() *ecdsa.PrivateKey { return k.private }

// Address returns the account address of the key.
func (k *Keypair) Address() common.Address { return crypto.PubkeyToAddress(k.private.PublicKey) }

// PublicKey returns the compressed public key.
func (k *Keypair) PublicKey() []byte { return crypto.CompressPubkey(&k.private.PublicKey) }

// Hex returns the private key as 0x hex.
func (k *Keypair) Hex() string { return hexutil.Encode(crypto.FromECDSA(k.private)) }

// Sign produces a recoverable signature over a 32-byte digest.
func (k *Keypair) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.private)
}

// Recover returns the address that signed digest.
func Recover(digest, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(sig))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over digest was made by addr.
func Verify(addr common.Address, digest, sig []byte) bool {
	got, err := Recover(digest, sig)
	return err == nil && got == addr
}

// EncodeSignature renders a signature as 0x hex.
func EncodeSignature(sig []byte) string { return hexutil.Encode(sig) }

// DecodeSignature parses a 0x hex signature.
func DecodeSignature(s string) ([]byte, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != SignatureLength {
		return nil, ErrInvalidEncoding
	}
	return b, nil
}
