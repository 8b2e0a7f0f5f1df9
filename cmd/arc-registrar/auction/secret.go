package auction

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/gezibash/arc-registrar/pkg/identity"
)

const nonceSize = 24

var errNoPrivateKey = errors.New("signer does not expose a private key for bid secrets")

// bidKey derives the bid book key from the bidder's private key.
func bidKey(s identity.Signer) (*[32]byte, error) {
	p, ok := s.(interface{ Private() *ecdsa.PrivateKey })
	if !ok {
		return nil, errNoPrivateKey
	}
	key := sha256.Sum256(append([]byte("arc-registrar/bids\x00"), crypto.FromECDSA(p.Private())...))
	return &key, nil
}

// sealSecret encrypts salt || value.
func sealSecret(key *[32]byte, value *big.Int, salt common.Hash) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	plain := append(salt.Bytes(), value.Bytes()...)
	return hex.EncodeToString(secretbox.Seal(nonce[:], plain, &nonce, key)), nil
}

func openSecret(key *[32]byte, secret string) (*big.Int, common.Hash, error) {
	box, err := hex.DecodeString(secret)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("bid secret: %w", err)
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, common.Hash{}, errors.New("bid secret too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, key)
	if !ok || len(plain) < common.HashLength {
		return nil, common.Hash{}, errors.New("bid secret: decryption failed")
	}
	return new(big.Int).SetBytes(plain[common.HashLength:]), common.BytesToHash(plain[:common.HashLength]), nil
}
