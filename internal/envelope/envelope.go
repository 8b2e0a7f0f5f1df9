// Package envelope signs gRPC calls with secp256k1 account keys and
// recovers the calling address on the server.
package envelope

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gezibash/arc-registrar/pkg/identity"
)

var (
	// ErrInvalidSignature is returned when the signature does not recover
	// to the claimed sender.
	ErrInvalidSignature = errors.New("invalid envelope signature")
	// ErrClockSkew is returned when the envelope timestamp is too far from
	// the server clock.
	ErrClockSkew = errors.New("envelope timestamp outside allowed skew")
)

// Envelope is the signed header of a single call.
type Envelope struct {
	From      common.Address
	Method    string
	Timestamp int64
	// Nonce makes otherwise identical calls distinct.
	Nonce     []byte
	Signature []byte
	Metadata  map[string]string
}

// NonceSize is the length of the random nonce sealed into each envelope.
const NonceSize = 16

// Caller is the account recovered from a verified request envelope.
type Caller struct {
	Address  common.Address
	SignedAt time.Time
	Metadata map[string]string
}

type callerKey struct{}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// GetCaller returns the Caller of a signed request. Anonymous requests
// have none.
func GetCaller(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(*Caller)
	return c, ok
}

// Digest is the 32-byte value a caller signs:
// keccak256(method || timestamp || keccak256(nonce) || keccak256(payload)).
func Digest(method string, timestamp int64, nonce, payload []byte) []byte {
	return crypto.Keccak256([]byte(method), TimestampBytes(timestamp), crypto.Keccak256(nonce), crypto.Keccak256(payload))
}

// Seal signs payload for method on behalf of s.
func Seal(s identity.Signer, method string, payload []byte, meta map[string]string) (*Envelope, error) {
	return SealAt(s, method, payload, meta, time.Now())
}

// SealAt is Seal with an explicit timestamp.
func SealAt(s identity.Signer, method string, payload []byte, meta map[string]string, at time.Time) (*Envelope, error) {
	ts := at.UnixMilli()
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("envelope nonce: %w", err)
	}
	sig, err := s.Sign(Digest(method, ts, nonce, payload))
	if err != nil {
		return nil, fmt.Errorf("sign envelope: %w", err)
	}
	return &Envelope{
		From:      s.Address(),
		Method:    method,
		Timestamp: ts,
		Nonce:     nonce,
		Signature: sig,
		Metadata:  meta,
	}, nil
}

// Open verifies env against payload. The signature must recover to
// env.From and the method must match.
func Open(env *Envelope, method string, payload []byte) error {
	if env.Method != "" && env.Method != method {
		return fmt.Errorf("%w: signed for %s", ErrInvalidSignature, env.Method)
	}
	if len(env.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce of %d bytes", ErrInvalidSignature, len(env.Nonce))
	}
	got, err := identity.Recover(Digest(method, env.Timestamp, env.Nonce, payload), env.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if got != env.From {
		return ErrInvalidSignature
	}
	return nil
}

// CheckSkew rejects timestamps more than maxSkew away from now. A zero
// maxSkew disables the check.
func CheckSkew(ts int64, now time.Time, maxSkew time.Duration) error {
	if maxSkew <= 0 {
		return nil
	}
	d := now.Sub(time.UnixMilli(ts))
	if d < 0 {
		d = -d
	}
	if d > maxSkew {
		return fmt.Errorf("%w: %s", ErrClockSkew, d.Round(time.Millisecond))
	}
	return nil
}

// TimestampBytes encodes an int64 as 8 big-endian bytes.
func TimestampBytes(ts int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(ts))
	return b
}
