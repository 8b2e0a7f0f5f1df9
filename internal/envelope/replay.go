package envelope

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrReplay is returned for an envelope the server has already accepted.
var ErrReplay = errors.New("envelope already used")

const (
	// DefaultReplayCapacity bounds the envelopes remembered at once.
	DefaultReplayCapacity = 1 << 18
	// unboundedSkewTTL is how long envelopes are remembered when no clock
	// skew bound is configured.
	unboundedSkewTTL = 10 * time.Minute
)

// ReplayGuard remembers accepted envelopes for as long as their timestamp
// passes the skew check, so each signed call is served at most once.
// Entries are keyed by sender and signed digest; re-encoding the signature
// does not produce a new key.
type ReplayGuard struct {
	mu   sync.Mutex
	seen *expirable.LRU[common.Hash, struct{}]
}

// NewReplayGuard returns a guard for envelopes accepted within maxSkew of
// the server clock. capacity <= 0 selects DefaultReplayCapacity.
func NewReplayGuard(maxSkew time.Duration, capacity int) *ReplayGuard {
	ttl := 2 * maxSkew
	if maxSkew <= 0 {
		ttl = unboundedSkewTTL
	}
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	return &ReplayGuard{seen: expirable.NewLRU[common.Hash, struct{}](capacity, nil, ttl)}
}

// Admit records env and fails with ErrReplay if it was recorded before.
// env must already be verified against payload.
func (g *ReplayGuard) Admit(env *Envelope, method string, payload []byte) error {
	key := common.BytesToHash(crypto.Keccak256(env.From.Bytes(), Digest(method, env.Timestamp, env.Nonce, payload)))
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen.Contains(key) {
		return ErrReplay
	}
	g.seen.Add(key, struct{}{})
	return nil
}
