// Package resolver implements the public resolver: per-node address and
// content records, writable only by the node's owner in the registry.
package resolver

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

// Kind is the ledger code kind of the public resolver.
const Kind = "resolver"

var keyConfig = []byte("cfg")

type config struct {
	Registry common.Address
}

type ownerLookup interface {
	Owner(c *ledger.Call, node common.Hash) (common.Address, error)
}

// Resolver is a handle to a deployed public resolver.
type Resolver struct {
	Address common.Address
}

// At returns a handle for the resolver deployed at addr.
func At(addr common.Address) Resolver { return Resolver{Address: addr} }

// Register binds the resolver code on l.
func Register(l *ledger.Ledger) {
	l.RegisterKind(Kind, func(addr common.Address) any { return At(addr) })
}

// Deploy creates a resolver that authorizes writes against registry.
func Deploy(c *ledger.Call, registry common.Address) (Resolver, error) {
	in, err := c.Deploy(Kind, nil)
	if err != nil {
		return Resolver{}, err
	}
	if err := in.Store(keyConfig, config{Registry: registry}); err != nil {
		return Resolver{}, err
	}
	return Resolver{Address: in.Self()}, nil
}

func addrKey(node common.Hash) []byte    { return append([]byte("addr/"), node.Bytes()...) }
func contentKey(node common.Hash) []byte { return append([]byte("content/"), node.Bytes()...) }

// Addr returns the address record of node.
func (r Resolver) Addr(c *ledger.Call, node common.Hash) (common.Address, error) {
	in, err := c.Enter(r.Address, nil)
	if err != nil {
		return common.Address{}, err
	}
	var a common.Address
	_, err = in.Load(addrKey(node), &a)
	return a, err
}

// Content returns the content hash record of node.
func (r Resolver) Content(c *ledger.Call, node common.Hash) (common.Hash, error) {
	in, err := c.Enter(r.Address, nil)
	if err != nil {
		return common.Hash{}, err
	}
	var h common.Hash
	_, err = in.Load(contentKey(node), &h)
	return h, err
}

// SetAddr sets the address record of node. Caller must own node.
func (r Resolver) SetAddr(c *ledger.Call, node common.Hash, addr common.Address) error {
	in, err := r.authorize(c, "setAddr", node)
	if err != nil {
		return err
	}
	if err := in.Store(addrKey(node), addr); err != nil {
		return err
	}
	in.Emit("AddrChanged", ledger.Hash("node", node), ledger.Address("addr", addr))
	return nil
}

// SetContent sets the content hash record of node. Caller must own node.
func (r Resolver) SetContent(c *ledger.Call, node common.Hash, hash common.Hash) error {
	in, err := r.authorize(c, "setContent", node)
	if err != nil {
		return err
	}
	if err := in.Store(contentKey(node), hash); err != nil {
		return err
	}
	in.Emit("ContentChanged", ledger.Hash("node", node), ledger.Hash("hash", hash))
	return nil
}

func (r Resolver) authorize(c *ledger.Call, op string, node common.Hash) (*ledger.Call, error) {
	in, err := c.Enter(r.Address, nil)
	if err != nil {
		return nil, err
	}
	var cfg config
	if _, err := in.Load(keyConfig, &cfg); err != nil {
		return nil, err
	}
	reg, err := ledger.ContractAt[ownerLookup](in, cfg.Registry)
	if err != nil {
		return nil, err
	}
	owner, err := reg.Owner(in, node)
	if err != nil {
		return nil, err
	}
	if owner != in.Sender() {
		return nil, in.Revert(op, arcerrors.ErrUnauthorized, "%s does not own node %s", in.Sender().Hex(), node.Hex())
	}
	return in, nil
}
