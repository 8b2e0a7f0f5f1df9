// Package registry implements the hierarchical name registry: one record
// per node holding its owner, resolver and TTL. Only a node's owner may
// change the node or create subnodes under it.
package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// Kind is the ledger code kind of the registry.
const Kind = "registry"

type record struct {
	Owner    common.Address
	Resolver common.Address
	TTL      uint64
}

func recordKey(node common.Hash) []byte {
	return append([]byte("rec/"), node.Bytes()...)
}

// Registry is a handle to a deployed registry.
type Registry struct {
	Addr common.Address
}

// At returns a handle for the registry deployed at addr.
func At(addr common.Address) Registry { return Registry{Addr: addr} }

// Register binds the registry code on l.
func Register(l *ledger.Ledger) {
	l.RegisterKind(Kind, func(addr common.Address) any { return At(addr) })
}

// Deploy creates a registry whose root node is owned by the caller's account.
func Deploy(c *ledger.Call) (Registry, error) {
	in, err := c.Deploy(Kind, nil)
	if err != nil {
		return Registry{}, err
	}
	if err := in.Store(recordKey(namehash.Root), record{Owner: in.Sender()}); err != nil {
		return Registry{}, err
	}
	in.Emit("Transfer", ledger.Hash("node", namehash.Root), ledger.Address("owner", in.Sender()))
	return Registry{Addr: in.Self()}, nil
}

func load(in *ledger.Call, node common.Hash) (record, error) {
	var r record
	_, err := in.Load(recordKey(node), &r)
	return r, err
}

func (r Registry) enter(c *ledger.Call) (*ledger.Call, error) {
	return c.Enter(r.Addr, nil)
}

// Owner returns the owner of node, or the zero address.
func (r Registry) Owner(c *ledger.Call, node common.Hash) (common.Address, error) {
	in, err := r.enter(c)
	if err != nil {
		return common.Address{}, err
	}
	rec, err := load(in, node)
	return rec.Owner, err
}

// Resolver returns the resolver of node, or the zero address.
func (r Registry) Resolver(c *ledger.Call, node common.Hash) (common.Address, error) {
	in, err := r.enter(c)
	if err != nil {
		return common.Address{}, err
	}
	rec, err := load(in, node)
	return rec.Resolver, err
}

// TTL returns the caching hint of node.
func (r Registry) TTL(c *ledger.Call, node common.Hash) (uint64, error) {
	in, err := r.enter(c)
	if err != nil {
		return 0, err
	}
	rec, err := load(in, node)
	return rec.TTL, err
}

func authorized(in *ledger.Call, op string, node common.Hash) (record, error) {
	rec, err := load(in, node)
	if err != nil {
		return rec, err
	}
	if rec.Owner != in.Sender() {
		return rec, in.Revert(op, arcerrors.ErrUnauthorized, "%s does not own node %s", in.Sender().Hex(), node.Hex())
	}
	return rec, nil
}

// SetOwner transfers node to owner. Caller must own node.
func (r Registry) SetOwner(c *ledger.Call, node common.Hash, owner common.Address) error {
	in, err := r.enter(c)
	if err != nil {
		return err
	}
	rec, err := authorized(in, "setOwner", node)
	if err != nil {
		return err
	}
	rec.Owner = owner
	if err := in.Store(recordKey(node), rec); err != nil {
		return err
	}
	in.Emit("Transfer", ledger.Hash("node", node), ledger.Address("owner", owner))
	return nil
}

// SetSubnodeOwner sets the owner of keccak256(node ‖ label). Caller must own node.
func (r Registry) SetSubnodeOwner(c *ledger.Call, node, label common.Hash, owner common.Address) error {
	in, err := r.enter(c)
	if err != nil {
		return err
	}
	if _, err := authorized(in, "setSubnodeOwner", node); err != nil {
		return err
	}
	sub := namehash.Subnode(node, label)
	rec, err := load(in, sub)
	if err != nil {
		return err
	}
	rec.Owner = owner
	if err := in.Store(recordKey(sub), rec); err != nil {
		return err
	}
	in.Emit("NewOwner", ledger.Hash("node", node), ledger.Hash("label", label), ledger.Address("owner", owner))
	return nil
}

// SetResolver sets the resolver of node. Caller must own node.
func (r Registry) SetResolver(c *ledger.Call, node common.Hash, resolver common.Address) error {
	in, err := r.enter(c)
	if err != nil {
		return err
	}
	rec, err := authorized(in, "setResolver", node)
	if err != nil {
		return err
	}
	rec.Resolver = resolver
	if err := in.Store(recordKey(node), rec); err != nil {
		return err
	}
	in.Emit("NewResolver", ledger.Hash("node", node), ledger.Address("resolver", resolver))
	return nil
}

// SetTTL sets the caching hint of node. Caller must own node.
func (r Registry) SetTTL(c *ledger.Call, node common.Hash, ttl uint64) error {
	in, err := r.enter(c)
	if err != nil {
		return err
	}
	rec, err := authorized(in, "setTTL", node)
	if err != nil {
		return err
	}
	rec.TTL = ttl
	if err := in.Store(recordKey(node), rec); err != nil {
		return err
	}
	in.Emit("NewTTL", ledger.Hash("node", node), ledger.Uint("ttl", ttl))
	return nil
}
