// Package fifs implements first-in-first-served registrars for the labels
// under one node: a free resolving registrar and a burnable registrar that
// charges a fee burned in a fungible token.
package fifs

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// ResolvingKind is the ledger code kind of the free registrar.
const ResolvingKind = "fifs-resolving"

type registryAPI interface {
	Owner(c *ledger.Call, node common.Hash) (common.Address, error)
	SetOwner(c *ledger.Call, node common.Hash, owner common.Address) error
	SetSubnodeOwner(c *ledger.Call, node, label common.Hash, owner common.Address) error
	SetResolver(c *ledger.Call, node common.Hash, resolver common.Address) error
}

// AddrSetter is the optional resolver capability for address records.
type AddrSetter interface {
	SetAddr(c *ledger.Call, node common.Hash, addr common.Address) error
}

var keyBase = []byte("base")

type base struct {
	Registry common.Address
	RootNode common.Hash
	Resolver common.Address
}

// Registrar is a handle to a deployed free registrar.
type Registrar struct {
	Addr common.Address
}

// At returns a handle for the free registrar deployed at addr.
func At(addr common.Address) Registrar { return Registrar{Addr: addr} }

// DeployResolving creates a free registrar for the labels under rootNode
// that points new names at resolver.
func DeployResolving(c *ledger.Call, registry common.Address, rootNode common.Hash, resolver common.Address) (Registrar, error) {
	if registry == (common.Address{}) || resolver == (common.Address{}) {
		return Registrar{}, arcerrors.Reverted(ResolvingKind, "deploy", arcerrors.ErrInvalidInput, "registry and resolver required")
	}
	in, err := c.Deploy(ResolvingKind, nil)
	if err != nil {
		return Registrar{}, err
	}
	if err := in.Store(keyBase, base{Registry: registry, RootNode: rootNode, Resolver: resolver}); err != nil {
		return Registrar{}, err
	}
	return Registrar{Addr: in.Self()}, nil
}

func (r Registrar) open(c *ledger.Call) (*ledger.Call, base, error) {
	return openBase(c, r.Addr)
}

func openBase(c *ledger.Call, addr common.Address) (*ledger.Call, base, error) {
	in, err := c.Enter(addr, nil)
	if err != nil {
		return nil, base{}, err
	}
	var b base
	if _, err := in.Load(keyBase, &b); err != nil {
		return nil, base{}, err
	}
	return in, b, nil
}

// Register gives label to owner with the default resolver.
func (r Registrar) Register(c *ledger.Call, label common.Hash, owner common.Address) error {
	in, b, err := r.open(c)
	if err != nil {
		return err
	}
	return register(in, b, "register", label, owner, b.Resolver)
}

// RegisterWithResolver gives label to owner with the given resolver.
func (r Registrar) RegisterWithResolver(c *ledger.Call, label common.Hash, owner, resolver common.Address) error {
	in, b, err := r.open(c)
	if err != nil {
		return err
	}
	if resolver == (common.Address{}) {
		return in.Revert("registerWithResolver", arcerrors.ErrInvalidValue, "zero resolver")
	}
	return register(in, b, "registerWithResolver", label, owner, resolver)
}

// Available reports whether label has no owner in the registry.
func (r Registrar) Available(c *ledger.Call, label common.Hash) (bool, error) {
	in, b, err := r.open(c)
	if err != nil {
		return false, err
	}
	return available(in, b, label)
}

// DefaultResolver returns the resolver assigned by Register.
func (r Registrar) DefaultResolver(c *ledger.Call) (common.Address, error) {
	_, b, err := r.open(c)
	return b.Resolver, err
}

func available(in *ledger.Call, b base, label common.Hash) (bool, error) {
	reg, err := ledger.ContractAt[registryAPI](in, b.Registry)
	if err != nil {
		return false, err
	}
	owner, err := reg.Owner(in, namehash.Subnode(b.RootNode, label))
	return owner == (common.Address{}), err
}

// checkRegistration validates a registration before any fee is taken.
func checkRegistration(in *ledger.Call, b base, op string, label common.Hash, owner common.Address) error {
	if owner == (common.Address{}) {
		return in.Revert(op, arcerrors.ErrInvalidValue, "zero owner")
	}
	free, err := available(in, b, label)
	if err != nil {
		return err
	}
	if !free {
		return in.Revert(op, arcerrors.ErrInvalidState, "label %s is already registered", label.Hex())
	}
	return nil
}

// register takes the node, points it at resolver, sets the address record
// when the resolver supports it, and hands the node to owner.
func register(in *ledger.Call, b base, op string, label common.Hash, owner, resolver common.Address) error {
	if err := checkRegistration(in, b, op, label, owner); err != nil {
		return err
	}
	reg, err := ledger.ContractAt[registryAPI](in, b.Registry)
	if err != nil {
		return err
	}
	node := namehash.Subnode(b.RootNode, label)
	if err := reg.SetSubnodeOwner(in, b.RootNode, label, in.Self()); err != nil {
		return err
	}
	if err := reg.SetResolver(in, node, resolver); err != nil {
		return err
	}
	if setter, err := ledger.ContractAt[AddrSetter](in, resolver); err == nil {
		if err := setter.SetAddr(in, node, owner); err != nil {
			return err
		}
	}
	if err := reg.SetOwner(in, node, owner); err != nil {
		return err
	}
	in.Emit("NameRegistered",
		ledger.Hash("label", label),
		ledger.Hash("node", node),
		ledger.Address("owner", owner),
		ledger.Address("resolver", resolver),
	)
	return nil
}
