package custody

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// DelegatingDeedHolder is a deed holder that can hand registry management
// of a held name to a manager contract, once per label.
type DelegatingDeedHolder struct {
	DeedHolder
}

// DelegatingAt returns a handle for the delegating holder deployed at addr.
func DelegatingAt(addr common.Address) DelegatingDeedHolder {
	return DelegatingDeedHolder{DeedHolder{Addr: addr}}
}

// DeployDelegating creates a delegating holder. Arguments are as for DeployHolder.
func DeployDelegating(c *ledger.Call, registry common.Address, rootNode common.Hash, registrar common.Address) (DelegatingDeedHolder, error) {
	addr, err := deploy(c, DelegatingKind, registry, rootNode, registrar)
	return DelegatingAt(addr), err
}

// Manager returns the manager of label, or the zero address.
func (h DelegatingDeedHolder) Manager(c *ledger.Call, label common.Hash) (common.Address, error) {
	in, _, err := h.open(c)
	if err != nil {
		return common.Address{}, err
	}
	var m common.Address
	_, err = in.Load(managerKey(label), &m)
	return m, err
}

// SetManager makes manager the registry owner of label's node. Beneficiary
// only, and only once per label.
func (h DelegatingDeedHolder) SetManager(c *ledger.Call, label common.Hash, manager common.Address) error {
	in, cfg, err := h.open(c)
	if err != nil {
		return err
	}
	var current common.Address
	set, err := in.Load(managerKey(label), &current)
	if err != nil {
		return err
	}
	if set {
		return in.Revert("setManager", arcerrors.ErrInvalidState, "manager of %s is already %s", label.Hex(), current.Hex())
	}
	if _, err := onlyBeneficiary(in, cfg, "setManager", label); err != nil {
		return err
	}
	if manager == (common.Address{}) {
		return in.Revert("setManager", arcerrors.ErrInvalidValue, "zero manager")
	}
	if err := applyManager(in, cfg, label, manager); err != nil {
		return err
	}
	if err := in.Store(managerKey(label), manager); err != nil {
		return err
	}
	in.Emit("ManagerSet", ledger.Hash("label", label), ledger.Address("manager", manager))
	return nil
}

// Claim re-asserts custody as DeedHolder.Claim does and then hands the node
// back to the manager, if one is set.
func (h DelegatingDeedHolder) Claim(c *ledger.Call, label common.Hash) error {
	in, cfg, err := h.open(c)
	if err != nil {
		return err
	}
	if _, err := claim(in, cfg, label); err != nil {
		return err
	}
	var manager common.Address
	set, err := in.Load(managerKey(label), &manager)
	if err != nil || !set {
		return err
	}
	return applyManager(in, cfg, label, manager)
}

func applyManager(in *ledger.Call, cfg config, label common.Hash, manager common.Address) error {
	reg, err := ledger.ContractAt[registryAPI](in, cfg.Registry)
	if err != nil {
		return err
	}
	return reg.SetOwner(in, namehash.Subnode(cfg.RootNode, label), manager)
}
