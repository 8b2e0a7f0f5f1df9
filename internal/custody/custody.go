// Package custody implements deed holders: contracts that own auction deeds
// on behalf of beneficiaries.
//
// A holder keeps its own ledger of beneficiaries, separate from what the
// deed or the registry report. Registrar migrations never change that
// ledger, so a beneficiary can always reclaim control through the holder.
package custody

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/auction"
	"github.com/gezibash/arc-registrar/internal/deed"
	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

const (
	// HolderKind is the ledger code kind of a DeedHolder.
	HolderKind = "deed-holder"
	// DelegatingKind is the ledger code kind of a DelegatingDeedHolder.
	DelegatingKind = "delegating-deed-holder"
)

type registryAPI interface {
	Owner(c *ledger.Call, node common.Hash) (common.Address, error)
	SetOwner(c *ledger.Call, node common.Hash, owner common.Address) error
}

// registrarAPI is what a holder needs from the registrar that controls a deed.
type registrarAPI interface {
	Entries(c *ledger.Call, label common.Hash) (auction.Entry, error)
	Transfer(c *ledger.Call, label common.Hash, newOwner common.Address) error
	TransferRegistrars(c *ledger.Call, label common.Hash) error
	Settings(c *ledger.Call) (auction.Params, error)
}

var keyConfig = []byte("cfg")

type config struct {
	Registry  common.Address
	RootNode  common.Hash
	Registrar common.Address
}

func beneficiaryKey(label common.Hash) []byte { return append([]byte("owner/"), label.Bytes()...) }
func managerKey(label common.Hash) []byte     { return append([]byte("manager/"), label.Bytes()...) }

// DeedHolder is a handle to a deployed deed holder.
type DeedHolder struct {
	Addr common.Address
}

// HolderAt returns a handle for the deed holder deployed at addr.
func HolderAt(addr common.Address) DeedHolder { return DeedHolder{Addr: addr} }

// Register binds both holder kinds on l.
func Register(l *ledger.Ledger) {
	l.RegisterKind(HolderKind, func(addr common.Address) any { return HolderAt(addr) })
	l.RegisterKind(DelegatingKind, func(addr common.Address) any { return DelegatingAt(addr) })
}

func deploy(c *ledger.Call, kind string, registry common.Address, rootNode common.Hash, registrar common.Address) (common.Address, error) {
	if registry == (common.Address{}) {
		return common.Address{}, arcerrors.Reverted(kind, "deploy", arcerrors.ErrInvalidInput, "registry address required")
	}
	in, err := c.Deploy(kind, nil)
	if err != nil {
		return common.Address{}, err
	}
	if err := in.Store(keyConfig, config{Registry: registry, RootNode: rootNode, Registrar: registrar}); err != nil {
		return common.Address{}, err
	}
	return in.Self(), nil
}

// DeployHolder creates a holder for deeds of labels under rootNode. The
// registrar is the auction registrar that issued them; deeds migrated to a
// successor registrar are found through the registry's owner of rootNode.
func DeployHolder(c *ledger.Call, registry common.Address, rootNode common.Hash, registrar common.Address) (DeedHolder, error) {
	addr, err := deploy(c, HolderKind, registry, rootNode, registrar)
	return DeedHolder{Addr: addr}, err
}

func (h DeedHolder) open(c *ledger.Call) (*ledger.Call, config, error) {
	in, err := c.Enter(h.Addr, nil)
	if err != nil {
		return nil, config{}, err
	}
	var cfg config
	if _, err := in.Load(keyConfig, &cfg); err != nil {
		return nil, config{}, err
	}
	return in, cfg, nil
}

// custody locates the deed of label and the registrar controlling it.
type custody struct {
	registrar registrarAPI
	deed      deed.Deed
	info      deed.State
}

func (cs custody) held(holder common.Address) bool {
	return cs.info.Active && cs.info.Owner == holder
}

// find looks for the deed of label under the bound registrar first and then
// under the registry's current owner of the root node.
func find(in *ledger.Call, cfg config, label common.Hash) (custody, bool, error) {
	candidates := []common.Address{cfg.Registrar}
	reg, err := ledger.ContractAt[registryAPI](in, cfg.Registry)
	if err != nil {
		return custody{}, false, err
	}
	current, err := reg.Owner(in, cfg.RootNode)
	if err != nil {
		return custody{}, false, err
	}
	if current != cfg.Registrar {
		candidates = append(candidates, current)
	}
	for _, addr := range candidates {
		if addr == (common.Address{}) {
			continue
		}
		r, err := ledger.ContractAt[registrarAPI](in, addr)
		if err != nil {
			continue
		}
		e, err := r.Entries(in, label)
		if err != nil {
			return custody{}, false, err
		}
		if e.State != auction.Owned || e.Deed == (common.Address{}) {
			continue
		}
		d := deed.At(e.Deed)
		info, err := d.Info(in)
		if err != nil {
			return custody{}, false, err
		}
		if info.Registrar != addr {
			continue
		}
		return custody{registrar: r, deed: d, info: info}, true, nil
	}
	return custody{}, false, nil
}

// beneficiary returns the ledger owner of label. Before the first ledger
// write it is the deed's previous owner, provided the deed sits with this
// holder.
func beneficiary(in *ledger.Call, cfg config, label common.Hash) (common.Address, error) {
	var owner common.Address
	ok, err := in.Load(beneficiaryKey(label), &owner)
	if err != nil || ok {
		return owner, err
	}
	cs, found, err := find(in, cfg, label)
	if err != nil || !found || !cs.held(in.Self()) {
		return common.Address{}, err
	}
	return cs.info.PreviousOwner, nil
}

func onlyBeneficiary(in *ledger.Call, cfg config, op string, label common.Hash) (common.Address, error) {
	owner, err := beneficiary(in, cfg, label)
	if err != nil {
		return owner, err
	}
	if owner == (common.Address{}) || in.Sender() != owner {
		return owner, in.Revert(op, arcerrors.ErrUnauthorized, "%s is not the beneficiary of %s", in.Sender().Hex(), label.Hex())
	}
	return owner, nil
}

// Owner returns the beneficiary of label, or the zero address.
func (h DeedHolder) Owner(c *ledger.Call, label common.Hash) (common.Address, error) {
	in, cfg, err := h.open(c)
	if err != nil {
		return common.Address{}, err
	}
	return beneficiary(in, cfg, label)
}

// Beneficiary is Owner under the name the registrar looks for when it pays
// out a held deed.
func (h DeedHolder) Beneficiary(c *ledger.Call, label common.Hash) (common.Address, error) {
	return h.Owner(c, label)
}

// Transfer changes the beneficiary of label. The deed stays with the holder.
func (h DeedHolder) Transfer(c *ledger.Call, label common.Hash, newOwner common.Address) error {
	in, cfg, err := h.open(c)
	if err != nil {
		return err
	}
	prev, err := onlyBeneficiary(in, cfg, "transfer", label)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return in.Revert("transfer", arcerrors.ErrInvalidValue, "zero owner")
	}
	if err := in.Store(beneficiaryKey(label), newOwner); err != nil {
		return err
	}
	in.Emit("BeneficiaryChanged", ledger.Hash("label", label), ledger.Address("previous", prev), ledger.Address("owner", newOwner))
	return nil
}

// Claim re-points the registry owner of label's node at the holder through
// the registrar that controls the deed, e.g. after a registrar migration.
func (h DeedHolder) Claim(c *ledger.Call, label common.Hash) error {
	in, cfg, err := h.open(c)
	if err != nil {
		return err
	}
	_, err = claim(in, cfg, label)
	return err
}

func claim(in *ledger.Call, cfg config, label common.Hash) (common.Address, error) {
	owner, err := onlyBeneficiary(in, cfg, "claim", label)
	if err != nil {
		return owner, err
	}
	cs, found, err := find(in, cfg, label)
	if err != nil {
		return owner, err
	}
	if !found || !cs.held(in.Self()) {
		return owner, in.Revert("claim", arcerrors.ErrInvalidState, "holder does not hold the deed for %s", label.Hex())
	}
	if cs, err = migrate(in, cfg, label, cs); err != nil {
		return owner, err
	}
	reg, err := ledger.ContractAt[registryAPI](in, cfg.Registry)
	if err != nil {
		return owner, err
	}
	root, err := reg.Owner(in, cfg.RootNode)
	if err != nil {
		return owner, err
	}
	if root != cs.info.Registrar {
		return owner, in.Revert("claim", arcerrors.ErrInvalidState, "registrar %s no longer controls the root node; release the deed instead", cs.info.Registrar.Hex())
	}
	if err := cs.registrar.Transfer(in, label, in.Self()); err != nil {
		return owner, err
	}
	// pin the beneficiary so later deed movements cannot change it
	if err := in.Store(beneficiaryKey(label), owner); err != nil {
		return owner, err
	}
	in.Emit("Claimed", ledger.Hash("label", label), ledger.Address("owner", owner), ledger.Address("registrar", cs.info.Registrar))
	return owner, nil
}

// migrate moves a held deed to the registrar that now owns the root node,
// provided that registrar names the deed's registrar as its predecessor.
func migrate(in *ledger.Call, cfg config, label common.Hash, cs custody) (custody, error) {
	reg, err := ledger.ContractAt[registryAPI](in, cfg.Registry)
	if err != nil {
		return cs, err
	}
	current, err := reg.Owner(in, cfg.RootNode)
	if err != nil || current == cs.info.Registrar || current == (common.Address{}) {
		return cs, err
	}
	next, err := ledger.ContractAt[registrarAPI](in, current)
	if err != nil {
		return cs, nil
	}
	p, err := next.Settings(in)
	if err != nil {
		return cs, err
	}
	if p.Previous != cs.info.Registrar {
		return cs, nil
	}
	if err := cs.registrar.TransferRegistrars(in, label); err != nil {
		return cs, err
	}
	in.Emit("Migrated", ledger.Hash("label", label), ledger.Address("from", cs.info.Registrar), ledger.Address("to", current))
	cs.registrar = next
	cs.info.Registrar = current
	return cs, nil
}

// Release hands the deed and the registry node back to the beneficiary and
// forgets the label.
func (h DeedHolder) Release(c *ledger.Call, label common.Hash) error {
	in, cfg, err := h.open(c)
	if err != nil {
		return err
	}
	return release(in, cfg, label)
}

func release(in *ledger.Call, cfg config, label common.Hash) error {
	owner, err := onlyBeneficiary(in, cfg, "release", label)
	if err != nil {
		return err
	}
	cs, found, err := find(in, cfg, label)
	if err != nil {
		return err
	}
	if !found || !cs.held(in.Self()) {
		return in.Revert("release", arcerrors.ErrInvalidState, "holder does not hold the deed for %s", label.Hex())
	}
	if err := cs.registrar.Transfer(in, label, owner); err != nil {
		return err
	}
	if err := in.Erase(beneficiaryKey(label)); err != nil {
		return err
	}
	if err := in.Erase(managerKey(label)); err != nil {
		return err
	}
	in.Emit("Released", ledger.Hash("label", label), ledger.Address("owner", owner))
	return nil
}

// Deed returns the deed held for label and when its registration started.
func (h DeedHolder) Deed(c *ledger.Call, label common.Hash) (common.Address, time.Time, error) {
	in, cfg, err := h.open(c)
	if err != nil {
		return common.Address{}, time.Time{}, err
	}
	cs, found, err := find(in, cfg, label)
	if err != nil || !found {
		return common.Address{}, time.Time{}, err
	}
	e, err := cs.registrar.Entries(in, label)
	return cs.deed.Addr, e.RegistrationDate, err
}
