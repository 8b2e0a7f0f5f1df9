package auction

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/deed"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/policy"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// FinalizeAuction settles a Pending label. Only the leader may finalize. The
// price is the second-highest revealed bid, or the leader's own bid when it
// was the only valid one; it is locked in a new deed and the rest of the
// leader's bid is refunded.
func (r Registrar) FinalizeAuction(c *ledger.Call, label common.Hash) error {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	e, err := loadEntry(in, label)
	if err != nil {
		return err
	}
	if st := cfg.state(e, label, in.Unix()); st != Pending {
		return in.Revert("finalizeAuction", arcerrors.ErrInvalidState, "label %s is %s", label.Hex(), st)
	}
	if in.Sender() != e.Leader {
		return in.Revert("finalizeAuction", arcerrors.ErrUnauthorized, "only the leading bidder may finalize")
	}

	price := new(big.Int).Set(e.Value)
	if price.Sign() == 0 {
		price.Set(e.HighestBid)
	}
	d, err := deed.New(in, e.Leader, price)
	if err != nil {
		return err
	}
	if err := in.Pay(e.Leader, new(big.Int).Sub(e.HighestBid, price)); err != nil {
		return err
	}
	if err := r.trySetSubnodeOwner(in, cfg, label, e.Leader); err != nil {
		return err
	}

	e.Mode = uint8(Owned)
	e.Deed = d.Addr
	e.Value = price
	e.RegistrationDate = in.Unix()
	if err := storeEntry(in, label, e); err != nil {
		return err
	}
	in.Emit("HashRegistered",
		ledger.Hash("label", label),
		ledger.Address("owner", e.Leader),
		ledger.Address("deed", d.Addr),
		ledger.Amount("value", price),
		ledger.Uint("registrationDate", e.RegistrationDate),
	)
	return nil
}

// owned loads an Owned entry and checks that the caller owns its deed.
func (r Registrar) owned(in *ledger.Call, cfg config, op string, label common.Hash) (entry, deed.Deed, common.Address, error) {
	e, err := loadEntry(in, label)
	if err != nil {
		return e, deed.Deed{}, common.Address{}, err
	}
	if st := cfg.state(e, label, in.Unix()); st != Owned {
		return e, deed.Deed{}, common.Address{}, in.Revert(op, arcerrors.ErrInvalidState, "label %s is %s", label.Hex(), st)
	}
	d := deed.At(e.Deed)
	owner, err := d.Owner(in)
	if err != nil {
		return e, d, owner, err
	}
	if in.Sender() != owner {
		return e, d, owner, in.Revert(op, arcerrors.ErrUnauthorized, "%s does not own the deed for %s", in.Sender().Hex(), label.Hex())
	}
	return e, d, owner, nil
}

// Transfer hands the deed of label to newOwner and points the registry at
// newOwner in the same transaction. Deed owner only.
func (r Registrar) Transfer(c *ledger.Call, label common.Hash, newOwner common.Address) error {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return in.Revert("transfer", arcerrors.ErrInvalidValue, "zero owner")
	}
	_, d, _, err := r.owned(in, cfg, "transfer", label)
	if err != nil {
		return err
	}
	if err := d.Transfer(in, newOwner); err != nil {
		return err
	}
	if err := r.trySetSubnodeOwner(in, cfg, label, newOwner); err != nil {
		return err
	}
	in.Emit("HashTransferred", ledger.Hash("label", label), ledger.Address("owner", newOwner))
	return nil
}

// TransferRegistrars moves the deed of label to the registrar that now owns
// the root node. Deed owner only.
func (r Registrar) TransferRegistrars(c *ledger.Call, label common.Hash) error {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	e, d, _, err := r.owned(in, cfg, "transferRegistrars", label)
	if err != nil {
		return err
	}
	reg, err := r.registry(in, cfg)
	if err != nil {
		return err
	}
	successor, err := reg.Owner(in, cfg.RootNode)
	if err != nil {
		return err
	}
	if successor == in.Self() || successor == (common.Address{}) {
		return in.Revert("transferRegistrars", arcerrors.ErrInvalidState, "no successor registrar owns the root node")
	}
	next, err := ledger.ContractAt[Acceptor](in, successor)
	if err != nil {
		return in.Revert("transferRegistrars", arcerrors.ErrInvalidState, "root owner %s does not accept deeds: %v", successor.Hex(), err)
	}

	if err := d.SetRegistrar(in, successor); err != nil {
		return err
	}
	if err := next.AcceptRegistrarTransfer(in, label, e.Deed, unixTime(e.RegistrationDate)); err != nil {
		return err
	}
	if err := in.Erase(entryKey(label)); err != nil {
		return err
	}
	in.Emit("RegistrarTransferred", ledger.Hash("label", label), ledger.Address("registrar", successor))
	return nil
}

// AcceptRegistrarTransfer records a deed handed over by the configured
// predecessor. The deed must already name this registrar.
func (r Registrar) AcceptRegistrarTransfer(c *ledger.Call, label common.Hash, deedAddr common.Address, registrationDate time.Time) error {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	if cfg.Previous == (common.Address{}) || in.Sender() != cfg.Previous {
		return in.Revert("acceptRegistrarTransfer", arcerrors.ErrUnauthorized, "%s is not the previous registrar", in.Sender().Hex())
	}
	d := deed.At(deedAddr)
	info, err := d.Info(in)
	if err != nil {
		return err
	}
	if info.Registrar != in.Self() || !info.Active {
		return in.Revert("acceptRegistrarTransfer", arcerrors.ErrInvalidState, "deed %s is not controlled by this registrar", deedAddr.Hex())
	}
	e, err := loadEntry(in, label)
	if err != nil {
		return err
	}
	if st := cfg.state(e, label, in.Unix()); st != Open && st != NotYetAvailable {
		return in.Revert("acceptRegistrarTransfer", arcerrors.ErrInvalidState, "label %s is %s", label.Hex(), st)
	}
	var date uint64
	if !registrationDate.IsZero() {
		date = uint64(registrationDate.Unix()) //nolint:gosec
	}
	e = entry{
		Mode:             uint8(Owned),
		RegistrationDate: date,
		Value:            new(big.Int).Set(info.Value),
		HighestBid:       new(big.Int).Set(info.Value),
		Deed:             deedAddr,
		Leader:           info.Owner,
	}
	if err := storeEntry(in, label, e); err != nil {
		return err
	}
	in.Emit("RegistrarTransferAccepted", ledger.Hash("label", label), ledger.Address("deed", deedAddr), ledger.Address("from", cfg.Previous))
	return nil
}

// ReleaseDeed gives up label: the deed is closed with a full refund to its
// owner and the label returns to Open. Allowed after the minimum hold period
// or once this registrar no longer owns the root node.
func (r Registrar) ReleaseDeed(c *ledger.Call, label common.Hash) error {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	e, d, owner, err := r.owned(in, cfg, "releaseDeed", label)
	if err != nil {
		return err
	}
	reg, err := r.registry(in, cfg)
	if err != nil {
		return err
	}
	controls, err := controlsRoot(in, reg, cfg)
	if err != nil {
		return err
	}
	if controls && in.Unix() < e.RegistrationDate+cfg.MinHoldPeriod {
		return in.Revert("releaseDeed", arcerrors.ErrInvalidState, "label %s is held until %s",
			label.Hex(), unixTime(e.RegistrationDate+cfg.MinHoldPeriod).Format(time.RFC3339))
	}

	value, err := d.Value(in)
	if err != nil {
		return err
	}
	if err := in.Erase(entryKey(label)); err != nil {
		return err
	}
	if controls {
		if err := reg.SetSubnodeOwner(in, cfg.RootNode, label, common.Address{}); err != nil {
			return err
		}
	}
	if err := d.Close(in, owner, 1000); err != nil {
		return err
	}
	in.Emit("HashReleased", ledger.Hash("label", label), ledger.Amount("value", value))
	return nil
}

// InvalidateName forbids a label that violates the name policy. Any caller
// may invalidate; if the label is owned, half of its deed value goes back to
// the owner and the other half rewards the caller. A deed held by a
// custodian refunds the custodian's beneficiary.
func (r Registrar) InvalidateName(c *ledger.Call, name string) error {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	pol, err := policy.Compile(cfg.Policy)
	if err != nil {
		return err
	}
	forbidden, err := pol.Forbidden(name)
	if err != nil {
		return err
	}
	if !forbidden {
		return in.Revert("invalidateName", arcerrors.ErrInvalidValue, "%q is allowed by the name policy", name)
	}

	label := namehash.LabelHash(name)
	e, err := loadEntry(in, label)
	if err != nil {
		return err
	}
	st := cfg.state(e, label, in.Unix())
	if st != Open && st != Owned {
		return in.Revert("invalidateName", arcerrors.ErrInvalidState, "label %s is %s", label.Hex(), st)
	}

	reward := new(big.Int)
	var refunded common.Address
	if st == Owned {
		d := deed.At(e.Deed)
		owner, err := d.Owner(in)
		if err != nil {
			return err
		}
		if refunded, err = refundRecipient(in, owner, label); err != nil {
			return err
		}
		if refunded != owner {
			if err := d.Transfer(in, refunded); err != nil {
				return err
			}
		}
		value, err := d.Value(in)
		if err != nil {
			return err
		}
		if err := d.SetBalance(in, new(big.Int).Rsh(value, 1), false); err != nil {
			return err
		}
		if reward, err = d.Value(in); err != nil {
			return err
		}
		if err := d.Close(in, in.Sender(), 1000); err != nil {
			return err
		}
		reg, err := r.registry(in, cfg)
		if err != nil {
			return err
		}
		controls, err := controlsRoot(in, reg, cfg)
		if err != nil {
			return err
		}
		if controls {
			if err := reg.SetSubnodeOwner(in, cfg.RootNode, label, common.Address{}); err != nil {
				return err
			}
		}
	}

	e = entry{Mode: uint8(Forbidden), RegistrationDate: in.Unix(), Value: new(big.Int), HighestBid: new(big.Int)}
	if err := storeEntry(in, label, e); err != nil {
		return err
	}
	in.Emit("HashInvalidated",
		ledger.Hash("label", label),
		ledger.Attr{Key: "name", Value: name},
		ledger.Address("by", in.Sender()),
		ledger.Amount("reward", reward),
		ledger.Address("refunded", refunded),
		ledger.Attr{Key: "owned", Value: strconv.FormatBool(st == Owned)},
	)
	return nil
}

// custodian is a contract that owns deeds on behalf of beneficiaries.
type custodian interface {
	Beneficiary(c *ledger.Call, label common.Hash) (common.Address, error)
}

// refundRecipient returns who is paid the owner's share of label's deed:
// the beneficiary when owner is a custodian, owner otherwise.
func refundRecipient(in *ledger.Call, owner common.Address, label common.Hash) (common.Address, error) {
	if !ledger.Implements[custodian](in, owner) {
		return owner, nil
	}
	h, err := ledger.ContractAt[custodian](in, owner)
	if err != nil {
		return owner, err
	}
	b, err := h.Beneficiary(in, label)
	if err != nil || b == (common.Address{}) {
		return owner, err
	}
	return b, nil
}
