// Package deed implements the escrow primitive that locks the value of a
// won name and records its legal owner.
//
// A deed is created and funded by a registrar. Its value changes only by
// registrar instruction; its owner only by transfer. Once closed, a deed
// rejects every further operation.
package deed

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// Kind is the ledger code kind of a deed.
const Kind = "deed"

var keyState = []byte("state")

// State is the stored record of a deed.
type State struct {
	Registrar     common.Address
	Owner         common.Address
	PreviousOwner common.Address
	Value         *big.Int
	CreationDate  uint64
	Active        bool
}

// Deed is a handle to a deployed deed.
type Deed struct {
	Addr common.Address
}

// At returns a handle for the deed at addr.
func At(addr common.Address) Deed { return Deed{Addr: addr} }

// Register binds the deed code on l.
func Register(l *ledger.Ledger) {
	l.RegisterKind(Kind, func(addr common.Address) any { return At(addr) })
}

// New creates a deed owned by owner, funded with value from the calling
// registrar. The caller becomes the deed's registrar.
func New(c *ledger.Call, owner common.Address, value *big.Int) (Deed, error) {
	if value == nil {
		value = new(big.Int)
	}
	if owner == (common.Address{}) {
		return Deed{}, arcerrors.Reverted(Kind, "create", arcerrors.ErrInvalidValue, "zero owner")
	}
	in, err := c.Deploy(Kind, value)
	if err != nil {
		return Deed{}, err
	}
	st := State{
		Registrar:    in.Sender(),
		Owner:        owner,
		Value:        new(big.Int).Set(value),
		CreationDate: in.Unix(),
		Active:       true,
	}
	if err := in.Store(keyState, st); err != nil {
		return Deed{}, err
	}
	in.Emit("DeedCreated", ledger.Address("owner", owner), ledger.Address("registrar", st.Registrar), ledger.Amount("value", value))
	return Deed{Addr: in.Self()}, nil
}

func (d Deed) open(c *ledger.Call) (*ledger.Call, State, error) {
	in, err := c.Enter(d.Addr, nil)
	if err != nil {
		return nil, State{}, err
	}
	if in.Kind() != Kind {
		return nil, State{}, arcerrors.Reverted(Kind, "open", arcerrors.ErrNotFound, "no deed at %s", d.Addr.Hex())
	}
	var st State
	if _, err := in.Load(keyState, &st); err != nil {
		return nil, State{}, err
	}
	if st.Value == nil {
		st.Value = new(big.Int)
	}
	return in, st, nil
}

// mutable opens the deed for a state change by role.
func (d Deed) mutable(c *ledger.Call, op string, registrarOnly bool) (*ledger.Call, State, error) {
	in, st, err := d.open(c)
	if err != nil {
		return nil, State{}, err
	}
	if !st.Active {
		return nil, State{}, in.Revert(op, arcerrors.ErrInvalidState, "deed is closed")
	}
	caller := in.Sender()
	if caller != st.Registrar && (registrarOnly || caller != st.Owner) {
		return nil, State{}, in.Revert(op, arcerrors.ErrUnauthorized, "%s may not %s this deed", caller.Hex(), op)
	}
	return in, st, nil
}

// Info returns the full deed record.
func (d Deed) Info(c *ledger.Call) (State, error) {
	_, st, err := d.open(c)
	return st, err
}

// Owner returns the current owner.
func (d Deed) Owner(c *ledger.Call) (common.Address, error) {
	st, err := d.Info(c)
	return st.Owner, err
}

// PreviousOwner returns the owner before the last transfer.
func (d Deed) PreviousOwner(c *ledger.Call) (common.Address, error) {
	st, err := d.Info(c)
	return st.PreviousOwner, err
}

// Registrar returns the registrar that controls the deed.
func (d Deed) Registrar(c *ledger.Call) (common.Address, error) {
	st, err := d.Info(c)
	return st.Registrar, err
}

// Value returns the locked value.
func (d Deed) Value(c *ledger.Call) (*big.Int, error) {
	st, err := d.Info(c)
	return st.Value, err
}

// Transfer hands the deed to newOwner. The caller must be the owner or the
// registrar. Transferring to the current owner changes nothing.
func (d Deed) Transfer(c *ledger.Call, newOwner common.Address) error {
	in, st, err := d.mutable(c, "transfer", false)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return in.Revert("transfer", arcerrors.ErrInvalidValue, "zero owner")
	}
	if newOwner == st.Owner {
		return nil
	}
	st.PreviousOwner, st.Owner = st.Owner, newOwner
	if err := in.Store(keyState, st); err != nil {
		return err
	}
	in.Emit("OwnerChanged", ledger.Address("previous", st.PreviousOwner), ledger.Address("owner", newOwner))
	return nil
}

// SetBalance moves the locked value to newValue. A reduction pays the
// difference to the owner; an increase is funded by the registrar. When the
// registrar cannot fund an increase the call fails if throwOnFailure is set
// and otherwise leaves the deed unchanged.
func (d Deed) SetBalance(c *ledger.Call, newValue *big.Int, throwOnFailure bool) error {
	if newValue == nil || newValue.Sign() < 0 {
		return arcerrors.Reverted(Kind, "setBalance", arcerrors.ErrInvalidValue, "negative value")
	}
	in, st, err := d.mutable(c, "setBalance", true)
	if err != nil {
		return err
	}
	diff := new(big.Int).Sub(newValue, st.Value)
	switch diff.Sign() {
	case 0:
		return nil
	case 1:
		funds, err := c.BalanceOf(c.Self())
		if err != nil {
			return err
		}
		if funds.Cmp(diff) < 0 {
			if throwOnFailure {
				return in.Revert("setBalance", arcerrors.ErrInsufficientFunds, "registrar holds %s, needs %s", funds, diff)
			}
			return nil
		}
		if err := c.Pay(d.Addr, diff); err != nil {
			return err
		}
	default:
		if err := in.Pay(st.Owner, diff.Neg(diff)); err != nil {
			return err
		}
	}
	prev := st.Value
	st.Value = new(big.Int).Set(newValue)
	if err := in.Store(keyState, st); err != nil {
		return err
	}
	in.Emit("BalanceChanged", ledger.Amount("previous", prev), ledger.Amount("value", newValue))
	return nil
}

// Close pays refundPermille/1000 of the deed's holdings to recipient, burns
// the rest, and deactivates the deed. Registrar only.
func (d Deed) Close(c *ledger.Call, recipient common.Address, refundPermille uint64) error {
	if refundPermille > 1000 {
		return arcerrors.Reverted(Kind, "close", arcerrors.ErrInvalidValue, "refund ratio %d exceeds 1000", refundPermille)
	}
	in, st, err := d.mutable(c, "close", true)
	if err != nil {
		return err
	}
	held, err := in.BalanceOf(in.Self())
	if err != nil {
		return err
	}
	refund := new(big.Int).Mul(held, new(big.Int).SetUint64(refundPermille))
	refund.Quo(refund, big.NewInt(1000))
	burned := new(big.Int).Sub(held, refund)
	if err := in.Pay(recipient, refund); err != nil {
		return err
	}
	if err := in.Pay(namehash.BurnAddress, burned); err != nil {
		return err
	}
	st.Active = false
	st.Value = new(big.Int)
	if err := in.Store(keyState, st); err != nil {
		return err
	}
	in.Emit("DeedClosed", ledger.Address("recipient", recipient), ledger.Amount("refund", refund), ledger.Amount("burned", burned))
	return nil
}

// SetRegistrar hands control of the deed to newRegistrar. Registrar only.
func (d Deed) SetRegistrar(c *ledger.Call, newRegistrar common.Address) error {
	in, st, err := d.mutable(c, "setRegistrar", true)
	if err != nil {
		return err
	}
	if newRegistrar == (common.Address{}) {
		return in.Revert("setRegistrar", arcerrors.ErrInvalidValue, "zero registrar")
	}
	prev := st.Registrar
	st.Registrar = newRegistrar
	if err := in.Store(keyState, st); err != nil {
		return err
	}
	in.Emit("RegistrarChanged", ledger.Address("previous", prev), ledger.Address("registrar", newRegistrar))
	return nil
}
