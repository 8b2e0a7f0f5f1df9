// Package token implements the fungible token used to pay registration
// fees: balances, allowances, owner minting and approve-and-call.
package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

// Kind is the ledger code kind of the token.
const Kind = "token"

var keyMeta = []byte("meta")

// Meta describes a deployed token.
type Meta struct {
	Name     string
	Symbol   string
	Decimals uint64
	Owner    common.Address
	Supply   *big.Int
}

// ApprovalReceiver is implemented by contracts that accept approve-and-call.
type ApprovalReceiver interface {
	ReceiveApproval(c *ledger.Call, from common.Address, amount *big.Int, token common.Address, data []byte) error
}

// Token is a handle to a deployed token.
type Token struct {
	Addr common.Address
}

// At returns a handle for the token deployed at addr.
func At(addr common.Address) Token { return Token{Addr: addr} }

// Register binds the token code on l.
func Register(l *ledger.Ledger) {
	l.RegisterKind(Kind, func(addr common.Address) any { return At(addr) })
}

// Deploy creates a token with zero supply owned by the caller.
func Deploy(c *ledger.Call, name, symbol string, decimals uint64) (Token, error) {
	in, err := c.Deploy(Kind, nil)
	if err != nil {
		return Token{}, err
	}
	m := Meta{Name: name, Symbol: symbol, Decimals: decimals, Owner: in.Sender(), Supply: new(big.Int)}
	if err := in.Store(keyMeta, m); err != nil {
		return Token{}, err
	}
	return Token{Addr: in.Self()}, nil
}

func balanceKey(a common.Address) []byte { return append([]byte("bal/"), a.Bytes()...) }

func allowanceKey(owner, spender common.Address) []byte {
	k := append([]byte("allow/"), owner.Bytes()...)
	return append(k, spender.Bytes()...)
}

func loadAmount(in *ledger.Call, key []byte) (*big.Int, error) {
	v := new(big.Int)
	if _, err := in.Load(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

func storeAmount(in *ledger.Call, key []byte, v *big.Int) error {
	if v.Sign() == 0 {
		return in.Erase(key)
	}
	return in.Store(key, v)
}

// Meta returns the token metadata.
func (t Token) Meta(c *ledger.Call) (Meta, error) {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	_, err = in.Load(keyMeta, &m)
	return m, err
}

// BalanceOf returns the token balance of owner.
func (t Token) BalanceOf(c *ledger.Call, owner common.Address) (*big.Int, error) {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return nil, err
	}
	return loadAmount(in, balanceKey(owner))
}

// Allowance returns how much spender may pull from owner.
func (t Token) Allowance(c *ledger.Call, owner, spender common.Address) (*big.Int, error) {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return nil, err
	}
	return loadAmount(in, allowanceKey(owner, spender))
}

// Mint creates amount new tokens for to. Caller must be the token owner.
func (t Token) Mint(c *ledger.Call, to common.Address, amount *big.Int) error {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return err
	}
	var m Meta
	if _, err := in.Load(keyMeta, &m); err != nil {
		return err
	}
	if in.Sender() != m.Owner {
		return in.Revert("mint", arcerrors.ErrUnauthorized, "only the token owner may mint")
	}
	if amount == nil || amount.Sign() <= 0 {
		return in.Revert("mint", arcerrors.ErrInvalidValue, "amount must be positive")
	}
	bal, err := loadAmount(in, balanceKey(to))
	if err != nil {
		return err
	}
	m.Supply = new(big.Int).Add(m.Supply, amount)
	if err := in.Store(keyMeta, m); err != nil {
		return err
	}
	if err := storeAmount(in, balanceKey(to), bal.Add(bal, amount)); err != nil {
		return err
	}
	in.Emit("Transfer", ledger.Address("from", common.Address{}), ledger.Address("to", to), ledger.Amount("amount", amount))
	return nil
}

// Transfer moves amount from the caller to to.
func (t Token) Transfer(c *ledger.Call, to common.Address, amount *big.Int) error {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return err
	}
	return move(in, "transfer", in.Sender(), to, amount)
}

// TransferFrom moves amount from from to to against the caller's allowance.
func (t Token) TransferFrom(c *ledger.Call, from, to common.Address, amount *big.Int) error {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return err
	}
	key := allowanceKey(from, in.Sender())
	allowed, err := loadAmount(in, key)
	if err != nil {
		return err
	}
	if amount == nil {
		return in.Revert("transferFrom", arcerrors.ErrInvalidValue, "missing amount")
	}
	if allowed.Cmp(amount) < 0 {
		return in.Revert("transferFrom", arcerrors.ErrInsufficientFunds, "allowance %s of %s for %s is below %s",
			allowed, from.Hex(), in.Sender().Hex(), amount)
	}
	if err := move(in, "transferFrom", from, to, amount); err != nil {
		return err
	}
	return storeAmount(in, key, allowed.Sub(allowed, amount))
}

// Approve sets the caller's allowance for spender to amount.
func (t Token) Approve(c *ledger.Call, spender common.Address, amount *big.Int) error {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return err
	}
	return approve(in, spender, amount)
}

// ApproveAndCall approves spender and then invokes its ReceiveApproval
// with data, in the same transaction.
func (t Token) ApproveAndCall(c *ledger.Call, spender common.Address, amount *big.Int, data []byte) error {
	in, err := c.Enter(t.Addr, nil)
	if err != nil {
		return err
	}
	recv, err := ledger.ContractAt[ApprovalReceiver](in, spender)
	if err != nil {
		return in.Revert("approveAndCall", arcerrors.ErrInvalidInput, "%s does not accept approvals: %v", spender.Hex(), err)
	}
	if err := approve(in, spender, amount); err != nil {
		return err
	}
	return recv.ReceiveApproval(in, in.Sender(), amount, in.Self(), data)
}

func approve(in *ledger.Call, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return in.Revert("approve", arcerrors.ErrInvalidValue, "negative allowance")
	}
	if err := storeAmount(in, allowanceKey(in.Sender(), spender), amount); err != nil {
		return err
	}
	in.Emit("Approval", ledger.Address("owner", in.Sender()), ledger.Address("spender", spender), ledger.Amount("amount", amount))
	return nil
}

func move(in *ledger.Call, op string, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return in.Revert(op, arcerrors.ErrInvalidValue, "negative amount")
	}
	if to == (common.Address{}) {
		return in.Revert(op, arcerrors.ErrInvalidValue, "transfer to the zero address")
	}
	fromBal, err := loadAmount(in, balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return in.Revert(op, arcerrors.ErrInsufficientFunds, "%s holds %s, needs %s", from.Hex(), fromBal, amount)
	}
	if from != to {
		toBal, err := loadAmount(in, balanceKey(to))
		if err != nil {
			return err
		}
		if err := storeAmount(in, balanceKey(from), fromBal.Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := storeAmount(in, balanceKey(to), toBal.Add(toBal, amount)); err != nil {
			return err
		}
	}
	in.Emit("Transfer", ledger.Address("from", from), ledger.Address("to", to), ledger.Amount("amount", amount))
	return nil
}
