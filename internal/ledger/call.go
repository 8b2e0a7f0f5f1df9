package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

// txState is shared by every Call of one transaction.
type txState struct {
	ledger   *Ledger
	txn      physical.Txn
	receipt  *Receipt
	now      time.Time
	readOnly bool
	pending  []Event
}

func (t *txState) balance(addr common.Address) (*big.Int, error) {
	raw, err := t.txn.Get(append([]byte(prefixBalance), addr.Bytes()...))
	if errors.Is(err, physical.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (t *txState) setBalance(addr common.Address, v *big.Int) error {
	key := append([]byte(prefixBalance), addr.Bytes()...)
	if v.Sign() == 0 {
		return t.txn.Delete(key)
	}
	return t.txn.Set(key, v.Bytes())
}

func (t *txState) transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 || from == to {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", arcerrors.ErrInvalidValue)
	}
	fromBal, err := t.balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", arcerrors.ErrInsufficientFunds, from.Hex(), fromBal, amount)
	}
	toBal, err := t.balance(to)
	if err != nil {
		return err
	}
	if err := t.setBalance(from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return t.setBalance(to, toBal.Add(toBal, amount))
}

func (t *txState) nonce(addr common.Address) (uint64, error) {
	raw, err := t.txn.Get(append([]byte(prefixNonce), addr.Bytes()...))
	if errors.Is(err, physical.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return new(big.Int).SetBytes(raw).Uint64(), nil
}

func (t *txState) kindOf(addr common.Address) (string, error) {
	raw, err := t.txn.Get(append([]byte(prefixCode), addr.Bytes()...))
	if errors.Is(err, physical.ErrNotFound) {
		return KindAccount, nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (t *txState) flushEvents() error {
	if len(t.pending) == 0 {
		return nil
	}
	var seq uint64
	raw, err := t.txn.Get([]byte(keyEventSeq))
	switch {
	case errors.Is(err, physical.ErrNotFound):
	case err != nil:
		return err
	default:
		seq = new(big.Int).SetBytes(raw).Uint64()
	}
	for i := range t.pending {
		seq++
		t.pending[i].Seq = seq
		enc, err := encode(t.pending[i])
		if err != nil {
			return err
		}
		if err := t.txn.Set(eventKey(seq), enc); err != nil {
			return err
		}
	}
	if err := t.txn.Set([]byte(keyEventSeq), new(big.Int).SetUint64(seq).Bytes()); err != nil {
		return err
	}
	t.receipt.Events = append(t.receipt.Events, t.pending...)
	return nil
}

// Call is the execution context of one contract invocation: who called,
// which contract is running, and the value that came with the call.
type Call struct {
	ctx    context.Context
	tx     *txState
	sender common.Address
	self   common.Address
	value  *big.Int
	kind   string
	depth  int
}

// Context returns the transaction context.
func (c *Call) Context() context.Context { return c.ctx }

// Sender is the immediate caller: the account that submitted the
// transaction, or the contract that entered this one.
func (c *Call) Sender() common.Address { return c.sender }

// Self is the address whose code and storage this call runs against.
func (c *Call) Self() common.Address { return c.self }

// Kind is the contract kind bound at Self.
func (c *Call) Kind() string { return c.kind }

// Value is the native amount moved to Self when the call was entered.
func (c *Call) Value() *big.Int {
	if c.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(c.value)
}

// Now is the transaction timestamp.
func (c *Call) Now() time.Time { return c.tx.now }

// Unix is the transaction timestamp in seconds.
func (c *Call) Unix() uint64 { return uint64(c.tx.now.Unix()) } //nolint:gosec

// ReadOnly reports whether the call belongs to a View.
func (c *Call) ReadOnly() bool { return c.tx.readOnly }

// Enter invokes the contract at to, moving value from Self first. The
// returned call has Sender == c.Self().
func (c *Call) Enter(to common.Address, value *big.Int) (*Call, error) {
	if c.depth >= maxCallDepth {
		return nil, fmt.Errorf("%w: call depth exceeded", arcerrors.ErrInvalidState)
	}
	kind, err := c.tx.kindOf(to)
	if err != nil {
		return nil, err
	}
	if value != nil && value.Sign() != 0 {
		if err := c.tx.transfer(c.self, to, value); err != nil {
			return nil, err
		}
	}
	return &Call{
		ctx:    c.ctx,
		tx:     c.tx,
		sender: c.self,
		self:   to,
		value:  value,
		kind:   kind,
		depth:  c.depth + 1,
	}, nil
}

// Deploy binds code of the given kind at a fresh address derived from Self
// and its nonce, funds it with value, and returns the constructor call.
func (c *Call) Deploy(kind string, value *big.Int) (*Call, error) {
	if c.tx.readOnly {
		return nil, physical.ErrReadOnly
	}
	if _, ok := c.tx.ledger.binder(kind); !ok {
		return nil, fmt.Errorf("%w: no code registered for kind %q", arcerrors.ErrNotFound, kind)
	}
	nonce, err := c.tx.nonce(c.self)
	if err != nil {
		return nil, err
	}
	addr := crypto.CreateAddress(c.self, nonce)
	if err := c.tx.txn.Set(append([]byte(prefixNonce), c.self.Bytes()...), new(big.Int).SetUint64(nonce+1).Bytes()); err != nil {
		return nil, err
	}
	if err := c.tx.txn.Set(append([]byte(prefixCode), addr.Bytes()...), []byte(kind)); err != nil {
		return nil, err
	}
	return c.Enter(addr, value)
}

// BalanceOf returns the native balance of addr.
func (c *Call) BalanceOf(addr common.Address) (*big.Int, error) {
	return c.tx.balance(addr)
}

// Pay moves amount of native value from Self to to.
func (c *Call) Pay(to common.Address, amount *big.Int) error {
	if c.tx.readOnly {
		return physical.ErrReadOnly
	}
	return c.tx.transfer(c.self, to, amount)
}

// Load decodes the value stored under key in Self's storage into out.
// It reports false when the key is absent.
func (c *Call) Load(key []byte, out any) (bool, error) {
	raw, err := c.tx.txn.Get(c.storageKey(key))
	if errors.Is(err, physical.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := decode(raw, out); err != nil {
		return false, fmt.Errorf("decode %s storage %q: %w", c.kind, key, err)
	}
	return true, nil
}

// Store encodes v under key in Self's storage.
func (c *Call) Store(key []byte, v any) error {
	if c.tx.readOnly {
		return physical.ErrReadOnly
	}
	enc, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s storage %q: %w", c.kind, key, err)
	}
	return c.tx.txn.Set(c.storageKey(key), enc)
}

// Erase deletes key from Self's storage.
func (c *Call) Erase(key []byte) error {
	if c.tx.readOnly {
		return physical.ErrReadOnly
	}
	return c.tx.txn.Delete(c.storageKey(key))
}

// Keys returns the storage keys of Self that start with prefix, in order.
func (c *Call) Keys(prefix []byte) ([][]byte, error) {
	base := c.storageKey(nil)
	var out [][]byte
	err := c.tx.txn.Scan(c.storageKey(prefix), func(key, _ []byte) error {
		out = append(out, bytes.Clone(key[len(base):]))
		return nil
	})
	return out, err
}

// Emit records an event attributed to Self. Events are persisted only if
// the transaction commits.
func (c *Call) Emit(name string, attrs ...Attr) {
	if c.tx.readOnly || c.tx.receipt == nil {
		return
	}
	c.tx.pending = append(c.tx.pending, Event{
		Receipt:  c.tx.receipt.ID,
		Contract: c.self.Hex(),
		Kind:     c.kind,
		Name:     name,
		Time:     c.Unix(),
		Attrs:    attrs,
	})
}

// Revert builds a contract failure attributed to Self's kind.
func (c *Call) Revert(op string, kind error, format string, args ...any) error {
	return arcerrors.Reverted(c.kind, op, kind, format, args...)
}

func (c *Call) storageKey(key []byte) []byte {
	k := make([]byte, 0, len(prefixStorage)+common.AddressLength+1+len(key))
	k = append(k, prefixStorage...)
	k = append(k, c.self.Bytes()...)
	k = append(k, '/')
	return append(k, key...)
}

func encode(v any) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

func decode(raw []byte, out any) error {
	return rlp.DecodeBytes(raw, out)
}

// Address formats an address attribute.
func Address(key string, a common.Address) Attr { return Attr{Key: key, Value: a.Hex()} }

// Hash formats a hash attribute.
func Hash(key string, h common.Hash) Attr { return Attr{Key: key, Value: h.Hex()} }

// Amount formats a big integer attribute in decimal.
func Amount(key string, v *big.Int) Attr {
	if v == nil {
		return Attr{Key: key, Value: "0"}
	}
	return Attr{Key: key, Value: v.String()}
}

// Uint formats an unsigned attribute in decimal.
func Uint(key string, v uint64) Attr { return Attr{Key: key, Value: fmt.Sprintf("%d", v)} }
