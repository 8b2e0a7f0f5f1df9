// Package ledger is the single-process transaction engine the registrar
// contracts run on.
//
// A Ledger serializes transactions behind one mutex. Each transaction runs
// inside one backend Update: contract storage, native balances, nonces and
// events written by a transaction are committed together or not at all.
// Contract code is stateless Go bound to addresses by kind; all contract
// state lives in the backend, RLP encoded and scoped by contract address.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/logging"
)

const (
	prefixBalance = "bal/"
	prefixNonce   = "nonce/"
	prefixCode    = "code/"
	prefixStorage = "st/"
	prefixEvent   = "ev/"
	keyEventSeq   = "meta/evseq"

	// KindAccount is reported for addresses with no bound code.
	KindAccount = "account"

	maxCallDepth = 64
)

// Binder returns a typed handle for contract code of one kind deployed at addr.
type Binder func(addr common.Address) any

// CommitHook observes committed receipts, in commit order.
type CommitHook func(ctx context.Context, r *Receipt)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the transaction clock. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithMetrics enables operation metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithCommitHook registers a hook run after every committed transaction.
// Hooks run one at a time; a hook that blocks delays the return of later
// Submits, though not their commits.
func WithCommitHook(h CommitHook) Option {
	return func(l *Ledger) { l.hooks = append(l.hooks, h) }
}

// Ledger executes transactions against a physical state backend.
type Ledger struct {
	mu      sync.Mutex
	hookMu  sync.Mutex
	backend physical.Backend
	clock   Clock
	metrics *observability.Metrics
	hooks   []CommitHook
	log     *logging.Logger

	kindsMu sync.RWMutex
	kinds   map[string]Binder
}

// New creates a ledger over backend.
func New(backend physical.Backend, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		clock:   SystemClock{},
		kinds:   make(map[string]Binder),
		log:     logging.New(nil).WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the transaction clock.
func (l *Ledger) Clock() Clock { return l.clock }

// Backend returns the underlying state backend.
func (l *Ledger) Backend() physical.Backend { return l.backend }

// RegisterKind binds contract code of the given kind. Registering a kind
// twice replaces the binder.
func (l *Ledger) RegisterKind(kind string, bind Binder) {
	l.kindsMu.Lock()
	defer l.kindsMu.Unlock()
	l.kinds[kind] = bind
}

func (l *Ledger) binder(kind string) (Binder, bool) {
	l.kindsMu.RLock()
	defer l.kindsMu.RUnlock()
	b, ok := l.kinds[kind]
	return b, ok
}

// Submit runs fn as a transaction sent by from. When fn returns an error
// nothing it wrote is persisted and the error is returned unchanged.
//
// Commit hooks run after the transaction lock is released, so a slow hook
// does not hold up the next commit. Hooks still observe receipts in commit
// order.
func (l *Ledger) Submit(ctx context.Context, from common.Address, op string, fn func(c *Call) error) (_ *Receipt, err error) {
	opn, ctx := observability.StartOperation(ctx, l.metrics, op, observability.Address(observability.KeyFrom, from))
	defer func() { opn.End(err) }()

	receipt, err := l.commit(ctx, from, op, fn, opn)
	if err != nil {
		return nil, err
	}
	defer l.hookMu.Unlock()
	for _, h := range l.hooks {
		h(ctx, receipt)
	}
	return receipt, nil
}

// commit runs fn under the transaction lock. On success it returns holding
// hookMu, taken before the transaction lock is released.
func (l *Ledger) commit(ctx context.Context, from common.Address, op string, fn func(c *Call) error, opn *observability.Operation) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	now := l.clock.Now().UTC().Truncate(time.Second)
	receipt := &Receipt{ID: uuid.NewString(), Op: op, From: from.Hex(), Time: now}
	opn.Annotate(observability.KeyReceipt.String(receipt.ID))

	err := l.backend.Update(ctx, func(txn physical.Txn) error {
		tx := &txState{ledger: l, txn: txn, receipt: receipt, now: now}
		root := &Call{ctx: ctx, tx: tx, sender: from, self: from, kind: KindAccount}
		if err := fn(root); err != nil {
			return err
		}
		return tx.flushEvents()
	})
	if err != nil {
		return nil, err
	}
	receipt.Duration = time.Since(start)

	l.log.DebugContext(ctx, "transaction committed", "op", op, "receipt", receipt.ID, "events", len(receipt.Events))
	l.hookMu.Lock()
	return receipt, nil
}

// View runs fn against a read-only snapshot. The call's sender is the zero address.
func (l *Ledger) View(ctx context.Context, fn func(c *Call) error) error {
	now := l.clock.Now().UTC().Truncate(time.Second)
	return l.backend.View(ctx, func(txn physical.Txn) error {
		tx := &txState{ledger: l, txn: txn, now: now, readOnly: true}
		return fn(&Call{ctx: ctx, tx: tx, kind: KindAccount})
	})
}

// Allocate credits native balances outside any contract. It is used at genesis.
func (l *Ledger) Allocate(ctx context.Context, alloc map[common.Address]*big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backend.Update(ctx, func(txn physical.Txn) error {
		tx := &txState{ledger: l, txn: txn}
		for addr, amount := range alloc {
			if amount == nil || amount.Sign() < 0 {
				return fmt.Errorf("%w: allocation for %s", arcerrors.ErrInvalidValue, addr.Hex())
			}
			bal, err := tx.balance(addr)
			if err != nil {
				return err
			}
			if err := tx.setBalance(addr, new(big.Int).Add(bal, amount)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Balance returns the native balance of addr.
func (l *Ledger) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := l.View(ctx, func(c *Call) error {
		b, err := c.BalanceOf(addr)
		out = b
		return err
	})
	return out, err
}

// Events returns up to limit committed events with sequence numbers greater than after.
func (l *Ledger) Events(ctx context.Context, after uint64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Event
	stop := errors.New("stop")
	err := l.backend.View(ctx, func(txn physical.Txn) error {
		err := txn.Scan([]byte(prefixEvent), func(key, value []byte) error {
			if len(key) != len(prefixEvent)+8 {
				return nil
			}
			if binary.BigEndian.Uint64(key[len(prefixEvent):]) <= after {
				return nil
			}
			var ev Event
			if err := decode(value, &ev); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			out = append(out, ev)
			if len(out) >= limit {
				return stop
			}
			return nil
		})
		if errors.Is(err, stop) {
			return nil
		}
		return err
	})
	return out, err
}

// KindOf returns the contract kind bound at addr, or KindAccount.
func (l *Ledger) KindOf(ctx context.Context, addr common.Address) (string, error) {
	var kind string
	err := l.View(ctx, func(c *Call) error {
		k, err := c.tx.kindOf(addr)
		kind = k
		return err
	})
	return kind, err
}

// ContractAt resolves the code bound at addr and asserts it to T. It fails
// with ErrNotFound when addr has no code and ErrInvalidInput when the code
// does not implement T.
func ContractAt[T any](c *Call, addr common.Address) (T, error) {
	var zero T
	kind, err := c.tx.kindOf(addr)
	if err != nil {
		return zero, err
	}
	if kind == KindAccount {
		return zero, fmt.Errorf("%w: no contract at %s", arcerrors.ErrNotFound, addr.Hex())
	}
	bind, ok := c.tx.ledger.binder(kind)
	if !ok {
		return zero, fmt.Errorf("%w: no code registered for kind %q", arcerrors.ErrNotFound, kind)
	}
	typed, ok := bind(addr).(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s contract at %s does not implement %T", arcerrors.ErrInvalidInput, kind, addr.Hex(), (*T)(nil))
	}
	return typed, nil
}

// Implements reports whether the code bound at addr implements T.
func Implements[T any](c *Call, addr common.Address) bool {
	_, err := ContractAt[T](c, addr)
	return err == nil
}
