// Package chaintest builds a fully deployed in-memory ledger for contract
// tests: registry, resolver, token and an auction registrar owning "eth".
package chaintest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/gezibash/arc-registrar/internal/auction"
	"github.com/gezibash/arc-registrar/internal/custody"
	"github.com/gezibash/arc-registrar/internal/deed"
	"github.com/gezibash/arc-registrar/internal/fifs"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/registry"
	"github.com/gezibash/arc-registrar/internal/resolver"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/badger"
	"github.com/gezibash/arc-registrar/internal/token"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// Well-known test accounts.
var (
	Deployer = common.HexToAddress("0x00000000000000000000000000000000000d3b10")
	Alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	Bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	Carol    = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

// Start is the manual clock's initial time.
var Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TLD is the label the auction registrar controls.
const TLD = "eth"

// Ether returns n ether in wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether))
}

// Finney returns n thousandths of an ether in wei.
func Finney(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether/1000))
}

// World is a deployed test ledger.
type World struct {
	t        testing.TB
	Ledger   *ledger.Ledger
	Clock    *ledger.ManualClock
	Registry registry.Registry
	Resolver resolver.Resolver
	Token    token.Token
	Auction  auction.Registrar
	TLDNode  common.Hash
}

// Register binds every contract kind on l.
func Register(l *ledger.Ledger) {
	registry.Register(l)
	resolver.Register(l)
	token.Register(l)
	deed.Register(l)
	auction.Register(l)
	fifs.Register(l)
	custody.Register(l)
}

// New deploys a world, funds the test accounts with 1000 ether each and
// moves the clock past the launch period so every label is available.
func New(t testing.TB) *World {
	t.Helper()
	be, err := badger.NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = be.Close() })

	clock := ledger.NewManualClock(Start)
	w := &World{t: t, Clock: clock, TLDNode: namehash.NameHash(TLD)}
	w.Ledger = ledger.New(be, ledger.WithClock(clock))
	Register(w.Ledger)

	alloc := map[common.Address]*big.Int{}
	for _, a := range []common.Address{Deployer, Alice, Bob, Carol} {
		alloc[a] = Ether(1000)
	}
	if err := w.Ledger.Allocate(context.Background(), alloc); err != nil {
		t.Fatal(err)
	}

	w.Must(Deployer, "genesis", func(c *ledger.Call) error {
		reg, err := registry.Deploy(c)
		if err != nil {
			return err
		}
		res, err := resolver.Deploy(c, reg.Addr)
		if err != nil {
			return err
		}
		tok, err := token.Deploy(c, "Burnable", "BRN", 18)
		if err != nil {
			return err
		}
		ar, err := auction.Deploy(c, auction.DefaultParams(reg.Addr, w.TLDNode))
		if err != nil {
			return err
		}
		if err := reg.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash(TLD), ar.Addr); err != nil {
			return err
		}
		w.Registry, w.Resolver, w.Token, w.Auction = reg, res, tok, ar
		return nil
	})
	clock.Advance(8 * 7 * 24 * time.Hour)
	return w
}

// Submit runs fn as a transaction from from.
func (w *World) Submit(from common.Address, op string, fn func(c *ledger.Call) error) (*ledger.Receipt, error) {
	return w.Ledger.Submit(context.Background(), from, op, fn)
}

// Must runs fn as a transaction and fails the test on error.
func (w *World) Must(from common.Address, op string, fn func(c *ledger.Call) error) *ledger.Receipt {
	w.t.Helper()
	rc, err := w.Submit(from, op, fn)
	if err != nil {
		w.t.Fatalf("%s: %v", op, err)
	}
	return rc
}

// View runs fn read-only and fails the test on error.
func (w *World) View(fn func(c *ledger.Call) error) {
	w.t.Helper()
	if err := w.Ledger.View(context.Background(), fn); err != nil {
		w.t.Fatalf("view: %v", err)
	}
}

// Balance returns the native balance of addr.
func (w *World) Balance(addr common.Address) *big.Int {
	w.t.Helper()
	b, err := w.Ledger.Balance(context.Background(), addr)
	if err != nil {
		w.t.Fatal(err)
	}
	return b
}

// Advance moves the clock forward.
func (w *World) Advance(d time.Duration) { w.Clock.Advance(d) }

// Salt derives a bid salt from a secret.
func Salt(secret string) common.Hash { return namehash.LabelHash(secret) }

// Bid starts (if needed) the auction for name and places a sealed bid of
// value with the given deposit from bidder.
func (w *World) Bid(bidder common.Address, name string, value, deposit *big.Int, secret string) common.Hash {
	w.t.Helper()
	label := namehash.LabelHash(name)
	w.Must(bidder, "bid", func(c *ledger.Call) error {
		st, err := w.Auction.State(c, label)
		if err != nil {
			return err
		}
		if st == auction.Open {
			if err := w.Auction.StartAuction(c, label); err != nil {
				return err
			}
		}
		return w.Auction.NewBid(c, auction.ShaBid(label, bidder, value, Salt(secret)), deposit)
	})
	return label
}

// Reveal unseals bidder's bid on name.
func (w *World) Reveal(bidder common.Address, name string, value *big.Int, secret string) {
	w.t.Helper()
	w.Must(bidder, "reveal", func(c *ledger.Call) error {
		return w.Auction.UnsealBid(c, namehash.LabelHash(name), value, Salt(secret))
	})
}

// Win runs a full single-bidder auction for name: bid 1 ether with a
// 2 ether deposit, reveal after three days, finalize after two more. It
// returns the label hash and the deed address.
func (w *World) Win(owner common.Address, name string) (common.Hash, common.Address) {
	w.t.Helper()
	label := w.Bid(owner, name, Ether(1), Ether(2), "secret")
	w.Advance(3 * 24 * time.Hour)
	w.Reveal(owner, name, Ether(1), "secret")
	w.Advance(2 * 24 * time.Hour)
	w.Must(owner, "finalize", func(c *ledger.Call) error {
		return w.Auction.FinalizeAuction(c, label)
	})
	return label, w.Entry(label).Deed
}

// Entry returns the auction entry of label.
func (w *World) Entry(label common.Hash) auction.Entry {
	w.t.Helper()
	var e auction.Entry
	w.View(func(c *ledger.Call) error {
		var err error
		e, err = w.Auction.Entries(c, label)
		return err
	})
	return e
}

// Owner returns the registry owner of node.
func (w *World) Owner(node common.Hash) common.Address {
	w.t.Helper()
	var o common.Address
	w.View(func(c *ledger.Call) error {
		var err error
		o, err = w.Registry.Owner(c, node)
		return err
	})
	return o
}

// Deed returns the stored record of the deed at addr.
func (w *World) Deed(addr common.Address) deed.State {
	w.t.Helper()
	var st deed.State
	w.View(func(c *ledger.Call) error {
		var err error
		st, err = deed.At(addr).Info(c)
		return err
	})
	return st
}

// Node returns the registry node of name under the TLD.
func (w *World) Node(name string) common.Hash {
	return namehash.Subnode(w.TLDNode, namehash.LabelHash(name))
}
