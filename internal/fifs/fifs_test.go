package fifs_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/chaintest"
	"github.com/gezibash/arc-registrar/internal/fifs"
	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

var rootNode = namehash.NameHash("test")

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want %v", err, kind)
	}
}

func newBurnable(t *testing.T, cost int64) (*chaintest.World, fifs.BurnableRegistrar) {
	t.Helper()
	w := chaintest.New(t)
	var br fifs.BurnableRegistrar
	w.Must(chaintest.Deployer, "deploy", func(c *ledger.Call) error {
		var err error
		br, err = fifs.DeployBurnable(c, w.Registry.Addr, rootNode, w.Resolver.Address, w.Token.Addr, big.NewInt(cost))
		if err != nil {
			return err
		}
		if err := w.Token.Mint(c, chaintest.Alice, big.NewInt(200)); err != nil {
			return err
		}
		return w.Registry.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash("test"), br.Addr)
	})
	return w, br
}

func tokens(t *testing.T, w *chaintest.World, who common.Address) int64 {
	t.Helper()
	var b *big.Int
	w.View(func(c *ledger.Call) error {
		var err error
		b, err = w.Token.BalanceOf(c, who)
		return err
	})
	return b.Int64()
}

func addrRecord(t *testing.T, w *chaintest.World, node common.Hash) common.Address {
	t.Helper()
	var a common.Address
	w.View(func(c *ledger.Call) error {
		var err error
		a, err = w.Resolver.Addr(c, node)
		return err
	})
	return a
}

func TestResolvingRegistrar(t *testing.T) {
	w := chaintest.New(t)
	var r fifs.Registrar
	w.Must(chaintest.Deployer, "deploy", func(c *ledger.Call) error {
		var err error
		r, err = fifs.DeployResolving(c, w.Registry.Addr, rootNode, w.Resolver.Address)
		if err != nil {
			return err
		}
		return w.Registry.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash("test"), r.Addr)
	})

	label := namehash.LabelHash("alice")
	node := namehash.Subnode(rootNode, label)
	register := func(owner common.Address) func(c *ledger.Call) error {
		return func(c *ledger.Call) error { return r.Register(c, label, owner) }
	}

	_, err := w.Submit(chaintest.Alice, "register", register(common.Address{}))
	wantKind(t, err, arcerrors.ErrInvalidValue)

	rc := w.Must(chaintest.Alice, "register", register(chaintest.Alice))
	if len(rc.EventsNamed("NameRegistered")) != 1 {
		t.Errorf("events = %+v", rc.Events)
	}
	if got := w.Owner(node); got != chaintest.Alice {
		t.Errorf("owner = %s", got.Hex())
	}
	if got := addrRecord(t, w, node); got != chaintest.Alice {
		t.Errorf("addr record = %s", got.Hex())
	}

	_, err = w.Submit(chaintest.Bob, "register", register(chaintest.Bob))
	wantKind(t, err, arcerrors.ErrInvalidState)

	w.View(func(c *ledger.Call) error {
		taken, err := r.Available(c, label)
		if err != nil {
			return err
		}
		free, err := r.Available(c, namehash.LabelHash("bob"))
		if taken || !free {
			t.Errorf("available: alice=%v bob=%v", taken, free)
		}
		return err
	})
}

func TestResolverWithoutAddrRecords(t *testing.T) {
	w := chaintest.New(t)
	var r fifs.Registrar
	w.Must(chaintest.Deployer, "deploy", func(c *ledger.Call) error {
		var err error
		r, err = fifs.DeployResolving(c, w.Registry.Addr, rootNode, w.Resolver.Address)
		if err != nil {
			return err
		}
		return w.Registry.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash("test"), r.Addr)
	})

	// the token has no address records; registration still succeeds
	label := namehash.LabelHash("plain")
	node := namehash.Subnode(rootNode, label)
	w.Must(chaintest.Bob, "register", func(c *ledger.Call) error {
		return r.RegisterWithResolver(c, label, chaintest.Bob, w.Token.Addr)
	})
	if got := w.Owner(node); got != chaintest.Bob {
		t.Errorf("owner = %s", got.Hex())
	}
	w.View(func(c *ledger.Call) error {
		res, err := w.Registry.Resolver(c, node)
		if res != w.Token.Addr {
			t.Errorf("resolver = %s", res.Hex())
		}
		return err
	})

	_, err := w.Submit(chaintest.Bob, "register", func(c *ledger.Call) error {
		return r.RegisterWithResolver(c, namehash.LabelHash("other"), chaintest.Bob, common.Address{})
	})
	wantKind(t, err, arcerrors.ErrInvalidValue)
}

func TestBurnGating(t *testing.T) {
	w, br := newBurnable(t, 100)
	label := namehash.LabelHash("paid")
	approve := func(n int64) {
		w.Must(chaintest.Alice, "approve", func(c *ledger.Call) error {
			return w.Token.Approve(c, br.Addr, big.NewInt(n))
		})
	}
	register := func(c *ledger.Call) error { return br.Register(c, label, chaintest.Alice) }

	approve(95)
	_, err := w.Submit(chaintest.Alice, "register", register)
	wantKind(t, err, arcerrors.ErrInsufficientFunds)
	if got := tokens(t, w, namehash.BurnAddress); got != 0 {
		t.Errorf("burned after failure = %d", got)
	}
	if got := w.Owner(namehash.Subnode(rootNode, label)); got != (common.Address{}) {
		t.Errorf("owner after failure = %s", got.Hex())
	}

	approve(100)
	rc := w.Must(chaintest.Alice, "register", register)
	if len(rc.EventsNamed("FeeBurned")) != 1 {
		t.Errorf("events = %+v", rc.Events)
	}
	if got := tokens(t, w, namehash.BurnAddress); got != 100 {
		t.Errorf("burned = %d", got)
	}
	if got := tokens(t, w, chaintest.Alice); got != 100 {
		t.Errorf("payer left with %d", got)
	}
	if got := w.Owner(namehash.Subnode(rootNode, label)); got != chaintest.Alice {
		t.Errorf("owner = %s", got.Hex())
	}

	// a taken label costs nothing
	approve(100)
	_, err = w.Submit(chaintest.Alice, "register", register)
	wantKind(t, err, arcerrors.ErrInvalidState)
	if got := tokens(t, w, namehash.BurnAddress); got != 100 {
		t.Errorf("burned after duplicate = %d", got)
	}
}

func TestZeroCost(t *testing.T) {
	w, br := newBurnable(t, 0)
	rc := w.Must(chaintest.Bob, "register", func(c *ledger.Call) error {
		return br.Register(c, namehash.LabelHash("free"), chaintest.Bob)
	})
	if len(rc.EventsNamed("FeeBurned")) != 0 {
		t.Errorf("free registration burned: %+v", rc.Events)
	}
	if got := w.Owner(namehash.Subnode(rootNode, namehash.LabelHash("free"))); got != chaintest.Bob {
		t.Errorf("owner = %s", got.Hex())
	}
}

func TestApproveAndCall(t *testing.T) {
	w, br := newBurnable(t, 100)
	label := namehash.LabelHash("onecall")
	data, err := fifs.EncodeRegister(label, chaintest.Bob)
	if err != nil {
		t.Fatal(err)
	}
	approveAndCall := func(n int64, data []byte) func(c *ledger.Call) error {
		return func(c *ledger.Call) error {
			return w.Token.ApproveAndCall(c, br.Addr, big.NewInt(n), data)
		}
	}

	_, err = w.Submit(chaintest.Alice, "short", approveAndCall(99, data))
	wantKind(t, err, arcerrors.ErrInsufficientFunds)
	_, err = w.Submit(chaintest.Alice, "garbage", approveAndCall(100, []byte{1, 2, 3, 4, 5}))
	wantKind(t, err, arcerrors.ErrInvalidInput)
	_, err = w.Submit(chaintest.Alice, "direct", func(c *ledger.Call) error {
		return br.ReceiveApproval(c, chaintest.Alice, big.NewInt(100), w.Token.Addr, data)
	})
	wantKind(t, err, arcerrors.ErrUnauthorized)

	w.Must(chaintest.Alice, "approveAndCall", approveAndCall(100, data))
	if got := w.Owner(namehash.Subnode(rootNode, label)); got != chaintest.Bob {
		t.Errorf("owner = %s", got.Hex())
	}
	if got := tokens(t, w, chaintest.Alice); got != 100 {
		t.Errorf("payer left with %d", got)
	}

	custom := namehash.LabelHash("custom")
	data, err = fifs.EncodeRegisterWithResolver(custom, chaintest.Carol, w.Resolver.Address)
	if err != nil {
		t.Fatal(err)
	}
	w.Must(chaintest.Alice, "approveAndCall", approveAndCall(100, data))
	if got := addrRecord(t, w, namehash.Subnode(rootNode, custom)); got != chaintest.Carol {
		t.Errorf("addr record = %s", got.Hex())
	}
	if got := tokens(t, w, namehash.BurnAddress); got != 200 {
		t.Errorf("burned = %d", got)
	}
}

func TestOwnerAdministration(t *testing.T) {
	w, br := newBurnable(t, 100)

	_, err := w.Submit(chaintest.Alice, "cost", func(c *ledger.Call) error {
		return br.SetRegistrationCost(c, big.NewInt(1))
	})
	wantKind(t, err, arcerrors.ErrUnauthorized)
	_, err = w.Submit(chaintest.Alice, "token", func(c *ledger.Call) error {
		return br.SetBurningToken(c, chaintest.Alice)
	})
	wantKind(t, err, arcerrors.ErrUnauthorized)

	w.Must(chaintest.Deployer, "admin", func(c *ledger.Call) error {
		if err := br.SetRegistrationCost(c, big.NewInt(7)); err != nil {
			return err
		}
		return br.TransferOwnership(c, chaintest.Carol)
	})
	_, err = w.Submit(chaintest.Deployer, "cost", func(c *ledger.Call) error {
		return br.SetRegistrationCost(c, big.NewInt(1))
	})
	wantKind(t, err, arcerrors.ErrUnauthorized)

	w.View(func(c *ledger.Call) error {
		cost, err := br.RegistrationCost(c)
		if err != nil {
			return err
		}
		owner, err := br.Owner(c)
		if err != nil {
			return err
		}
		tok, err := br.BurningToken(c)
		if cost.Int64() != 7 || owner != chaintest.Carol || tok != w.Token.Addr {
			t.Errorf("cost = %s owner = %s token = %s", cost, owner.Hex(), tok.Hex())
		}
		return err
	})
}
