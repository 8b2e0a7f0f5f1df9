package deed_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/chaintest"
	"github.com/gezibash/arc-registrar/internal/deed"
	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// In these tests Alice's account plays the registrar.
var (
	registrar = chaintest.Alice
	owner     = chaintest.Bob
	stranger  = chaintest.Carol
)

func ether(n int64) *big.Int { return chaintest.Ether(n) }

func newDeed(t *testing.T, w *chaintest.World, value *big.Int) deed.Deed {
	t.Helper()
	var d deed.Deed
	rc := w.Must(registrar, "create", func(c *ledger.Call) error {
		var err error
		d, err = deed.New(c, owner, value)
		return err
	})
	if len(rc.EventsNamed("DeedCreated")) != 1 {
		t.Fatalf("events = %+v", rc.Events)
	}
	return d
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want %v", err, kind)
	}
}

func TestCreate(t *testing.T) {
	w := chaintest.New(t)
	d := newDeed(t, w, ether(3))

	st := w.Deed(d.Addr)
	if st.Registrar != registrar || st.Owner != owner || !st.Active || st.Value.Cmp(ether(3)) != 0 {
		t.Errorf("state = %+v", st)
	}
	if st.CreationDate != uint64(w.Clock.Now().Unix()) {
		t.Errorf("creation date = %d", st.CreationDate)
	}
	if got := w.Balance(d.Addr); got.Cmp(ether(3)) != 0 {
		t.Errorf("deed balance = %s", got)
	}
	if got := w.Balance(registrar); got.Cmp(ether(997)) != 0 {
		t.Errorf("registrar balance = %s", got)
	}

	_, err := w.Submit(registrar, "create", func(c *ledger.Call) error {
		_, err := deed.New(c, common.Address{}, ether(1))
		return err
	})
	wantKind(t, err, arcerrors.ErrInvalidValue)
}

func TestTransfer(t *testing.T) {
	w := chaintest.New(t)
	d := newDeed(t, w, ether(1))
	transfer := func(to common.Address) func(c *ledger.Call) error {
		return func(c *ledger.Call) error { return d.Transfer(c, to) }
	}

	_, err := w.Submit(stranger, "transfer", transfer(stranger))
	wantKind(t, err, arcerrors.ErrUnauthorized)
	_, err = w.Submit(owner, "transfer", transfer(common.Address{}))
	wantKind(t, err, arcerrors.ErrInvalidValue)

	w.Must(owner, "transfer", transfer(stranger))
	if st := w.Deed(d.Addr); st.Owner != stranger || st.PreviousOwner != owner {
		t.Errorf("state = %+v", st)
	}

	// the registrar may move the deed too; a self-transfer keeps history
	w.Must(registrar, "transfer", transfer(owner))
	rc := w.Must(owner, "noop", transfer(owner))
	if len(rc.Events) != 0 {
		t.Errorf("self-transfer emitted %+v", rc.Events)
	}
	if st := w.Deed(d.Addr); st.Owner != owner || st.PreviousOwner != stranger {
		t.Errorf("state = %+v", st)
	}
}

func TestSetBalance(t *testing.T) {
	w := chaintest.New(t)
	d := newDeed(t, w, ether(4))
	set := func(v *big.Int, throw bool) func(c *ledger.Call) error {
		return func(c *ledger.Call) error { return d.SetBalance(c, v, throw) }
	}

	_, err := w.Submit(owner, "setBalance", set(ether(1), true))
	wantKind(t, err, arcerrors.ErrUnauthorized)

	w.Must(registrar, "reduce", set(ether(1), true))
	if got := w.Balance(owner); got.Cmp(ether(1003)) != 0 {
		t.Errorf("owner balance after reduction = %s", got)
	}
	if got := w.Balance(d.Addr); got.Cmp(ether(1)) != 0 {
		t.Errorf("deed balance = %s", got)
	}

	w.Must(registrar, "increase", set(ether(2), true))
	if got := w.Deed(d.Addr).Value; got.Cmp(ether(2)) != 0 {
		t.Errorf("value = %s", got)
	}

	_, err = w.Submit(registrar, "overdraw", set(ether(5000), true))
	wantKind(t, err, arcerrors.ErrInsufficientFunds)

	rc := w.Must(registrar, "overdraw quietly", set(ether(5000), false))
	if len(rc.Events) != 0 {
		t.Errorf("tolerated failure emitted %+v", rc.Events)
	}
	if got := w.Deed(d.Addr).Value; got.Cmp(ether(2)) != 0 {
		t.Errorf("value after tolerated failure = %s", got)
	}
}

func TestClose(t *testing.T) {
	w := chaintest.New(t)
	d := newDeed(t, w, ether(2))

	_, err := w.Submit(owner, "close", func(c *ledger.Call) error { return d.Close(c, owner, 1000) })
	wantKind(t, err, arcerrors.ErrUnauthorized)
	_, err = w.Submit(registrar, "close", func(c *ledger.Call) error { return d.Close(c, owner, 1001) })
	wantKind(t, err, arcerrors.ErrInvalidValue)

	w.Must(registrar, "close", func(c *ledger.Call) error { return d.Close(c, stranger, 250) })
	if got := w.Balance(stranger); got.Cmp(chaintest.Finney(1000500)) != 0 {
		t.Errorf("recipient balance = %s", got)
	}
	if got := w.Balance(namehash.BurnAddress); got.Cmp(chaintest.Finney(1500)) != 0 {
		t.Errorf("burned = %s", got)
	}
	if st := w.Deed(d.Addr); st.Active || st.Value.Sign() != 0 {
		t.Errorf("state = %+v", st)
	}

	for name, fn := range map[string]func(c *ledger.Call) error{
		"transfer":     func(c *ledger.Call) error { return d.Transfer(c, stranger) },
		"setBalance":   func(c *ledger.Call) error { return d.SetBalance(c, ether(1), true) },
		"close":        func(c *ledger.Call) error { return d.Close(c, owner, 1000) },
		"setRegistrar": func(c *ledger.Call) error { return d.SetRegistrar(c, stranger) },
	} {
		from := registrar
		if name == "transfer" {
			from = owner
		}
		if _, err := w.Submit(from, name, fn); !errors.Is(err, arcerrors.ErrInvalidState) {
			t.Errorf("%s on closed deed: %v", name, err)
		}
	}
}

func TestSetRegistrar(t *testing.T) {
	w := chaintest.New(t)
	d := newDeed(t, w, ether(1))

	_, err := w.Submit(owner, "setRegistrar", func(c *ledger.Call) error { return d.SetRegistrar(c, owner) })
	wantKind(t, err, arcerrors.ErrUnauthorized)

	w.Must(registrar, "setRegistrar", func(c *ledger.Call) error { return d.SetRegistrar(c, stranger) })
	if got := w.Deed(d.Addr).Registrar; got != stranger {
		t.Errorf("registrar = %s", got.Hex())
	}
	_, err = w.Submit(registrar, "setBalance", func(c *ledger.Call) error { return d.SetBalance(c, ether(0), true) })
	wantKind(t, err, arcerrors.ErrUnauthorized)
}
