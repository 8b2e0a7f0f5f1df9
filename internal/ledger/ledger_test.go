package ledger

import (
	"context"
	"errors"
	"math/big"
	"slices"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gezibash/arc-registrar/internal/statestore/physical/badger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// counter is a toy contract: Bump stores a counter and forwards its call value to a beneficiary.
type counter struct{ addr common.Address }

type bumper interface {
	Bump(c *Call, to common.Address) error
}

func (k counter) Bump(c *Call, to common.Address) error {
	in, err := c.Enter(k.addr, c.Value())
	if err != nil {
		return err
	}
	var n uint64
	if _, err := in.Load([]byte("n"), &n); err != nil {
		return err
	}
	if err := in.Store([]byte("n"), n+1); err != nil {
		return err
	}
	in.Emit("Bumped", Uint("n", n+1), Address("by", in.Sender()))
	return in.Pay(to, in.Value())
}

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	be, err := badger.NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { be.Close() })
	l := New(be, opts...)
	l.RegisterKind("counter", func(addr common.Address) any { return counter{addr: addr} })
	return l
}

func deployCounter(t *testing.T, l *Ledger) common.Address {
	t.Helper()
	var addr common.Address
	_, err := l.Submit(context.Background(), alice, "deploy", func(c *Call) error {
		in, err := c.Deploy("counter", nil)
		if err != nil {
			return err
		}
		addr = in.Self()
		return nil
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	return addr
}

func TestDeployAddressDerivation(t *testing.T) {
	l := newTestLedger(t)
	first := deployCounter(t, l)
	second := deployCounter(t, l)

	if first != crypto.CreateAddress(alice, 0) {
		t.Errorf("first = %s, want CreateAddress(alice, 0)", first.Hex())
	}
	if second != crypto.CreateAddress(alice, 1) {
		t.Errorf("second = %s, want CreateAddress(alice, 1)", second.Hex())
	}
	kind, err := l.KindOf(context.Background(), first)
	if err != nil || kind != "counter" {
		t.Errorf("KindOf = %q, %v", kind, err)
	}
	if kind, _ := l.KindOf(context.Background(), bob); kind != KindAccount {
		t.Errorf("KindOf(bob) = %q", kind)
	}
}

func TestSubmitMovesValueAndEmits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	if err := l.Allocate(ctx, map[common.Address]*big.Int{alice: big.NewInt(100)}); err != nil {
		t.Fatal(err)
	}
	addr := deployCounter(t, l)

	rc, err := l.Submit(ctx, alice, "bump", func(c *Call) error {
		k, err := ContractAt[bumper](c, addr)
		if err != nil {
			return err
		}
		c.value = big.NewInt(30)
		return k.Bump(c, bob)
	})
	if err != nil {
		t.Fatalf("bump: %v", err)
	}

	aBal, _ := l.Balance(ctx, alice)
	bBal, _ := l.Balance(ctx, bob)
	cBal, _ := l.Balance(ctx, addr)
	if aBal.Int64() != 70 || bBal.Int64() != 30 || cBal.Sign() != 0 {
		t.Errorf("balances alice=%s bob=%s counter=%s", aBal, bBal, cBal)
	}

	bumped := rc.EventsNamed("Bumped")
	if len(bumped) != 1 {
		t.Fatalf("events = %+v", rc.Events)
	}
	if bumped[0].Get("n") != "1" || bumped[0].Get("by") != alice.Hex() || bumped[0].Kind != "counter" {
		t.Errorf("event = %+v", bumped[0])
	}
}

func TestSubmitRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	if err := l.Allocate(ctx, map[common.Address]*big.Int{alice: big.NewInt(10)}); err != nil {
		t.Fatal(err)
	}
	addr := deployCounter(t, l)

	boom := errors.New("boom")
	_, err := l.Submit(ctx, alice, "bump", func(c *Call) error {
		c.value = big.NewInt(10)
		if err := (counter{addr: addr}).Bump(c, bob); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Submit = %v, want boom", err)
	}

	aBal, _ := l.Balance(ctx, alice)
	if aBal.Int64() != 10 {
		t.Errorf("alice = %s after rollback", aBal)
	}
	var n uint64
	err = l.View(ctx, func(c *Call) error {
		in, err := c.Enter(addr, nil)
		if err != nil {
			return err
		}
		_, err = in.Load([]byte("n"), &n)
		return err
	})
	if err != nil || n != 0 {
		t.Errorf("counter = %d, %v after rollback", n, err)
	}
	evs, _ := l.Events(ctx, 0, 10)
	if len(evs) != 0 {
		t.Errorf("events persisted after rollback: %+v", evs)
	}
}

func TestInsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	addr := deployCounter(t, l)
	_, err := l.Submit(context.Background(), alice, "bump", func(c *Call) error {
		_, err := c.Enter(addr, big.NewInt(1))
		return err
	})
	if !errors.Is(err, arcerrors.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestEventsCursor(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	addr := deployCounter(t, l)
	for range 3 {
		if _, err := l.Submit(ctx, bob, "bump", func(c *Call) error {
			return (counter{addr: addr}).Bump(c, bob)
		}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.Events(ctx, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("Events = %d, %v", len(all), err)
	}
	for i, ev := range all {
		if ev.Seq != uint64(i+1) {
			t.Errorf("seq[%d] = %d", i, ev.Seq)
		}
	}
	tail, _ := l.Events(ctx, 2, 10)
	if len(tail) != 1 || tail[0].Get("n") != "3" {
		t.Errorf("tail = %+v", tail)
	}
	page, _ := l.Events(ctx, 0, 2)
	if len(page) != 2 {
		t.Errorf("page = %d events", len(page))
	}
}

func TestContractAtRejectsWrongInterface(t *testing.T) {
	l := newTestLedger(t)
	addr := deployCounter(t, l)

	type stranger interface{ Nope() }
	err := l.View(context.Background(), func(c *Call) error {
		if _, err := ContractAt[stranger](c, addr); !errors.Is(err, arcerrors.ErrInvalidInput) {
			t.Errorf("ContractAt[stranger] = %v", err)
		}
		if _, err := ContractAt[bumper](c, bob); !errors.Is(err, arcerrors.ErrNotFound) {
			t.Errorf("ContractAt(account) = %v", err)
		}
		if !Implements[bumper](c, addr) {
			t.Error("counter should implement bumper")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestViewIsReadOnly(t *testing.T) {
	l := newTestLedger(t)
	addr := deployCounter(t, l)
	err := l.View(context.Background(), func(c *Call) error {
		return (counter{addr: addr}).Bump(c, bob)
	})
	if err == nil {
		t.Fatal("expected write in View to fail")
	}
}

func TestCommitHookAndClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	var seen []*Receipt
	l := newTestLedger(t,
		WithClock(clock),
		WithCommitHook(func(_ context.Context, r *Receipt) { seen = append(seen, r) }),
	)
	addr := deployCounter(t, l)
	clock.Advance(48 * time.Hour)

	rc, err := l.Submit(context.Background(), alice, "bump", func(c *Call) error {
		if !c.Now().Equal(start.Add(48 * time.Hour)) {
			t.Errorf("Now = %v", c.Now())
		}
		return (counter{addr: addr}).Bump(c, alice)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[1].ID != rc.ID {
		t.Fatalf("hook saw %d receipts", len(seen))
	}
	if got := rc.Events[0].Timestamp(); !got.Equal(start.Add(48 * time.Hour)) {
		t.Errorf("event time = %v", got)
	}
	if clock.Set(start) != start.Add(48*time.Hour) {
		t.Error("manual clock moved backwards")
	}
}

func TestSlowHookDoesNotHoldCommits(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	var order []string
	l := newTestLedger(t, WithCommitHook(func(_ context.Context, r *Receipt) {
		order = append(order, r.Op)
		if r.Op == "slow" {
			close(entered)
			<-release
		}
	}))
	addr := deployCounter(t, l)

	bump := func(op string) <-chan error {
		done := make(chan error, 1)
		go func() {
			_, err := l.Submit(context.Background(), alice, op, func(c *Call) error {
				return (counter{addr: addr}).Bump(c, bob)
			})
			done <- err
		}()
		return done
	}
	count := func() uint64 {
		var n uint64
		err := l.View(context.Background(), func(c *Call) error {
			in, err := c.Enter(addr, nil)
			if err != nil {
				return err
			}
			_, err = in.Load([]byte("n"), &n)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	slow := bump("slow")
	<-entered
	fast := bump("fast")

	deadline := time.Now().Add(5 * time.Second)
	for count() < 2 {
		if time.Now().After(deadline) {
			close(release)
			t.Fatal("second transaction did not commit while a hook was blocked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	for _, done := range []<-chan error{slow, fast} {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
	if want := []string{"deploy", "slow", "fast"}; !slices.Equal(order, want) {
		t.Errorf("hook order = %v, want %v", order, want)
	}
}
