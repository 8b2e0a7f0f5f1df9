package token_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/chaintest"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/token"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

func balance(t *testing.T, w *chaintest.World, tok token.Token, who common.Address) int64 {
	t.Helper()
	var out *big.Int
	w.View(func(c *ledger.Call) error {
		var err error
		out, err = tok.BalanceOf(c, who)
		return err
	})
	return out.Int64()
}

func TestMint(t *testing.T) {
	w := chaintest.New(t)
	_, err := w.Submit(chaintest.Alice, "mint", func(c *ledger.Call) error {
		return w.Token.Mint(c, chaintest.Alice, big.NewInt(10))
	})
	if !errors.Is(err, arcerrors.ErrUnauthorized) {
		t.Fatalf("mint by stranger = %v", err)
	}
	w.Must(chaintest.Deployer, "mint", func(c *ledger.Call) error {
		return w.Token.Mint(c, chaintest.Alice, big.NewInt(500))
	})
	if got := balance(t, w, w.Token, chaintest.Alice); got != 500 {
		t.Errorf("balance = %d", got)
	}
	w.View(func(c *ledger.Call) error {
		m, err := w.Token.Meta(c)
		if m.Symbol != "BRN" || m.Supply.Int64() != 500 || m.Owner != chaintest.Deployer {
			t.Errorf("meta = %+v", m)
		}
		return err
	})
}

func TestTransferAndAllowance(t *testing.T) {
	w := chaintest.New(t)
	w.Must(chaintest.Deployer, "mint", func(c *ledger.Call) error {
		return w.Token.Mint(c, chaintest.Alice, big.NewInt(100))
	})

	w.Must(chaintest.Alice, "transfer", func(c *ledger.Call) error {
		return w.Token.Transfer(c, chaintest.Bob, big.NewInt(30))
	})
	_, err := w.Submit(chaintest.Alice, "overspend", func(c *ledger.Call) error {
		return w.Token.Transfer(c, chaintest.Bob, big.NewInt(71))
	})
	if !errors.Is(err, arcerrors.ErrInsufficientFunds) {
		t.Errorf("overspend = %v", err)
	}

	w.Must(chaintest.Alice, "approve", func(c *ledger.Call) error {
		return w.Token.Approve(c, chaintest.Carol, big.NewInt(20))
	})
	_, err = w.Submit(chaintest.Carol, "pull too much", func(c *ledger.Call) error {
		return w.Token.TransferFrom(c, chaintest.Alice, chaintest.Carol, big.NewInt(21))
	})
	if !errors.Is(err, arcerrors.ErrInsufficientFunds) {
		t.Errorf("TransferFrom over allowance = %v", err)
	}
	w.Must(chaintest.Carol, "pull", func(c *ledger.Call) error {
		return w.Token.TransferFrom(c, chaintest.Alice, chaintest.Carol, big.NewInt(15))
	})

	if a, b, c := balance(t, w, w.Token, chaintest.Alice), balance(t, w, w.Token, chaintest.Bob), balance(t, w, w.Token, chaintest.Carol); a != 55 || b != 30 || c != 15 {
		t.Errorf("balances = %d %d %d", a, b, c)
	}
	w.View(func(c *ledger.Call) error {
		left, err := w.Token.Allowance(c, chaintest.Alice, chaintest.Carol)
		if left.Int64() != 5 {
			t.Errorf("allowance left = %s", left)
		}
		return err
	})
}

func TestApproveAndCallRequiresReceiver(t *testing.T) {
	w := chaintest.New(t)
	_, err := w.Submit(chaintest.Alice, "approveAndCall", func(c *ledger.Call) error {
		return w.Token.ApproveAndCall(c, w.Registry.Addr, big.NewInt(1), nil)
	})
	if !errors.Is(err, arcerrors.ErrInvalidInput) {
		t.Fatalf("approveAndCall to registry = %v", err)
	}
	w.View(func(c *ledger.Call) error {
		a, err := w.Token.Allowance(c, chaintest.Alice, w.Registry.Addr)
		if a.Sign() != 0 {
			t.Errorf("allowance survived failed call: %s", a)
		}
		return err
	})
}
