package resolver_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/chaintest"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/resolver"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

func TestRecordsRequireNodeOwner(t *testing.T) {
	w := chaintest.New(t)
	node := namehash.NameHash("records")
	w.Must(chaintest.Deployer, "create", func(c *ledger.Call) error {
		return w.Registry.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash("records"), chaintest.Alice)
	})

	_, err := w.Submit(chaintest.Bob, "setAddr", func(c *ledger.Call) error {
		return w.Resolver.SetAddr(c, node, chaintest.Bob)
	})
	if !errors.Is(err, arcerrors.ErrUnauthorized) {
		t.Fatalf("SetAddr by stranger = %v", err)
	}

	content := common.HexToHash("0xc0ffee")
	rc := w.Must(chaintest.Alice, "records", func(c *ledger.Call) error {
		if err := w.Resolver.SetAddr(c, node, chaintest.Carol); err != nil {
			return err
		}
		return w.Resolver.SetContent(c, node, content)
	})
	if len(rc.EventsNamed("AddrChanged")) != 1 || len(rc.EventsNamed("ContentChanged")) != 1 {
		t.Errorf("events = %+v", rc.Events)
	}

	w.View(func(c *ledger.Call) error {
		a, err := w.Resolver.Addr(c, node)
		if err != nil {
			return err
		}
		h, err := w.Resolver.Content(c, node)
		if a != chaintest.Carol || h != content {
			t.Errorf("addr = %s content = %s", a.Hex(), h.Hex())
		}
		unset, _ := w.Resolver.Addr(c, namehash.NameHash("unset"))
		if unset != (common.Address{}) {
			t.Errorf("unset addr = %s", unset.Hex())
		}
		return err
	})
}

func TestHandleAt(t *testing.T) {
	w := chaintest.New(t)
	h := resolver.At(w.Resolver.Address)
	if h.Address != w.Resolver.Address {
		t.Fatalf("At = %s", h.Address.Hex())
	}
	node := namehash.NameHash("handle")
	w.Must(chaintest.Deployer, "create", func(c *ledger.Call) error {
		if err := w.Registry.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash("handle"), chaintest.Deployer); err != nil {
			return err
		}
		return h.SetAddr(c, node, chaintest.Alice)
	})
	w.View(func(c *ledger.Call) error {
		got, err := w.Resolver.Addr(c, node)
		if got != chaintest.Alice {
			t.Errorf("addr = %s", got.Hex())
		}
		return err
	})
}
