package auction

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/pkg/identity"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

func TestBidBookLifecycle(t *testing.T) {
	dir := t.TempDir()
	book, err := openBidBook(dir)
	if err != nil {
		t.Fatal(err)
	}
	bidder := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	label := namehash.LabelHash("example")
	bid := savedBid{Name: "example", Label: label, Bidder: bidder, Deposit: "1000", Sealed: common.HexToHash("0x01")}
	if err := book.add(bid); err != nil {
		t.Fatal(err)
	}
	if got := book.forLabel(label, bidder); len(got) != 0 {
		t.Fatalf("unplaced bid listed for reveal: %v", got)
	}
	if err := book.markPlaced(bid.Sealed); err != nil {
		t.Fatal(err)
	}

	again, err := openBidBook(dir)
	if err != nil {
		t.Fatal(err)
	}
	got := again.forLabel(label, bidder)
	if len(got) != 1 || !got[0].Placed || got[0].Deposit != "1000" {
		t.Fatalf("reloaded bids = %+v", got)
	}
	if len(again.forLabel(label, common.Address{})) != 0 {
		t.Error("bid listed for another bidder")
	}

	if err := again.remove(bid.Sealed); err != nil {
		t.Fatal(err)
	}
	if len(again.list()) != 0 {
		t.Errorf("bids after remove = %v", again.list())
	}
}

func TestBidSecret(t *testing.T) {
	kp, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	key, err := bidKey(kp)
	if err != nil {
		t.Fatal(err)
	}
	value := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))
	salt := common.HexToHash("0x00ff00000000000000000000000000000000000000000000000000000000abcd")

	secret, err := sealSecret(key, value, salt)
	if err != nil {
		t.Fatal(err)
	}
	gotVal, gotSalt, err := openSecret(key, secret)
	if err != nil {
		t.Fatal(err)
	}
	if gotVal.Cmp(value) != 0 || gotSalt != salt {
		t.Fatalf("opened %v %s", gotVal, gotSalt.Hex())
	}

	t.Run("zero value", func(t *testing.T) {
		s, err := sealSecret(key, new(big.Int), salt)
		if err != nil {
			t.Fatal(err)
		}
		v, _, err := openSecret(key, s)
		if err != nil || v.Sign() != 0 {
			t.Fatalf("got %v, %v", v, err)
		}
	})

	t.Run("other key", func(t *testing.T) {
		other, _ := identity.Generate()
		otherKey, _ := bidKey(other)
		if _, _, err := openSecret(otherKey, secret); err == nil {
			t.Fatal("opened with another key")
		}
	})

	t.Run("no private key", func(t *testing.T) {
		if _, err := bidKey(addrOnly{}); err != errNoPrivateKey {
			t.Fatalf("err = %v", err)
		}
	})
}

type addrOnly struct{}

func (addrOnly) Address() common.Address     { return common.Address{} }
func (addrOnly) Sign([]byte) ([]byte, error) { return nil, nil }
