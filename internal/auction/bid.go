package auction

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gezibash/arc-registrar/internal/ledger"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

// Phase is the lifecycle of a sealed bid. A bid that is never revealed
// stays Committed and its deposit is kept by the registrar.
type Phase uint8

const (
	Committed Phase = iota + 1
	Revealed
	Void
)

func (p Phase) String() string {
	switch p {
	case Committed:
		return "committed"
	case Revealed:
		return "revealed"
	case Void:
		return "void"
	}
	return "none"
}

// Bid is a stored sealed bid.
type Bid struct {
	Bidder    common.Address
	Deposit   *big.Int
	CreatedAt uint64
	Phase     Phase
}

// Created returns when the bid was placed.
func (b Bid) Created() time.Time { return unixTime(b.CreatedAt) }

func bidKey(sealed common.Hash) []byte { return append([]byte("bid/"), sealed.Bytes()...) }

// ShaBid returns the sealed bid commitment keccak256(label ‖ bidder ‖ value ‖ salt),
// with value as a 32-byte big-endian word.
func ShaBid(label common.Hash, bidder common.Address, value *big.Int, salt common.Hash) common.Hash {
	if value == nil {
		value = new(big.Int)
	}
	return crypto.Keccak256Hash(label.Bytes(), bidder.Bytes(), math.U256Bytes(new(big.Int).Set(value)), salt.Bytes())
}

// ShaBid is the registrar-bound form of the package helper.
func (r Registrar) ShaBid(label common.Hash, bidder common.Address, value *big.Int, salt common.Hash) common.Hash {
	return ShaBid(label, bidder, value, salt)
}

// SealedBid returns the bid stored under sealed.
func (r Registrar) SealedBid(c *ledger.Call, sealed common.Hash) (Bid, bool, error) {
	in, _, err := r.open(c, nil)
	if err != nil {
		return Bid{}, false, err
	}
	var b Bid
	ok, err := in.Load(bidKey(sealed), &b)
	if b.Deposit == nil {
		b.Deposit = new(big.Int)
	}
	return b, ok, err
}

// NewBid records a sealed bid with deposit moved from the caller. The
// deposit must cover the minimum price and should cover the hidden value.
func (r Registrar) NewBid(c *ledger.Call, sealed common.Hash, deposit *big.Int) error {
	if deposit == nil {
		deposit = new(big.Int)
	}
	in, cfg, err := r.open(c, deposit)
	if err != nil {
		return err
	}
	if deposit.Cmp(cfg.MinPrice) < 0 {
		return in.Revert("newBid", arcerrors.ErrInvalidValue, "deposit %s below minimum price %s", deposit, cfg.MinPrice)
	}
	if ok, err := in.Load(bidKey(sealed), new(Bid)); err != nil {
		return err
	} else if ok {
		return in.Revert("newBid", arcerrors.ErrIntegrity, "sealed bid %s already exists", sealed.Hex())
	}
	b := Bid{Bidder: in.Sender(), Deposit: new(big.Int).Set(deposit), CreatedAt: in.Unix(), Phase: Committed}
	if err := in.Store(bidKey(sealed), b); err != nil {
		return err
	}
	in.Emit("NewBid", ledger.Hash("sealed", sealed), ledger.Address("bidder", b.Bidder), ledger.Amount("deposit", deposit))
	return nil
}

// Reveal outcomes reported in the BidRevealed event.
const (
	outcomeVoid   = "void"
	outcomeLeader = "leader"
	outcomeSecond = "second"
	outcomeOutbid = "outbid"
)

// UnsealBid reveals the caller's bid on label. It fails unless a committed
// bid matches (label, caller, value, salt), the caller placed that bid and
// the label is in its reveal window. Void bids are refunded in full; valid bids get the excess deposit
// back at once and are ranked against the running leader.
func (r Registrar) UnsealBid(c *ledger.Call, label common.Hash, value *big.Int, salt common.Hash) error {
	if value == nil || value.Sign() < 0 {
		return arcerrors.Reverted(Kind, "unsealBid", arcerrors.ErrInvalidValue, "negative value")
	}
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	bidder := in.Sender()
	sealed := ShaBid(label, bidder, value, salt)
	var b Bid
	if _, err := in.Load(bidKey(sealed), &b); err != nil {
		return err
	}
	if b.Phase != Committed {
		return in.Revert("unsealBid", arcerrors.ErrIntegrity, "no committed bid matches %s", sealed.Hex())
	}
	if b.Bidder != bidder {
		return in.Revert("unsealBid", arcerrors.ErrUnauthorized, "bid %s was placed by %s, not %s", sealed.Hex(), b.Bidder.Hex(), bidder.Hex())
	}
	e, err := loadEntry(in, label)
	if err != nil {
		return err
	}
	if st := cfg.state(e, label, in.Unix()); st != Reveal {
		return in.Revert("unsealBid", arcerrors.ErrInvalidState, "label %s is %s, not in reveal", label.Hex(), st)
	}

	outcome := outcomeVoid
	refund := new(big.Int).Set(b.Deposit)
	switch {
	case b.Deposit.Cmp(value) < 0, value.Cmp(cfg.MinPrice) < 0, b.CreatedAt >= e.RegistrationDate-cfg.RevealPeriod:
		b.Phase = Void
	case value.Cmp(e.HighestBid) > 0:
		b.Phase = Revealed
		outcome = outcomeLeader
		if e.Leader != (common.Address{}) {
			if err := in.Pay(e.Leader, e.HighestBid); err != nil {
				return err
			}
		}
		e.Value = e.HighestBid
		e.HighestBid = new(big.Int).Set(value)
		e.Leader = bidder
		refund.Sub(refund, value)
	case value.Cmp(e.Value) > 0:
		b.Phase = Revealed
		outcome = outcomeSecond
		e.Value = new(big.Int).Set(value)
	default:
		b.Phase = Revealed
		outcome = outcomeOutbid
	}

	if err := in.Store(bidKey(sealed), b); err != nil {
		return err
	}
	if b.Phase == Revealed {
		if err := storeEntry(in, label, e); err != nil {
			return err
		}
	}
	if err := in.Pay(bidder, refund); err != nil {
		return err
	}
	in.Emit("BidRevealed",
		ledger.Hash("label", label),
		ledger.Address("bidder", bidder),
		ledger.Amount("value", value),
		ledger.Attr{Key: "outcome", Value: outcome},
	)
	return nil
}
