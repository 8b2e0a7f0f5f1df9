// Package auction implements the sealed-bid auction registrar for the
// labels directly under one root node.
//
// Bidders commit a hash of their bid while an auction runs, reveal it in the
// final reveal window, and the leader finalizes: the winner pays the
// second-highest revealed bid (Vickrey pricing), which is locked in a deed.
// Unrevealed bids are never refunded.
package auction

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/policy"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

// Kind is the ledger code kind of the auction registrar.
const Kind = "auction"

// Mode is the reported state of a label.
type Mode uint8

const (
	Open Mode = iota
	Auction
	Owned
	Forbidden
	Reveal
	NotYetAvailable
	Pending
)

var modeNames = [...]string{"open", "auction", "owned", "forbidden", "reveal", "not-yet-available", "pending"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", m)
}

// DefaultMinPrice is the smallest acceptable bid: 0.01 ether.
var DefaultMinPrice = big.NewInt(params.Ether / 100)

// Params configures a registrar at deployment.
type Params struct {
	Registry      common.Address
	RootNode      common.Hash
	LaunchDate    time.Time // zero means the deployment time
	LaunchLength  time.Duration
	AuctionLength time.Duration
	RevealPeriod  time.Duration
	MinHoldPeriod time.Duration
	MinPrice      *big.Int
	Previous      common.Address // registrar allowed to hand over deeds
	Policy        string         // CEL name policy used by InvalidateName
}

// DefaultParams returns the standard auction schedule for registry and rootNode.
func DefaultParams(registry common.Address, rootNode common.Hash) Params {
	return Params{
		Registry:      registry,
		RootNode:      rootNode,
		LaunchLength:  8 * 7 * 24 * time.Hour,
		AuctionLength: 5 * 24 * time.Hour,
		RevealPeriod:  48 * time.Hour,
		MinHoldPeriod: 365 * 24 * time.Hour,
		MinPrice:      new(big.Int).Set(DefaultMinPrice),
		Policy:        policy.Default,
	}
}

type config struct {
	Registry      common.Address
	RootNode      common.Hash
	LaunchDate    uint64
	LaunchLength  uint64
	AuctionLength uint64
	RevealPeriod  uint64
	MinHoldPeriod uint64
	MinPrice      *big.Int
	Previous      common.Address
	Policy        string
}

// allowedAt spreads label availability over the launch period by the top
// 128 bits of the label hash.
func (cfg config) allowedAt(label common.Hash) uint64 {
	off := new(big.Int).SetBytes(label[:16])
	off.Mul(off, new(big.Int).SetUint64(cfg.LaunchLength))
	off.Rsh(off, 128)
	return cfg.LaunchDate + off.Uint64()
}

type entry struct {
	Mode             uint8
	RegistrationDate uint64
	Value            *big.Int
	HighestBid       *big.Int
	Deed             common.Address
	Leader           common.Address
}

func (e *entry) normalize() {
	if e.Value == nil {
		e.Value = new(big.Int)
	}
	if e.HighestBid == nil {
		e.HighestBid = new(big.Int)
	}
}

func (cfg config) state(e entry, label common.Hash, now uint64) Mode {
	switch Mode(e.Mode) {
	case Owned, Forbidden:
		return Mode(e.Mode)
	}
	if now < cfg.allowedAt(label) {
		return NotYetAvailable
	}
	if Mode(e.Mode) != Auction {
		return Open
	}
	switch {
	case now < e.RegistrationDate-cfg.RevealPeriod:
		return Auction
	case now < e.RegistrationDate:
		return Reveal
	case e.Leader == (common.Address{}):
		return Open
	default:
		return Pending
	}
}

// Entry is the public view of a label.
type Entry struct {
	State            Mode
	Deed             common.Address
	RegistrationDate time.Time
	Value            *big.Int
	HighestBid       *big.Int
	Leader           common.Address
}

var keyConfig = []byte("cfg")

func entryKey(label common.Hash) []byte { return append([]byte("entry/"), label.Bytes()...) }

type registryAPI interface {
	Owner(c *ledger.Call, node common.Hash) (common.Address, error)
	SetSubnodeOwner(c *ledger.Call, node, label common.Hash, owner common.Address) error
}

// Acceptor is implemented by registrars that take over deeds from a predecessor.
type Acceptor interface {
	AcceptRegistrarTransfer(c *ledger.Call, label common.Hash, deed common.Address, registrationDate time.Time) error
}

// Registrar is a handle to a deployed auction registrar.
type Registrar struct {
	Addr common.Address
}

// At returns a handle for the registrar deployed at addr.
func At(addr common.Address) Registrar { return Registrar{Addr: addr} }

// Register binds the registrar code on l.
func Register(l *ledger.Ledger) {
	l.RegisterKind(Kind, func(addr common.Address) any { return At(addr) })
}

// Deploy creates a registrar. It must be made owner of p.RootNode in the
// registry before names can be finalized.
func Deploy(c *ledger.Call, p Params) (Registrar, error) {
	switch {
	case p.Registry == (common.Address{}):
		return Registrar{}, arcerrors.Reverted(Kind, "deploy", arcerrors.ErrInvalidInput, "registry address required")
	case p.RevealPeriod <= 0 || p.AuctionLength <= p.RevealPeriod:
		return Registrar{}, arcerrors.Reverted(Kind, "deploy", arcerrors.ErrInvalidInput,
			"auction length %s must exceed reveal period %s", p.AuctionLength, p.RevealPeriod)
	case p.MinPrice == nil || p.MinPrice.Sign() <= 0:
		return Registrar{}, arcerrors.Reverted(Kind, "deploy", arcerrors.ErrInvalidInput, "minimum price must be positive")
	case p.LaunchLength < 0 || p.MinHoldPeriod < 0:
		return Registrar{}, arcerrors.Reverted(Kind, "deploy", arcerrors.ErrInvalidInput, "negative period")
	}
	if p.Policy == "" {
		p.Policy = policy.Default
	}
	if _, err := policy.Compile(p.Policy); err != nil {
		return Registrar{}, arcerrors.Reverted(Kind, "deploy", arcerrors.ErrInvalidInput, "name policy: %v", err)
	}

	in, err := c.Deploy(Kind, nil)
	if err != nil {
		return Registrar{}, err
	}
	launch := in.Unix()
	if !p.LaunchDate.IsZero() {
		launch = uint64(p.LaunchDate.Unix()) //nolint:gosec
	}
	cfg := config{
		Registry:      p.Registry,
		RootNode:      p.RootNode,
		LaunchDate:    launch,
		LaunchLength:  seconds(p.LaunchLength),
		AuctionLength: seconds(p.AuctionLength),
		RevealPeriod:  seconds(p.RevealPeriod),
		MinHoldPeriod: seconds(p.MinHoldPeriod),
		MinPrice:      new(big.Int).Set(p.MinPrice),
		Previous:      p.Previous,
		Policy:        p.Policy,
	}
	if err := in.Store(keyConfig, cfg); err != nil {
		return Registrar{}, err
	}
	return Registrar{Addr: in.Self()}, nil
}

func seconds(d time.Duration) uint64 { return uint64(d / time.Second) } //nolint:gosec

func unixTime(s uint64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(int64(s), 0).UTC() //nolint:gosec
}

func (r Registrar) open(c *ledger.Call, value *big.Int) (*ledger.Call, config, error) {
	in, err := c.Enter(r.Addr, value)
	if err != nil {
		return nil, config{}, err
	}
	if in.Kind() != Kind {
		return nil, config{}, arcerrors.Reverted(Kind, "open", arcerrors.ErrNotFound, "no auction registrar at %s", r.Addr.Hex())
	}
	var cfg config
	if _, err := in.Load(keyConfig, &cfg); err != nil {
		return nil, config{}, err
	}
	return in, cfg, nil
}

func loadEntry(in *ledger.Call, label common.Hash) (entry, error) {
	var e entry
	if _, err := in.Load(entryKey(label), &e); err != nil {
		return e, err
	}
	e.normalize()
	return e, nil
}

func storeEntry(in *ledger.Call, label common.Hash, e entry) error {
	return in.Store(entryKey(label), e)
}

// Entries returns the public view of label.
func (r Registrar) Entries(c *ledger.Call, label common.Hash) (Entry, error) {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return Entry{}, err
	}
	e, err := loadEntry(in, label)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		State:            cfg.state(e, label, in.Unix()),
		Deed:             e.Deed,
		RegistrationDate: unixTime(e.RegistrationDate),
		Value:            e.Value,
		HighestBid:       e.HighestBid,
		Leader:           e.Leader,
	}, nil
}

// State returns the reported mode of label.
func (r Registrar) State(c *ledger.Call, label common.Hash) (Mode, error) {
	e, err := r.Entries(c, label)
	return e.State, err
}

// AllowedAt returns when label becomes available for auction.
func (r Registrar) AllowedAt(c *ledger.Call, label common.Hash) (time.Time, error) {
	_, cfg, err := r.open(c, nil)
	if err != nil {
		return time.Time{}, err
	}
	return unixTime(cfg.allowedAt(label)), nil
}

// Settings returns the deployment parameters.
func (r Registrar) Settings(c *ledger.Call) (Params, error) {
	_, cfg, err := r.open(c, nil)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Registry:      cfg.Registry,
		RootNode:      cfg.RootNode,
		LaunchDate:    unixTime(cfg.LaunchDate),
		LaunchLength:  time.Duration(cfg.LaunchLength) * time.Second,
		AuctionLength: time.Duration(cfg.AuctionLength) * time.Second,
		RevealPeriod:  time.Duration(cfg.RevealPeriod) * time.Second,
		MinHoldPeriod: time.Duration(cfg.MinHoldPeriod) * time.Second,
		MinPrice:      cfg.MinPrice,
		Previous:      cfg.Previous,
		Policy:        cfg.Policy,
	}, nil
}

// StartAuction opens bidding on label. The label must be Open.
func (r Registrar) StartAuction(c *ledger.Call, label common.Hash) error {
	in, cfg, err := r.open(c, nil)
	if err != nil {
		return err
	}
	e, err := loadEntry(in, label)
	if err != nil {
		return err
	}
	now := in.Unix()
	if st := cfg.state(e, label, now); st != Open {
		return in.Revert("startAuction", arcerrors.ErrInvalidState, "label %s is %s", label.Hex(), st)
	}
	e = entry{
		Mode:             uint8(Auction),
		RegistrationDate: now + cfg.AuctionLength,
		Value:            new(big.Int),
		HighestBid:       new(big.Int),
	}
	if err := storeEntry(in, label, e); err != nil {
		return err
	}
	in.Emit("AuctionStarted", ledger.Hash("label", label), ledger.Uint("registrationDate", e.RegistrationDate))
	return nil
}

func (r Registrar) registry(in *ledger.Call, cfg config) (registryAPI, error) {
	return ledger.ContractAt[registryAPI](in, cfg.Registry)
}

// controlsRoot reports whether this registrar still owns its root node.
func controlsRoot(in *ledger.Call, reg registryAPI, cfg config) (bool, error) {
	owner, err := reg.Owner(in, cfg.RootNode)
	if err != nil {
		return false, err
	}
	return owner == in.Self(), nil
}

// trySetSubnodeOwner updates the registry only while this registrar controls
// the root node; after a migration the registry is left alone.
func (r Registrar) trySetSubnodeOwner(in *ledger.Call, cfg config, label common.Hash, owner common.Address) error {
	reg, err := r.registry(in, cfg)
	if err != nil {
		return err
	}
	ok, err := controlsRoot(in, reg, cfg)
	if err != nil || !ok {
		return err
	}
	return reg.SetSubnodeOwner(in, cfg.RootNode, label, owner)
}
