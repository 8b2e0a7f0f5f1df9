package node

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/auction"
	"github.com/gezibash/arc-registrar/internal/custody"
	"github.com/gezibash/arc-registrar/internal/fifs"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/policy"
	"github.com/gezibash/arc-registrar/internal/registry"
	"github.com/gezibash/arc-registrar/internal/token"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// Service runs contract operations by name on behalf of a sender. Names
// may be given as a raw label ("alice"), a full name under the contract's
// root ("alice.eth") or a 0x label hash.
type Service struct {
	node       *Node
	registry   registry.Registry
	token      token.Token
	auction    auction.Registrar
	fifs       fifs.BurnableRegistrar
	holder     custody.DeedHolder
	delegating custody.DelegatingDeedHolder
}

func newService(n *Node) *Service {
	m := n.manifest
	return &Service{
		node:       n,
		registry:   registry.At(m.Registry),
		token:      token.At(m.Token),
		auction:    auction.At(m.Auction),
		fifs:       fifs.BurnableAt(m.FIFS),
		holder:     custody.HolderAt(m.Holder),
		delegating: custody.DelegatingAt(m.Delegating),
	}
}

// Label is a parsed name argument.
type Label struct {
	Raw  string // empty when given as a hash
	Hash common.Hash
}

// ParseLabel resolves name to a label under parent.
func ParseLabel(name, parent string) (Label, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), "."+parent)
	h, err := namehash.ParseLabel(name)
	if err != nil {
		return Label{}, err
	}
	if strings.HasPrefix(name, "0x") && len(name) == 2+2*common.HashLength {
		return Label{Hash: h}, nil
	}
	return Label{Raw: name, Hash: h}, nil
}

func (s *Service) submit(ctx context.Context, from common.Address, op string, fn func(c *ledger.Call) error) (*ledger.Receipt, error) {
	return s.node.ledger.Submit(ctx, from, op, fn)
}

func (s *Service) view(ctx context.Context, fn func(c *ledger.Call) error) error {
	return s.node.ledger.View(ctx, fn)
}

func (s *Service) tldLabel(name string) (Label, error) {
	return ParseLabel(name, s.node.manifest.TLD)
}

func (s *Service) domainLabel(name string) (Label, error) {
	return ParseLabel(name, s.node.manifest.Domain)
}

// --- auction ---

// AuctionSettings returns the auction registrar parameters.
func (s *Service) AuctionSettings(ctx context.Context) (auction.Params, error) {
	var p auction.Params
	err := s.view(ctx, func(c *ledger.Call) error {
		var err error
		p, err = s.auction.Settings(c)
		return err
	})
	return p, err
}

// StartAuction opens bidding on name.
func (s *Service) StartAuction(ctx context.Context, from common.Address, name string) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, from, "auction.start", func(c *ledger.Call) error {
		return s.auction.StartAuction(c, l.Hash)
	})
}

// BidRequest describes a sealed bid. When Sealed is set the commitment was
// computed by the bidder and Value and Salt are ignored; Name is then only
// needed with Start.
type BidRequest struct {
	Name    string
	Value   *big.Int
	Deposit *big.Int
	Salt    common.Hash
	Sealed  common.Hash
	// Start opens the auction first when the label is Open.
	Start bool
}

// Bid seals and places a bid and returns the commitment.
func (s *Service) Bid(ctx context.Context, from common.Address, req BidRequest) (common.Hash, *ledger.Receipt, error) {
	if req.Deposit == nil {
		return common.Hash{}, nil, fmt.Errorf("%w: bid deposit required", arcerrors.ErrInvalidInput)
	}
	sealed := req.Sealed
	var l Label
	if sealed == (common.Hash{}) || req.Start {
		var err error
		if l, err = s.tldLabel(req.Name); err != nil {
			return common.Hash{}, nil, err
		}
	}
	if sealed == (common.Hash{}) {
		if req.Value == nil {
			return common.Hash{}, nil, fmt.Errorf("%w: bid value required", arcerrors.ErrInvalidInput)
		}
		sealed = auction.ShaBid(l.Hash, from, req.Value, req.Salt)
	}
	rc, err := s.submit(ctx, from, "auction.bid", func(c *ledger.Call) error {
		if req.Start {
			st, err := s.auction.State(c, l.Hash)
			if err != nil {
				return err
			}
			if st == auction.Open {
				if err := s.auction.StartAuction(c, l.Hash); err != nil {
					return err
				}
			}
		}
		return s.auction.NewBid(c, sealed, req.Deposit)
	})
	return sealed, rc, err
}

// Reveal unseals from's bid on name.
func (s *Service) Reveal(ctx context.Context, from common.Address, name string, value *big.Int, salt common.Hash) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, from, "auction.reveal", func(c *ledger.Call) error {
		return s.auction.UnsealBid(c, l.Hash, value, salt)
	})
}

// SealedBid looks up a commitment.
func (s *Service) SealedBid(ctx context.Context, sealed common.Hash) (auction.Bid, bool, error) {
	var (
		b  auction.Bid
		ok bool
	)
	err := s.view(ctx, func(c *ledger.Call) error {
		var err error
		b, ok, err = s.auction.SealedBid(c, sealed)
		return err
	})
	return b, ok, err
}

// Finalize settles a Pending auction for its leader.
func (s *Service) Finalize(ctx context.Context, from common.Address, name string) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, from, "auction.finalize", func(c *ledger.Call) error {
		return s.auction.FinalizeAuction(c, l.Hash)
	})
}

// EntryView is an auction entry with its label and availability.
type EntryView struct {
	Label     Label
	AllowedAt time.Time
	auction.Entry
}

// Entry returns the auction entry of name.
func (s *Service) Entry(ctx context.Context, name string) (EntryView, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return EntryView{}, err
	}
	v := EntryView{Label: l}
	err = s.view(ctx, func(c *ledger.Call) error {
		var err error
		if v.Entry, err = s.auction.Entries(c, l.Hash); err != nil {
			return err
		}
		v.AllowedAt, err = s.auction.AllowedAt(c, l.Hash)
		return err
	})
	return v, err
}

// TransferName moves the deed and registry node of name to to.
func (s *Service) TransferName(ctx context.Context, from common.Address, name string, to common.Address) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, from, "auction.transfer", func(c *ledger.Call) error {
		return s.auction.Transfer(c, l.Hash, to)
	})
}

// Migrate hands the deed of name to the registrar now owning the TLD.
func (s *Service) Migrate(ctx context.Context, from common.Address, name string) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, from, "auction.migrate", func(c *ledger.Call) error {
		return s.auction.TransferRegistrars(c, l.Hash)
	})
}

// ReleaseName closes the deed of name with a full refund.
func (s *Service) ReleaseName(ctx context.Context, from common.Address, name string) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, from, "auction.release", func(c *ledger.Call) error {
		return s.auction.ReleaseDeed(c, l.Hash)
	})
}

// Invalidate forbids name under the name policy. The raw label is required.
func (s *Service) Invalidate(ctx context.Context, from common.Address, name string) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	if l.Raw == "" {
		return nil, fmt.Errorf("%w: invalidation needs the raw label, not its hash", arcerrors.ErrInvalidInput)
	}
	return s.submit(ctx, from, "auction.invalidate", func(c *ledger.Call) error {
		return s.auction.InvalidateName(c, l.Raw)
	})
}

// --- fifs ---

// Registration describes a FIFS registration.
type Registration struct {
	Name     string
	Owner    common.Address
	Resolver common.Address // zero selects the default resolver
}

// allowed rejects raw labels the name policy forbids.
func (s *Service) allowed(ctx context.Context, l Label) error {
	if l.Raw == "" {
		return nil
	}
	p, err := s.AuctionSettings(ctx)
	if err != nil {
		return err
	}
	pol, err := policy.Compile(p.Policy)
	if err != nil {
		return err
	}
	forbidden, err := pol.Forbidden(l.Raw)
	if err != nil {
		return err
	}
	if forbidden {
		return fmt.Errorf("%w: %q is forbidden by the name policy", arcerrors.ErrInvalidValue, l.Raw)
	}
	return nil
}

// Register claims a name under the FIFS domain, burning the registration cost.
func (s *Service) Register(ctx context.Context, from common.Address, req Registration) (*ledger.Receipt, error) {
	l, err := s.domainLabel(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.allowed(ctx, l); err != nil {
		return nil, err
	}
	return s.submit(ctx, from, "fifs.register", func(c *ledger.Call) error {
		if req.Resolver == (common.Address{}) {
			return s.fifs.Register(c, l.Hash, req.Owner)
		}
		return s.fifs.RegisterWithResolver(c, l.Hash, req.Owner, req.Resolver)
	})
}

// ApproveAndRegister approves amount tokens and registers in one call
// through the token's approve-and-call.
func (s *Service) ApproveAndRegister(ctx context.Context, from common.Address, req Registration, amount *big.Int) (*ledger.Receipt, error) {
	l, err := s.domainLabel(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.allowed(ctx, l); err != nil {
		return nil, err
	}
	var data []byte
	if req.Resolver == (common.Address{}) {
		data, err = fifs.EncodeRegister(l.Hash, req.Owner)
	} else {
		data, err = fifs.EncodeRegisterWithResolver(l.Hash, req.Owner, req.Resolver)
	}
	if err != nil {
		return nil, fmt.Errorf("encode registration: %w", err)
	}
	return s.submit(ctx, from, "fifs.approveAndCall", func(c *ledger.Call) error {
		tok, err := s.fifs.BurningToken(c)
		if err != nil {
			return err
		}
		return token.At(tok).ApproveAndCall(c, s.fifs.Addr, amount, data)
	})
}

// FIFSInfo describes the burnable registrar.
type FIFSInfo struct {
	Domain string
	Cost   *big.Int
	Token  common.Address
	Owner  common.Address
}

// FIFS returns the burnable registrar settings.
func (s *Service) FIFS(ctx context.Context) (FIFSInfo, error) {
	info := FIFSInfo{Domain: s.node.manifest.Domain}
	err := s.view(ctx, func(c *ledger.Call) error {
		var err error
		if info.Cost, err = s.fifs.RegistrationCost(c); err != nil {
			return err
		}
		if info.Token, err = s.fifs.BurningToken(c); err != nil {
			return err
		}
		info.Owner, err = s.fifs.Owner(c)
		return err
	})
	return info, err
}

// Available reports whether name is unowned under the FIFS domain.
func (s *Service) Available(ctx context.Context, name string) (bool, error) {
	l, err := s.domainLabel(name)
	if err != nil {
		return false, err
	}
	var ok bool
	err = s.view(ctx, func(c *ledger.Call) error {
		var err error
		ok, err = s.fifs.Available(c, l.Hash)
		return err
	})
	return ok, err
}

// SetCost changes the registration cost. Registrar owner only.
func (s *Service) SetCost(ctx context.Context, from common.Address, cost *big.Int) (*ledger.Receipt, error) {
	return s.submit(ctx, from, "fifs.setCost", func(c *ledger.Call) error {
		return s.fifs.SetRegistrationCost(c, cost)
	})
}

// SetBurningToken changes the token burned on registration. Registrar owner only.
func (s *Service) SetBurningToken(ctx context.Context, from, tok common.Address) (*ledger.Receipt, error) {
	return s.submit(ctx, from, "fifs.setToken", func(c *ledger.Call) error {
		return s.fifs.SetBurningToken(c, tok)
	})
}

// --- holders ---

type holderAPI interface {
	Owner(c *ledger.Call, label common.Hash) (common.Address, error)
	Transfer(c *ledger.Call, label common.Hash, newOwner common.Address) error
	Claim(c *ledger.Call, label common.Hash) error
	Release(c *ledger.Call, label common.Hash) error
	Deed(c *ledger.Call, label common.Hash) (common.Address, time.Time, error)
}

func (s *Service) holderFor(delegating bool) (holderAPI, common.Address) {
	if delegating {
		return s.delegating, s.delegating.Addr
	}
	return s.holder, s.holder.Addr
}

// HolderView is the custody state of a label.
type HolderView struct {
	Holder           common.Address
	Beneficiary      common.Address
	Deed             common.Address
	RegistrationDate time.Time
	Manager          common.Address // delegating holder only
}

// Holder returns the custody state of name in the plain or delegating holder.
func (s *Service) Holder(ctx context.Context, delegating bool, name string) (HolderView, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return HolderView{}, err
	}
	h, addr := s.holderFor(delegating)
	v := HolderView{Holder: addr}
	err = s.view(ctx, func(c *ledger.Call) error {
		var err error
		if v.Beneficiary, err = h.Owner(c, l.Hash); err != nil {
			return err
		}
		if v.Deed, v.RegistrationDate, err = h.Deed(c, l.Hash); err != nil {
			return err
		}
		if delegating {
			v.Manager, err = s.delegating.Manager(c, l.Hash)
		}
		return err
	})
	return v, err
}

// Deposit hands the deed of name to a holder, taking custody for from.
func (s *Service) Deposit(ctx context.Context, from common.Address, delegating bool, name string) (*ledger.Receipt, error) {
	_, addr := s.holderFor(delegating)
	return s.TransferName(ctx, from, name, addr)
}

// HolderTransfer changes the beneficiary of name.
func (s *Service) HolderTransfer(ctx context.Context, from common.Address, delegating bool, name string, to common.Address) (*ledger.Receipt, error) {
	return s.holderOp(ctx, from, delegating, name, "holder.transfer", func(c *ledger.Call, h holderAPI, label common.Hash) error {
		return h.Transfer(c, label, to)
	})
}

// Claim re-asserts custody of name, migrating the deed when needed.
func (s *Service) Claim(ctx context.Context, from common.Address, delegating bool, name string) (*ledger.Receipt, error) {
	return s.holderOp(ctx, from, delegating, name, "holder.claim", func(c *ledger.Call, h holderAPI, label common.Hash) error {
		return h.Claim(c, label)
	})
}

// HolderRelease returns the deed and node of name to the beneficiary.
func (s *Service) HolderRelease(ctx context.Context, from common.Address, delegating bool, name string) (*ledger.Receipt, error) {
	return s.holderOp(ctx, from, delegating, name, "holder.release", func(c *ledger.Call, h holderAPI, label common.Hash) error {
		return h.Release(c, label)
	})
}

// SetManager delegates management of name. Delegating holder only.
func (s *Service) SetManager(ctx context.Context, from common.Address, name string, manager common.Address) (*ledger.Receipt, error) {
	return s.holderOp(ctx, from, true, name, "holder.setManager", func(c *ledger.Call, _ holderAPI, label common.Hash) error {
		return s.delegating.SetManager(c, label, manager)
	})
}

func (s *Service) holderOp(ctx context.Context, from common.Address, delegating bool, name, op string, fn func(*ledger.Call, holderAPI, common.Hash) error) (*ledger.Receipt, error) {
	l, err := s.tldLabel(name)
	if err != nil {
		return nil, err
	}
	h, _ := s.holderFor(delegating)
	return s.submit(ctx, from, op, func(c *ledger.Call) error {
		return fn(c, h, l.Hash)
	})
}

// --- token ---

// TokenBalance returns the burnable token balance of owner.
func (s *Service) TokenBalance(ctx context.Context, owner common.Address) (token.Meta, *big.Int, error) {
	var (
		meta token.Meta
		bal  *big.Int
	)
	err := s.view(ctx, func(c *ledger.Call) error {
		var err error
		if meta, err = s.token.Meta(c); err != nil {
			return err
		}
		bal, err = s.token.BalanceOf(c, owner)
		return err
	})
	return meta, bal, err
}

// Allowance returns how much spender may pull from owner.
func (s *Service) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(ctx, func(c *ledger.Call) error {
		var err error
		out, err = s.token.Allowance(c, owner, spender)
		return err
	})
	return out, err
}

// Approve sets spender's allowance over from's tokens.
func (s *Service) Approve(ctx context.Context, from, spender common.Address, amount *big.Int) (*ledger.Receipt, error) {
	return s.submit(ctx, from, "token.approve", func(c *ledger.Call) error {
		return s.token.Approve(c, spender, amount)
	})
}

// TransferTokens moves tokens from from to to.
func (s *Service) TransferTokens(ctx context.Context, from, to common.Address, amount *big.Int) (*ledger.Receipt, error) {
	return s.submit(ctx, from, "token.transfer", func(c *ledger.Call) error {
		return s.token.Transfer(c, to, amount)
	})
}

// Mint creates tokens. Token owner only.
func (s *Service) Mint(ctx context.Context, from, to common.Address, amount *big.Int) (*ledger.Receipt, error) {
	return s.submit(ctx, from, "token.mint", func(c *ledger.Call) error {
		return s.token.Mint(c, to, amount)
	})
}

// Balance returns the native balance of addr.
func (s *Service) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return s.node.ledger.Balance(ctx, addr)
}

// --- registry ---

// Resolution is what the registry and resolver know about a name.
type Resolution struct {
	Name     string
	Node     common.Hash
	Owner    common.Address
	Resolver common.Address
	Addr     common.Address
}

type addrReader interface {
	Addr(c *ledger.Call, node common.Hash) (common.Address, error)
}

// Resolve looks up a full name such as "alice.eth".
func (s *Service) Resolve(ctx context.Context, name string) (Resolution, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	r := Resolution{Name: name, Node: namehash.NameHash(name)}
	err := s.view(ctx, func(c *ledger.Call) error {
		var err error
		if r.Owner, err = s.registry.Owner(c, r.Node); err != nil {
			return err
		}
		if r.Resolver, err = s.registry.Resolver(c, r.Node); err != nil {
			return err
		}
		if r.Resolver == (common.Address{}) {
			return nil
		}
		res, err := ledger.ContractAt[addrReader](c, r.Resolver)
		if err != nil {
			return nil
		}
		r.Addr, err = res.Addr(c, r.Node)
		return err
	})
	return r, err
}

// Events returns committed events after the cursor.
func (s *Service) Events(ctx context.Context, after uint64, limit int) ([]ledger.Event, error) {
	return s.node.ledger.Events(ctx, after, limit)
}
