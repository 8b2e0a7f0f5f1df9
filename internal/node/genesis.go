package node

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/gezibash/arc-registrar/internal/auction"
	"github.com/gezibash/arc-registrar/internal/custody"
	"github.com/gezibash/arc-registrar/internal/deed"
	"github.com/gezibash/arc-registrar/internal/fifs"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/policy"
	"github.com/gezibash/arc-registrar/internal/registry"
	"github.com/gezibash/arc-registrar/internal/resolver"
	"github.com/gezibash/arc-registrar/internal/token"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

// TokenSpec describes the burnable token minted at genesis.
type TokenSpec struct {
	Name     string
	Symbol   string
	Decimals uint64
	Supply   *big.Int // minted to the deployer
}

// AuctionSpec is the auction registrar schedule.
type AuctionSpec struct {
	LaunchLength  time.Duration
	AuctionLength time.Duration
	RevealPeriod  time.Duration
	MinHoldPeriod time.Duration
	MinPrice      *big.Int
	Policy        string
}

// Genesis describes the initial state of a fresh ledger.
type Genesis struct {
	Deployer common.Address
	Alloc    map[common.Address]*big.Int
	TLD      string
	Domain   string
	Token    TokenSpec
	Auction  AuctionSpec
	FIFSCost *big.Int
}

// DefaultGenesis returns the devnet genesis: an "eth" auction registrar,
// a burnable "arc" registrar costing 10 tokens, and a token supply of one
// million whole units owned by deployer.
func DefaultGenesis(deployer common.Address) Genesis {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return Genesis{
		Deployer: deployer,
		Alloc:    map[common.Address]*big.Int{deployer: new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))},
		TLD:      "eth",
		Domain:   "arc",
		Token: TokenSpec{
			Name:     "Arc Burn Token",
			Symbol:   "ARB",
			Decimals: 18,
			Supply:   new(big.Int).Mul(big.NewInt(1_000_000), unit),
		},
		Auction: AuctionSpec{
			LaunchLength:  8 * 7 * 24 * time.Hour,
			AuctionLength: 5 * 24 * time.Hour,
			RevealPeriod:  48 * time.Hour,
			MinHoldPeriod: 365 * 24 * time.Hour,
			MinPrice:      new(big.Int).Set(auction.DefaultMinPrice),
			Policy:        policy.Default,
		},
		FIFSCost: new(big.Int).Mul(big.NewInt(10), unit),
	}
}

// Validate checks the genesis for obvious mistakes before anything is written.
func (g Genesis) Validate() error {
	switch {
	case g.Deployer == (common.Address{}):
		return fmt.Errorf("%w: genesis deployer required", arcerrors.ErrInvalidInput)
	case g.TLD == g.Domain:
		return fmt.Errorf("%w: tld and domain must differ", arcerrors.ErrInvalidInput)
	case g.FIFSCost != nil && g.FIFSCost.Sign() < 0:
		return fmt.Errorf("%w: negative registration cost", arcerrors.ErrInvalidInput)
	case g.Token.Supply != nil && g.Token.Supply.Sign() < 0:
		return fmt.Errorf("%w: negative token supply", arcerrors.ErrInvalidInput)
	}
	for _, label := range []string{g.TLD, g.Domain} {
		if label == "" || strings.Contains(label, ".") || strings.HasPrefix(label, "0x") {
			return fmt.Errorf("%w: genesis label %q", arcerrors.ErrInvalidInput, label)
		}
	}
	return nil
}

// Bootstrap allocates balances and deploys every contract in one
// transaction sent by the deployer.
func Bootstrap(ctx context.Context, l *ledger.Ledger, g Genesis) (Manifest, error) {
	if err := g.Validate(); err != nil {
		return Manifest{}, err
	}
	if err := l.Allocate(ctx, g.Alloc); err != nil {
		return Manifest{}, fmt.Errorf("allocate: %w", err)
	}

	m := Manifest{
		Version:    ManifestVersion,
		Deployer:   g.Deployer,
		TLD:        g.TLD,
		TLDNode:    namehash.NameHash(g.TLD),
		Domain:     g.Domain,
		DomainNode: namehash.NameHash(g.Domain),
	}
	rc, err := l.Submit(ctx, g.Deployer, "genesis", func(c *ledger.Call) error {
		reg, err := registry.Deploy(c)
		if err != nil {
			return err
		}
		res, err := resolver.Deploy(c, reg.Addr)
		if err != nil {
			return err
		}
		tok, err := token.Deploy(c, g.Token.Name, g.Token.Symbol, g.Token.Decimals)
		if err != nil {
			return err
		}
		if g.Token.Supply != nil && g.Token.Supply.Sign() > 0 {
			if err := tok.Mint(c, g.Deployer, g.Token.Supply); err != nil {
				return err
			}
		}

		p := auction.DefaultParams(reg.Addr, m.TLDNode)
		p.LaunchLength = g.Auction.LaunchLength
		p.AuctionLength = g.Auction.AuctionLength
		p.RevealPeriod = g.Auction.RevealPeriod
		p.MinHoldPeriod = g.Auction.MinHoldPeriod
		if g.Auction.MinPrice != nil {
			p.MinPrice = g.Auction.MinPrice
		}
		if g.Auction.Policy != "" {
			p.Policy = g.Auction.Policy
		}
		ar, err := auction.Deploy(c, p)
		if err != nil {
			return err
		}

		cost := g.FIFSCost
		if cost == nil {
			cost = new(big.Int)
		}
		fr, err := fifs.DeployBurnable(c, reg.Addr, m.DomainNode, res.Address, tok.Addr, cost)
		if err != nil {
			return err
		}
		holder, err := custody.DeployHolder(c, reg.Addr, m.TLDNode, ar.Addr)
		if err != nil {
			return err
		}
		delegating, err := custody.DeployDelegating(c, reg.Addr, m.TLDNode, ar.Addr)
		if err != nil {
			return err
		}

		if err := reg.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash(g.TLD), ar.Addr); err != nil {
			return err
		}
		if err := reg.SetSubnodeOwner(c, namehash.Root, namehash.LabelHash(g.Domain), fr.Addr); err != nil {
			return err
		}

		m.Registry, m.Resolver, m.Token = reg.Addr, res.Address, tok.Addr
		m.Auction, m.FIFS = ar.Addr, fr.Addr
		m.Holder, m.Delegating = holder.Addr, delegating.Addr
		return nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("genesis: %w", err)
	}
	m.CreatedAt = rc.Time
	if err := SaveManifest(ctx, l.Backend(), m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// registerContracts binds every contract kind the genesis deploys.
func registerContracts(l *ledger.Ledger) {
	registry.Register(l)
	resolver.Register(l)
	token.Register(l)
	deed.Register(l)
	auction.Register(l)
	fifs.Register(l)
	custody.Register(l)
}
