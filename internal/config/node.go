package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/node"
	"github.com/gezibash/arc-registrar/internal/observability"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/namehash"
	"github.com/gezibash/arc-registrar/pkg/units"
)

// Genesis converts the chain, auction and fifs sections. fallbackDeployer
// is used when chain.deployer is empty; it is normally the node's own key.
func (c Config) Genesis(fallbackDeployer common.Address) (node.Genesis, error) {
	deployer := fallbackDeployer
	if c.Chain.Deployer != "" {
		d, err := namehash.ParseAddress(c.Chain.Deployer)
		if err != nil {
			return node.Genesis{}, fmt.Errorf("chain.deployer: %w", err)
		}
		deployer = d
	}

	g := node.DefaultGenesis(deployer)
	g.TLD, g.Domain = c.Auction.TLD, c.FIFS.Domain
	g.Token = node.TokenSpec{Name: c.Chain.Token.Name, Symbol: c.Chain.Token.Symbol, Decimals: c.Chain.Token.Decimals}
	g.Auction = node.AuctionSpec{
		LaunchLength:  c.Auction.LaunchLength,
		AuctionLength: c.Auction.AuctionLength,
		RevealPeriod:  c.Auction.RevealPeriod,
		MinHoldPeriod: c.Auction.MinHoldPeriod,
		Policy:        c.Auction.Policy,
	}

	var err error
	if g.Token.Supply, err = amount("chain.token.supply", c.Chain.Token.Supply); err != nil {
		return node.Genesis{}, err
	}
	if g.Auction.MinPrice, err = amount("auction.min_price", c.Auction.MinPrice); err != nil {
		return node.Genesis{}, err
	}
	if g.FIFSCost, err = amount("fifs.cost", c.FIFS.Cost); err != nil {
		return node.Genesis{}, err
	}

	if len(c.Chain.Alloc) > 0 {
		g.Alloc = make(map[common.Address]*big.Int, len(c.Chain.Alloc))
		for addr, v := range c.Chain.Alloc {
			a, err := namehash.ParseAddress(addr)
			if err != nil {
				return node.Genesis{}, fmt.Errorf("chain.alloc: %w", err)
			}
			if g.Alloc[a], err = amount("chain.alloc."+addr, v); err != nil {
				return node.Genesis{}, err
			}
		}
	}
	return g, nil
}

func amount(key, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := units.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// NodeOptions converts the storage, events and chain sections into
// node.Options. metrics may be nil.
func (c Config) NodeOptions(fallbackDeployer common.Address, metrics *observability.Metrics) (node.Options, error) {
	g, err := c.Genesis(fallbackDeployer)
	if err != nil {
		return node.Options{}, err
	}
	opts := node.Options{
		Backend:       c.Storage.State.Backend,
		BackendConfig: c.Storage.State.Config,
		Sink:          c.Events.Backend,
		SinkConfig:    c.Events.Config,
		Clock:         c.Chain.Clock,
		Genesis:       g,
		Metrics:       metrics,
	}
	if c.Chain.Start != "" {
		if opts.Start, err = time.Parse(time.RFC3339, c.Chain.Start); err != nil {
			return node.Options{}, fmt.Errorf("%w: chain.start: %v", arcerrors.ErrInvalidInput, err)
		}
	}
	return opts, nil
}
