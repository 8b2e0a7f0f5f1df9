// Package auction holds the `auction` command group for the sealed-bid
// registrar.
package auction

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/auction"
	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/internal/node"
	"github.com/gezibash/arc-registrar/pkg/client"
	"github.com/gezibash/arc-registrar/pkg/namehash"
	"github.com/gezibash/arc-registrar/pkg/units"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auction",
		Short: "Bid on and manage names in the auction registrar",
	}
	cmd.AddCommand(
		newSettingsCmd(v),
		newEntryCmd(v),
		newStartCmd(v),
		newBidCmd(v),
		newBidsCmd(v),
		newSealedCmd(v),
		newRevealCmd(v),
		newFinalizeCmd(v),
		nameCmd(v, "transfer <name> <to>", "Transfer a name and its deed", 2, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
			to, err := s.Address(ctx, args[1])
			if err != nil {
				return nil, err
			}
			return c.Transfer(ctx, args[0], to)
		}),
		nameCmd(v, "release <name>", "Release a name held past the minimum hold period", 1, func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
			return c.Release(ctx, args[0])
		}),
		nameCmd(v, "invalidate <name>", "Invalidate a name that violates the name policy", 1, func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
			return c.Invalidate(ctx, args[0])
		}),
		nameCmd(v, "migrate <name>", "Move a name's deed to the successor registrar", 1, func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
			return c.Migrate(ctx, args[0])
		}),
	)
	return cmd
}

// nameCmd builds a signed command that submits one operation and prints
// its receipt.
func nameCmd(v *viper.Viper, use, short string, nargs int, op func(ctx context.Context, s *cli.Session, c *client.Client, args []string) (*client.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			rc, err := op(ctx, s, c, args)
			if err != nil {
				return err
			}
			return s.Out.Receipt(rc, nil).Render()
		}),
	}
}

func newSettingsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the auction schedule",
		Args:  cobra.NoArgs,
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, _ []string) error {
			p, err := c.AuctionSettings(ctx)
			if err != nil {
				return err
			}
			return s.Out.KV("auction-settings").
				Set("Registry", p.Registry.Hex()).
				Set("Root Node", p.RootNode.Hex()).
				Set("Launch Date", p.LaunchDate.Format(time.RFC3339)).
				Set("Launch Length", p.LaunchLength).
				Set("Auction Length", p.AuctionLength).
				Set("Reveal Period", p.RevealPeriod).
				Set("Min Hold Period", p.MinHoldPeriod).
				Set("Min Price", units.Ether(p.MinPrice)+" ether").
				SetIf(p.Previous != common.Address{}, "Previous", p.Previous.Hex()).
				SetIf(p.Policy != "", "Policy", p.Policy).
				Render()
		}),
	}
}

func newEntryCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "entry <name>",
		Short: "Show the auction entry of a name",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			e, err := c.Entry(ctx, args[0])
			if err != nil {
				return err
			}
			return s.Out.KV("entry").
				SetIf(e.Label != "", "Label", e.Label).
				Set("Hash", e.Hash.Hex()).
				Set("State", e.State).
				Set("Allowed At", e.AllowedAt.Format(time.RFC3339)).
				SetIf(e.Deed != common.Address{}, "Deed", e.Deed.Hex()).
				SetIf(!e.RegistrationDate.IsZero(), "Registration Date", e.RegistrationDate.Format(time.RFC3339)).
				Set("Value", units.Ether(e.Value)+" ether").
				Set("Highest Bid", units.Ether(e.HighestBid)+" ether").
				SetIf(e.Leader != common.Address{}, "Leader", s.Display(e.Leader)).
				Render()
		}),
	}
}

func newStartCmd(v *viper.Viper) *cobra.Command {
	return nameCmd(v, "start <name>", "Open an auction for a name", 1, func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
		return c.StartAuction(ctx, args[0])
	})
}

func newBidCmd(v *viper.Viper) *cobra.Command {
	var (
		value, deposit, saltHex string
		start                   bool
	)
	cmd := &cobra.Command{
		Use:   "bid <name>",
		Short: "Place a sealed bid",
		Long: `Bid seals the value locally and sends only the commitment and the
deposit. The value and salt are kept encrypted under the bidder's key in
<data-dir>/bids.yaml for reveal.`,
		Example: `  arc-registrar auction bid example --value 1ether --deposit 1.5ether --start`,
		Args:    cobra.ExactArgs(1),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			val, err := units.Parse(value)
			if err != nil {
				return fmt.Errorf("--value: %w", err)
			}
			dep := val
			if deposit != "" {
				if dep, err = units.Parse(deposit); err != nil {
					return fmt.Errorf("--deposit: %w", err)
				}
			}
			salt, err := parseSalt(saltHex)
			if err != nil {
				return err
			}
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			label, err := node.ParseLabel(args[0], st.TLD)
			if err != nil {
				return err
			}

			signer, err := s.Signer(ctx)
			if err != nil {
				return err
			}
			key, err := bidKey(signer)
			if err != nil {
				return err
			}
			bidder := signer.Address()
			sealed := auction.ShaBid(label.Hash, bidder, val, salt)
			secret, err := sealSecret(key, val, salt)
			if err != nil {
				return err
			}
			book, err := openBidBook(s.Config.ResolvedDataDir())
			if err != nil {
				return err
			}
			if err := book.add(savedBid{
				Name: args[0], Label: label.Hash, Bidder: bidder,
				Sealed: sealed, Deposit: dep.String(), Secret: secret,
				Created: time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("store bid secret: %w", err)
			}

			req := client.BidRequest{Sealed: sealed, Deposit: dep, Start: start}
			if start {
				req.Name = args[0]
			}
			_, rc, err := c.Bid(ctx, req)
			if err != nil {
				return err
			}
			if err := book.markPlaced(sealed); err != nil {
				return err
			}
			return s.Out.Receipt(rc, map[string]any{
				"sealed": sealed.Hex(),
				"salt":   salt.Hex(),
			}).Render()
		}),
	}
	cmd.Flags().StringVar(&value, "value", "", "bid value, e.g. 1.5ether")
	cmd.Flags().StringVar(&deposit, "deposit", "", "deposit to lock, at least the value (default: value)")
	cmd.Flags().StringVar(&saltHex, "salt", "", "32-byte hex salt (default: random)")
	cmd.Flags().BoolVar(&start, "start", false, "start the auction if the name is open")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func parseSalt(s string) (common.Hash, error) {
	if s != "" {
		h, err := namehash.ParseHash(s)
		if err != nil {
			return common.Hash{}, fmt.Errorf("--salt: %w", err)
		}
		return h, nil
	}
	var salt common.Hash
	if _, err := rand.Read(salt[:]); err != nil {
		return common.Hash{}, err
	}
	return salt, nil
}

func newBidsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "bids",
		Short: "List locally stored bid secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			book, err := openBidBook(s.Config.ResolvedDataDir())
			if err != nil {
				return err
			}
			tbl := s.Out.Table("bids", "Name", "Bidder", "Deposit", "Sealed", "Created", "Placed")
			for _, b := range book.list() {
				dep, ok := new(big.Int).SetString(b.Deposit, 10)
				if !ok {
					dep = new(big.Int)
				}
				tbl.AddRow(b.Name, s.Display(b.Bidder), units.Ether(dep), b.Sealed.Hex(), b.Created.Format(time.RFC3339), fmt.Sprint(b.Placed))
			}
			return tbl.Render()
		},
	}
}

func newSealedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sealed <hash>",
		Short: "Look up a sealed bid by its commitment",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			h, err := namehash.ParseHash(args[0])
			if err != nil {
				return err
			}
			b, ok, err := c.SealedBid(ctx, h)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no sealed bid %s", h.Hex())
			}
			return s.Out.KV("sealed-bid").
				Set("Bidder", s.Display(b.Bidder)).
				Set("Deposit", units.Ether(b.Deposit)+" ether").
				Set("Created", b.CreatedAt.Format(time.RFC3339)).
				Set("Phase", b.Phase).
				Render()
		}),
	}
}

func newRevealCmd(v *viper.Viper) *cobra.Command {
	var value, saltHex string
	cmd := &cobra.Command{
		Use:   "reveal <name>",
		Short: "Reveal sealed bids on a name",
		Long: `Reveal unseals the caller's bids on a name. Without --value and --salt
every stored bid for the name is revealed.`,
		Args: cobra.ExactArgs(1),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			if value != "" || saltHex != "" {
				val, err := units.Parse(value)
				if err != nil {
					return fmt.Errorf("--value: %w", err)
				}
				salt, err := namehash.ParseHash(saltHex)
				if err != nil {
					return fmt.Errorf("--salt: %w", err)
				}
				rc, err := c.Reveal(ctx, args[0], val, salt)
				if err != nil {
					return err
				}
				return s.Out.Receipt(rc, nil).Render()
			}

			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			label, err := node.ParseLabel(args[0], st.TLD)
			if err != nil {
				return err
			}
			signer, err := s.Signer(ctx)
			if err != nil {
				return err
			}
			key, err := bidKey(signer)
			if err != nil {
				return err
			}
			book, err := openBidBook(s.Config.ResolvedDataDir())
			if err != nil {
				return err
			}
			bids := book.forLabel(label.Hash, signer.Address())
			if len(bids) == 0 {
				return fmt.Errorf("no stored bids on %s for %s; pass --value and --salt", args[0], signer.Address().Hex())
			}
			for _, b := range bids {
				val, salt, err := openSecret(key, b.Secret)
				if err != nil {
					return fmt.Errorf("stored bid %s: %w", b.Sealed.Hex(), err)
				}
				rc, err := c.Reveal(ctx, args[0], val, salt)
				if err != nil {
					return fmt.Errorf("reveal %s: %w", b.Sealed.Hex(), err)
				}
				if err := book.remove(b.Sealed); err != nil {
					return err
				}
				if err := s.Out.Receipt(rc, map[string]any{"sealed": b.Sealed.Hex()}).Render(); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&value, "value", "", "bid value")
	cmd.Flags().StringVar(&saltHex, "salt", "", "bid salt")
	cmd.MarkFlagsRequiredTogether("value", "salt")
	return cmd
}

func newFinalizeCmd(v *viper.Viper) *cobra.Command {
	return nameCmd(v, "finalize <name>", "Finalize a won auction and take ownership", 1, func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
		return c.Finalize(ctx, args[0])
	})
}
