// Package fifs holds the `fifs` command group for the first-in
// first-served registrar that burns tokens.
package fifs

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/pkg/client"
	"github.com/gezibash/arc-registrar/pkg/units"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fifs",
		Short: "Register subdomains by burning tokens",
	}
	cmd.AddCommand(
		newInfoCmd(v),
		newAvailableCmd(v),
		newRegisterCmd(v, false),
		newRegisterCmd(v, true),
		newSetCostCmd(v),
		newSetTokenCmd(v),
	)
	return cmd
}

func newInfoCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the registrar domain, cost and burning token",
		Args:  cobra.NoArgs,
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, _ []string) error {
			info, err := c.FIFS(ctx)
			if err != nil {
				return err
			}
			tok, err := c.TokenBalance(ctx, common.Address{})
			if err != nil {
				return err
			}
			return s.Out.KV("fifs").
				Set("Domain", info.Domain).
				Set("Cost", units.Format(info.Cost, tok.Decimals)+" "+tok.Symbol).
				Set("Token", info.Token.Hex()).
				Set("Owner", s.Display(info.Owner)).
				Render()
		}),
	}
}

func newAvailableCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "available <label>",
		Short: "Check whether a subdomain is free",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			ok, err := c.Available(ctx, args[0])
			if err != nil {
				return err
			}
			msg := args[0] + " is taken"
			if ok {
				msg = args[0] + " is available"
			}
			return s.Out.Result("available", msg).With("available", ok).Render()
		}),
	}
}

func newRegisterCmd(v *viper.Viper, approve bool) *cobra.Command {
	var owner, resolver, amount string
	use, short := "register <label>", "Register a subdomain, burning the approved cost"
	if approve {
		use, short = "approve-register <label>", "Approve the cost and register in one call"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			req := client.Registration{Name: args[0]}
			var err error
			if owner != "" {
				if req.Owner, err = s.Address(ctx, owner); err != nil {
					return err
				}
			}
			if resolver != "" {
				if req.Resolver, err = s.Address(ctx, resolver); err != nil {
					return err
				}
			}
			var rc *client.Receipt
			if approve {
				var amt *big.Int
				if amount != "" {
					if amt, err = units.Parse(amount); err != nil {
						return fmt.Errorf("--amount: %w", err)
					}
				}
				rc, err = c.ApproveAndRegister(ctx, req, amt)
			} else {
				rc, err = c.Register(ctx, req)
			}
			if err != nil {
				return err
			}
			return s.Out.Receipt(rc, nil).Render()
		}),
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the new subdomain (default: caller)")
	cmd.Flags().StringVar(&resolver, "resolver", "", "resolver to set on the subdomain")
	if approve {
		cmd.Flags().StringVar(&amount, "amount", "", "allowance to grant (default: current cost)")
	}
	return cmd
}

func newSetCostCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set-cost <amount>",
		Short: "Change the registration cost (registrar owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			cost, err := units.Parse(args[0])
			if err != nil {
				return err
			}
			rc, err := c.SetCost(ctx, cost)
			if err != nil {
				return err
			}
			return s.Out.Receipt(rc, nil).Render()
		}),
	}
}

func newSetTokenCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set-token <address>",
		Short: "Change the burning token (registrar owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			tok, err := s.Address(ctx, args[0])
			if err != nil {
				return err
			}
			rc, err := c.SetBurningToken(ctx, tok)
			if err != nil {
				return err
			}
			return s.Out.Receipt(rc, nil).Render()
		}),
	}
}
