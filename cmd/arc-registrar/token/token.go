// Package token holds the `token` command group for the burning token and
// native balances.
package token

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/pkg/client"
	"github.com/gezibash/arc-registrar/pkg/units"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and move the registration token",
	}
	cmd.AddCommand(
		newBalanceCmd(v),
		newAllowanceCmd(v),
		newNativeCmd(v),
		amountCmd(v, "approve <spender> <amount>", "Allow spender to burn or move tokens", func(ctx context.Context, c *client.Client, to common.Address, amt string) (*client.Receipt, error) {
			a, err := units.Parse(amt)
			if err != nil {
				return nil, err
			}
			return c.Approve(ctx, to, a)
		}),
		amountCmd(v, "transfer <to> <amount>", "Send tokens", func(ctx context.Context, c *client.Client, to common.Address, amt string) (*client.Receipt, error) {
			a, err := units.Parse(amt)
			if err != nil {
				return nil, err
			}
			return c.TransferTokens(ctx, to, a)
		}),
		amountCmd(v, "mint <to> <amount>", "Mint tokens (token owner only)", func(ctx context.Context, c *client.Client, to common.Address, amt string) (*client.Receipt, error) {
			a, err := units.Parse(amt)
			if err != nil {
				return nil, err
			}
			return c.Mint(ctx, to, a)
		}),
	)
	return cmd
}

// owner resolves an optional address argument, defaulting to the local
// signer.
func owner(ctx context.Context, s *cli.Session, args []string) (common.Address, error) {
	if len(args) > 0 {
		return s.Address(ctx, args[0])
	}
	signer, err := s.Signer(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return signer.Address(), nil
}

func newBalanceCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show a token balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			addr, err := owner(ctx, s, args)
			if err != nil {
				return err
			}
			b, err := c.TokenBalance(ctx, addr)
			if err != nil {
				return err
			}
			return s.Out.KV("token-balance").
				Set("Account", s.Display(addr)).
				Set("Token", fmt.Sprintf("%s (%s)", b.Name, b.Symbol)).
				Set("Supply", units.Format(b.Supply, b.Decimals)).
				Set("Balance", b.Display).
				Render()
		}),
	}
}

func newAllowanceCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "allowance <owner> <spender>",
		Short: "Show how much spender may take from owner",
		Args:  cobra.ExactArgs(2),
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			o, err := s.Address(ctx, args[0])
			if err != nil {
				return err
			}
			sp, err := s.Address(ctx, args[1])
			if err != nil {
				return err
			}
			a, err := c.Allowance(ctx, o, sp)
			if err != nil {
				return err
			}
			return s.Out.KV("allowance").
				Set("Owner", s.Display(o)).
				Set("Spender", s.Display(sp)).
				Set("Allowance", units.Ether(a)).
				Render()
		}),
	}
}

func newNativeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "native [address]",
		Short: "Show the native ether balance used for bids",
		Args:  cobra.MaximumNArgs(1),
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			addr, err := owner(ctx, s, args)
			if err != nil {
				return err
			}
			bal, err := c.Balance(ctx, addr)
			if err != nil {
				return err
			}
			return s.Out.KV("balance").
				Set("Account", s.Display(addr)).
				Set("Wei", bal.String()).
				Set("Ether", units.Ether(bal)).
				Render()
		}),
	}
}

func amountCmd(v *viper.Viper, use, short string, fn func(ctx context.Context, c *client.Client, to common.Address, amt string) (*client.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			to, err := s.Address(ctx, args[0])
			if err != nil {
				return err
			}
			rc, err := fn(ctx, c, to, args[1])
			if err != nil {
				return err
			}
			return s.Out.Receipt(rc, nil).Render()
		}),
	}
}
