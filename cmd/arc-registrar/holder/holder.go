// Package holder holds the `holder` command group for deed holders.
package holder

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/pkg/client"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	var delegating bool
	cmd := &cobra.Command{
		Use:   "holder",
		Short: "Deposit deeds with a holder and manage them",
		Long: `Holder commands talk to the deed holder contract. With --delegating
they target the holder that lets a beneficiary appoint a manager.`,
	}
	cmd.PersistentFlags().BoolVar(&delegating, "delegating", false, "use the delegating deed holder")

	op := func(use, short string, nargs int, fn func(ctx context.Context, s *cli.Session, c *client.Client, args []string) (*client.Receipt, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
				rc, err := fn(ctx, s, c, args)
				if err != nil {
					return err
				}
				return s.Out.Receipt(rc, nil).Render()
			}),
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <name>",
			Short: "Show who holds and manages a name",
			Args:  cobra.ExactArgs(1),
			RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
				h, err := c.Holder(ctx, delegating, args[0])
				if err != nil {
					return err
				}
				return s.Out.KV("holder").
					Set("Holder", h.Holder.Hex()).
					Set("Beneficiary", s.Display(h.Beneficiary)).
					SetIf(h.Deed != common.Address{}, "Deed", h.Deed.Hex()).
					SetIf(!h.RegistrationDate.IsZero(), "Registration Date", h.RegistrationDate.Format(time.RFC3339)).
					SetIf(h.Manager != common.Address{}, "Manager", s.Display(h.Manager)).
					Render()
			}),
		},
		op("deposit <name>", "Record the caller as beneficiary of a deed transferred to the holder", 1,
			func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
				return c.Deposit(ctx, delegating, args[0])
			}),
		op("transfer <name> <to>", "Hand the beneficial interest to another account", 2,
			func(ctx context.Context, s *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
				to, err := s.Address(ctx, args[1])
				if err != nil {
					return nil, err
				}
				return c.HolderTransfer(ctx, delegating, args[0], to)
			}),
		op("claim <name>", "Take registry ownership of a held name", 1,
			func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
				return c.Claim(ctx, delegating, args[0])
			}),
		op("release <name>", "Release a held name and return its deposit", 1,
			func(ctx context.Context, _ *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
				return c.HolderRelease(ctx, delegating, args[0])
			}),
		op("set-manager <name> <manager>", "Appoint a manager on the delegating holder", 2,
			func(ctx context.Context, s *cli.Session, c *client.Client, args []string) (*client.Receipt, error) {
				m, err := s.Address(ctx, args[1])
				if err != nil {
					return nil, err
				}
				return c.SetManager(ctx, args[0], m)
			}),
	)
	return cmd
}
