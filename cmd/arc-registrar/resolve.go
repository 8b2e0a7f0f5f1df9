package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/pkg/client"
)

func newResolveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve a name through the registry and its resolver",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			r, err := c.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return s.Out.KV("resolution").
				Set("Name", r.Name).
				Set("Node", r.Node.Hex()).
				Set("Owner", s.Display(r.Owner)).
				Set("Resolver", r.Resolver.Hex()).
				Set("Addr", r.Addr.Hex()).
				Render()
		}),
	}
}
