package node

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/pkg/client"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node manifest, clock and storage",
		Args:  cobra.NoArgs,
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, _ []string) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			kv := s.Out.KV("status").
				Set("TLD", st.TLD).
				Set("Domain", st.Domain).
				Set("Deployer", s.Display(st.Deployer)).
				Set("Clock", st.Clock).
				Set("Now", st.Now.Format(time.RFC3339)).
				Set("Backend", st.Backend).
				Set("Keys", st.Keys).
				Set("Size Bytes", st.SizeBytes)
			if addr, ok := c.NodeAddress(); ok {
				kv.Set("Node Address", addr.Hex())
			}

			roles := make([]string, 0, len(st.Contracts))
			for role := range st.Contracts {
				roles = append(roles, role)
			}
			sort.Strings(roles)
			for _, role := range roles {
				addr := st.Contracts[role]
				label := addr.Hex()
				if n, ok := st.Owned[addr.Hex()]; ok {
					label = fmt.Sprintf("%s (%d names)", label, n)
				}
				kv.Set(role, label)
			}
			return kv.Render()
		}),
	}
}

func newAdvanceCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <duration>",
		Short: "Move a manual node clock forward (operator only)",
		Example: `  arc-registrar node advance 72h
  arc-registrar node advance 5m --key operator`,
		Args: cobra.ExactArgs(1),
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("duration: %w", err)
			}
			now, err := c.Advance(ctx, d)
			if err != nil {
				return err
			}
			return s.Out.Result("advance", "clock advanced").
				With("now", now.Format(time.RFC3339)).
				With("by", d).
				Render()
		}),
	}
}
