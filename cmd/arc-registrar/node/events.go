package node

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/pkg/client"
)

func newEventsCmd(v *viper.Viper) *cobra.Command {
	var (
		after uint64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List committed contract events",
		Args:  cobra.NoArgs,
		RunE: cli.RunE(v, false, func(ctx context.Context, s *cli.Session, c *client.Client, _ []string) error {
			evs, next, err := c.Events(ctx, after, limit)
			if err != nil {
				return err
			}
			return s.Out.Events(evs, next).Render()
		}),
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "list events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to list")
	return cmd
}

func newWatchCmd(v *viper.Viper) *cobra.Command {
	var after uint64
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream contract events as they commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.RunCommand(cmd.Context(), cli.CommandConfig{
				Viper: v,
				Run: func(ctx context.Context, s *cli.Session, c *client.Client) error {
					return c.WatchEvents(ctx, after, func(e client.Event) error {
						return s.Out.Events([]client.Event{e}, 0).Render()
					})
				},
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "start after this sequence number")
	return cmd
}
