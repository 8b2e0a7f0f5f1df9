package node

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/internal/config"
	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/snapshot"
	"github.com/gezibash/arc-registrar/internal/statestore"
	"github.com/gezibash/arc-registrar/pkg/client"
	"github.com/gezibash/arc-registrar/pkg/logging"
)

func newSnapshotCmd(v *viper.Viper) *cobra.Command {
	var name, note string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a state snapshot on the running node (operator only)",
		Args:  cobra.NoArgs,
		RunE: cli.RunE(v, true, func(ctx context.Context, s *cli.Session, c *client.Client, _ []string) error {
			res, err := c.Snapshot(ctx, name, note)
			if err != nil {
				return err
			}
			return s.Out.Result("snapshot", "snapshot saved").
				With("name", res.Name).
				With("keys", res.Keys).
				With("size", humanize.IBytes(uint64(res.Bytes))).
				With("digest", res.Digest.Hex()).
				Render()
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "snapshot name (default state-<time>.snap)")
	cmd.Flags().StringVar(&note, "note", "", "free-form note stored in the header")
	return cmd
}

// openTarget opens the configured snapshot target without a running node.
func openTarget(cmd *cobra.Command, v *viper.Viper) (config.Config, snapshot.Target, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	t, err := snapshot.OpenTarget(cmd.Context(), cfg.Snapshot.Backend, cfg.Snapshot.Config)
	if err != nil {
		return cfg, nil, fmt.Errorf("open snapshot target: %w", err)
	}
	return cfg, t, nil
}

func newSnapshotsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshots in the configured target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, target, err := openTarget(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = target.Close() }()

			objs, err := target.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cli.NewOutput(cli.ParseFormat(cfg.Output), cmd.OutOrStdout())
			tbl := out.Table("snapshots", "Name", "Size", "Modified")
			for _, o := range objs {
				tbl.AddRow(o.Name, humanize.IBytes(uint64(o.Size)), humanize.Time(o.Modified))
			}
			return tbl.Render()
		},
	}
}

func newRestoreCmd(v *viper.Viper) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Load a snapshot into the configured state backend",
		Long: `Restore writes a snapshot into the state backend named by the config.
The node must be stopped. Without --replace the backend must be empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, target, err := openTarget(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = target.Close() }()

			ctx := cmd.Context()
			metrics := observability.NewMetrics()
			backend, err := statestore.Open(ctx, cfg.Storage.State.Backend, cfg.Storage.State.Config, metrics)
			if err != nil {
				return fmt.Errorf("open state backend: %w", err)
			}
			defer func() { _ = backend.Close() }()

			log := logging.SetupWriter(cfg.Observability.LogLevel, cfg.Observability.LogFormat, cmd.ErrOrStderr())
			start := time.Now()
			sum, err := snapshot.Restore(ctx, backend, target, args[0], snapshot.ImportOptions{Replace: replace}, metrics)
			if err != nil {
				return err
			}
			log.Info("snapshot restored", "name", args[0], "keys", sum.Keys, "elapsed", time.Since(start))

			out := cli.NewOutput(cli.ParseFormat(cfg.Output), cmd.OutOrStdout())
			return out.Result("restore", "snapshot restored").
				With("name", args[0]).
				With("backend", cfg.Storage.State.Backend).
				With("keys", sum.Keys).
				With("created", sum.Header.CreatedAt.Format(time.RFC3339)).
				With("note", sum.Header.Note).
				Render()
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "delete existing state first")
	return cmd
}
