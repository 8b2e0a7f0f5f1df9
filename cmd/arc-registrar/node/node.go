// Package node holds the `node` command group: running a registrar node
// and operating on it.
package node

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run and operate a registrar node",
	}
	cmd.AddCommand(
		newStartCmd(v),
		newStatusCmd(v),
		newAdvanceCmd(v),
		newEventsCmd(v),
		newWatchCmd(v),
		newSnapshotCmd(v),
		newSnapshotsCmd(v),
		newRestoreCmd(v),
	)
	return cmd
}
