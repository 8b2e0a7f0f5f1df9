// Package names holds the `names` command group for local @name
// address mappings.
package names

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/internal/names"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "names",
		Short: "Manage local names for addresses",
		Long:  "Names are local shortcuts: any address argument accepts @name.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name> <address>",
			Short: "Add or replace a name",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				s, err := cli.NewSession(v)
				if err != nil {
					return err
				}
				if err := s.Names.Add(args[0], args[1]); err != nil {
					return err
				}
				return s.Out.Result("name-added", fmt.Sprintf("@%s -> %s", args[0], args[1])).Render()
			},
		},
		&cobra.Command{
			Use:     "remove <name>",
			Aliases: []string{"rm"},
			Short:   "Remove a name",
			Args:    cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				s, err := cli.NewSession(v)
				if err != nil {
					return err
				}
				if err := s.Names.Remove(args[0]); err != nil {
					return err
				}
				return s.Out.Result("name-removed", "Removed @"+args[0]).Render()
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List names",
			Args:    cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				s, err := cli.NewSession(v)
				if err != nil {
					return err
				}
				tbl := s.Out.Table("names", "Name", "Address", "Petname")
				for _, e := range s.Names.List() {
					tbl.AddRow("@"+e.Name, e.Address.Hex(), e.Petname)
				}
				return tbl.Render()
			},
		},
		&cobra.Command{
			Use:   "lookup <name|address>",
			Short: "Resolve a name or show the petname of an address",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				s, err := cli.NewSession(v)
				if err != nil {
					return err
				}
				addr, err := s.Names.Resolve(args[0])
				if err != nil {
					return err
				}
				return s.Out.KV("name").
					Set("Address", addr.Hex()).
					Set("Petname", names.Petname(addr)).
					Set("Display", s.Display(addr)).
					Render()
			},
		},
	)
	return cmd
}
