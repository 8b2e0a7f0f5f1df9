package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/internal/names"
)

func newWhoamiCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signing identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			signer, err := s.Signer(cmd.Context())
			if err != nil {
				return err
			}
			addr := signer.Address()
			kv := s.Out.KV("identity").
				Set("Address", addr.Hex()).
				Set("Petname", names.Petname(addr))

			infos, err := s.Keys.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				if info.Address == addr {
					kv.SetIf(len(info.Aliases) > 0, "Aliases", strings.Join(info.Aliases, ", ")).
						Set("Default", info.IsDefault)
				}
			}
			return kv.Render()
		},
	}
}
