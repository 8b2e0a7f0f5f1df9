package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/cmd/arc-registrar/auction"
	"github.com/gezibash/arc-registrar/cmd/arc-registrar/fifs"
	"github.com/gezibash/arc-registrar/cmd/arc-registrar/holder"
	"github.com/gezibash/arc-registrar/cmd/arc-registrar/keys"
	"github.com/gezibash/arc-registrar/cmd/arc-registrar/names"
	"github.com/gezibash/arc-registrar/cmd/arc-registrar/node"
	"github.com/gezibash/arc-registrar/cmd/arc-registrar/token"
	"github.com/gezibash/arc-registrar/internal/config"
)

func main() {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "arc-registrar",
		Short:         "Name registrar node and client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			var base config.BaseConfig
			return config.LoadInto(v, configFile, &base)
		},
	}
	config.BindCommonFlags(rootCmd, v)

	rootCmd.AddCommand(
		node.Entrypoint(v),
		auction.Entrypoint(v),
		fifs.Entrypoint(v),
		holder.Entrypoint(v),
		token.Entrypoint(v),
		keys.Entrypoint(v),
		names.Entrypoint(v),
		newResolveCmd(v),
		newVersionCmd(),
		newWhoamiCmd(v),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
