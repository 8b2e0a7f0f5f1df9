// Package keys holds the `keys` command group for the local keyring.
package keys

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/cli"
	"github.com/gezibash/arc-registrar/internal/keyring"
	"github.com/gezibash/arc-registrar/internal/names"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage account keys",
		Long:  "Manage secp256k1 account keys with alias support.\nKeys are stored in <data-dir>/keys/ with a keyring.yaml alias index.",
	}
	cmd.AddCommand(
		newGenerateCmd(v),
		newImportCmd(v),
		newListCmd(v),
		newShowCmd(v),
		newAliasCmd(v),
		newDefaultCmd(v),
		newDeleteCmd(v),
		newExportCmd(v),
	)
	return cmd
}

func newGenerateCmd(v *viper.Viper) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "generate [alias]",
		Short: "Generate a new key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			alias := keyring.DefaultAlias
			if len(args) > 0 {
				alias = args[0]
			}
			ctx := cmd.Context()
			if !force {
				if _, err := s.Keys.Load(ctx, alias); err == nil {
					return fmt.Errorf("key with alias %q already exists (use --force to overwrite)", alias)
				}
			}
			key, err := s.Keys.Generate(ctx, alias)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			if alias == keyring.DefaultAlias {
				_ = s.Keys.SetDefault(alias)
			}
			return s.Out.Result("key-generated", "Key created: "+alias).
				With("Address", key.Address().Hex()).
				With("Petname", names.Petname(key.Address())).
				With("Stored at", filepath.Join(s.Config.ResolvedDataDir(), "keys")).
				Render()
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing key")
	return cmd
}

func newImportCmd(v *viper.Viper) *cobra.Command {
	var mnemonic, passphrase string
	cmd := &cobra.Command{
		Use:   "import [hex-key] [alias]",
		Short: "Import a key from hex or a BIP-39 mnemonic",
		Example: `  arc-registrar keys import 0x4c0883a6... alice
  arc-registrar keys import --mnemonic "word1 ... word12" bob`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var key *keyring.Key
			alias := ""
			if mnemonic != "" {
				if len(args) > 1 {
					return errors.New("with --mnemonic pass only the alias")
				}
				if len(args) == 1 {
					alias = args[0]
				}
				key, err = s.Keys.ImportMnemonic(ctx, mnemonic, passphrase, alias)
			} else {
				if len(args) == 0 {
					return errors.New("hex key or --mnemonic required")
				}
				if len(args) > 1 {
					alias = args[1]
				}
				key, err = s.Keys.Import(ctx, args[0], alias)
			}
			if err != nil {
				return fmt.Errorf("import key: %w", err)
			}
			res := s.Out.Result("key-imported", "Key imported: "+key.Address().Hex())
			if alias != "" {
				res.With("Alias", alias)
			}
			return res.Render()
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 mnemonic phrase")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "mnemonic passphrase")
	return cmd
}

func newListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			infos, err := s.Keys.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list keys: %w", err)
			}
			tbl := s.Out.Table("keys", "Address", "Petname", "Aliases", "Created", "Default")
			for _, info := range infos {
				aliases := strings.Join(info.Aliases, ", ")
				if aliases == "" {
					aliases = "-"
				}
				def := ""
				if info.IsDefault {
					def = "*"
				}
				tbl.AddRow(info.Address.Hex(), names.Petname(info.Address), aliases, info.CreatedAt.Format(time.DateOnly), def)
			}
			return tbl.Render()
		},
	}
}

func newShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show [alias|address]",
		Short: "Show a key (default key when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			key, err := s.Keys.LoadOrDefault(cmd.Context(), name)
			if err != nil {
				return err
			}
			kv := s.Out.KV("key").
				Set("Address", key.Address().Hex()).
				Set("Petname", names.Petname(key.Address())).
				Set("Public Key", fmt.Sprintf("%x", key.PublicKey()))
			if key.Metadata != nil {
				kv.Set("Created", key.Metadata.CreatedAt.Format(time.RFC3339)).
					SetIf(key.Metadata.Source != "", "Source", key.Metadata.Source)
			}
			return kv.Render()
		},
	}
}

func newAliasCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "alias <alias> <address>",
		Short: "Point an alias at a stored key",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			if err := s.Keys.SetAlias(args[0], args[1]); err != nil {
				return err
			}
			return s.Out.Result("key-alias", fmt.Sprintf("Alias %s -> %s", args[0], args[1])).Render()
		},
	}
}

func newDefaultCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "default <alias|address>",
		Short: "Set the default signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			if err := s.Keys.SetDefault(args[0]); err != nil {
				return err
			}
			return s.Out.Result("key-default", "Default key: "+args[0]).Render()
		},
	}
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <alias|address>",
		Short: "Delete a key and its aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("deleting a key loses any deposits it controls; pass --yes to confirm")
			}
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			if err := s.Keys.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return s.Out.Result("key-deleted", "Key deleted: "+args[0]).Render()
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func newExportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "export [alias|address]",
		Short: "Print a private key as hex",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cli.NewSession(v)
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			key, err := s.Keys.LoadOrDefault(cmd.Context(), name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(s.Out.Writer(), key.Hex())
			return err
		},
	}
}
