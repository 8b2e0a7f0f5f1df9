package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-registrar/internal/config"
	"github.com/gezibash/arc-registrar/internal/keyring"
	"github.com/gezibash/arc-registrar/internal/names"
	"github.com/gezibash/arc-registrar/pkg/client"
	"github.com/gezibash/arc-registrar/pkg/identity"
	"github.com/gezibash/arc-registrar/pkg/logging"
)

// Session carries what a client command needs: resolved config, the local
// keyring and address book, and an output renderer.
type Session struct {
	Config config.BaseConfig
	Keys   *keyring.Keyring
	Names  *names.Store
	Out    *Output
	Log    *logging.Logger
}

// NewSession loads the common client config from v.
func NewSession(v *viper.Viper) (*Session, error) {
	var cfg config.BaseConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	dir := cfg.ResolvedDataDir()
	book, err := names.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("address book: %w", err)
	}
	level := cfg.Observability.LogLevel
	if level == "" {
		level = "warn"
	}
	return &Session{
		Config: cfg,
		Keys:   keyring.New(dir),
		Names:  book,
		Out:    NewOutput(ParseFormat(cfg.Output), os.Stdout),
		Log:    logging.SetupWriter(level, cfg.Observability.LogFormat, os.Stderr).WithComponent("cli"),
	}, nil
}

// Signer resolves the signing key: key_path, then key_name, then the
// keyring default.
func (s *Session) Signer(ctx context.Context) (identity.Signer, error) {
	if s.Config.KeyPath != "" {
		priv, err := crypto.LoadECDSA(s.Config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load key %s: %w", s.Config.KeyPath, err)
		}
		return identity.FromPrivate(priv), nil
	}
	key, err := s.Keys.LoadOrDefault(ctx, s.Config.KeyName)
	if err != nil {
		if s.Config.KeyName == "" {
			return nil, fmt.Errorf("%w: create one with `keys generate --default`", err)
		}
		return nil, err
	}
	return key, nil
}

// Dial connects to the configured node. Signed sessions sign every
// request with the resolved key.
func (s *Session) Dial(ctx context.Context, signed bool) (*client.Client, error) {
	addr := s.Config.ResolvedNodeAddr()
	var opts []client.Option
	if signed {
		signer, err := s.Signer(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithSigner(signer))
		s.Log.Debug("signing as", "address", signer.Address().Hex())
	}
	c, err := client.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	s.Out = s.Out.ForNode(addr)
	return c, nil
}

// Address resolves a hex address, an "@name" from the address book, or a
// keyring alias.
func (s *Session) Address(ctx context.Context, arg string) (common.Address, error) {
	addr, err := s.Names.Resolve(arg)
	if err == nil {
		return addr, nil
	}
	if key, kerr := s.Keys.Load(ctx, arg); kerr == nil {
		return key.Address(), nil
	}
	return common.Address{}, err
}

// Display labels addr with its address-book name or petname.
func (s *Session) Display(addr common.Address) string {
	for _, e := range s.Names.List() {
		if e.Address == addr {
			return fmt.Sprintf("%s (@%s)", addr.Hex(), e.Name)
		}
	}
	return names.Display(addr)
}

// CommandConfig describes one client command run.
type CommandConfig struct {
	Viper   *viper.Viper
	Timeout time.Duration
	// Signed commands need a key; others dial anonymously.
	Signed bool
	Run    func(ctx context.Context, s *Session, c *client.Client) error
}

// RunCommand loads the session, dials the node and runs cfg.Run under the
// timeout.
func RunCommand(ctx context.Context, cfg CommandConfig) error {
	if cfg.Viper == nil || cfg.Run == nil {
		return fmt.Errorf("cli: viper and run are required")
	}
	s, err := NewSession(cfg.Viper)
	if err != nil {
		return err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	c, err := s.Dial(ctx, cfg.Signed)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return cfg.Run(ctx, s, c)
}

// RunE adapts fn into a cobra RunE that runs under the "timeout" setting.
func RunE(v *viper.Viper, signed bool, fn func(ctx context.Context, s *Session, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return RunCommand(cmd.Context(), CommandConfig{
			Viper:   v,
			Timeout: v.GetDuration("timeout"),
			Signed:  signed,
			Run: func(ctx context.Context, s *Session, c *client.Client) error {
				return fn(ctx, s, c, args)
			},
		})
	}
}
