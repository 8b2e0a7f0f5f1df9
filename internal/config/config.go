package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the full node configuration.
type Config struct {
	BaseConfig `mapstructure:",squash"`
	GRPC       GRPCConfig    `mapstructure:"grpc"`
	Storage    StorageConfig `mapstructure:"storage"`
	Events     BackendConfig `mapstructure:"events"`
	Chain      ChainConfig   `mapstructure:"chain"`
	Auction    AuctionConfig `mapstructure:"auction"`
	FIFS       FIFSConfig    `mapstructure:"fifs"`
	Snapshot   BackendConfig `mapstructure:"snapshot"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	State BackendConfig `mapstructure:"state"`
}

// BackendConfig names a pluggable component and its settings.
type BackendConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

// GRPCConfig configures the node's gRPC listener.
type GRPCConfig struct {
	Addr             string        `mapstructure:"addr"`
	MaxRecvMsgSize   int           `mapstructure:"max_recv_msg_size"`
	MaxSendMsgSize   int           `mapstructure:"max_send_msg_size"`
	EnableReflection bool          `mapstructure:"enable_reflection"`
	MaxClockSkew     time.Duration `mapstructure:"max_clock_skew"`
	// Operator may advance a manual clock and take snapshots. Empty means
	// the genesis deployer.
	Operator string `mapstructure:"operator"`
	// NodeKey is the keyring alias the node signs responses with.
	NodeKey string `mapstructure:"node_key"`
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel         string  `mapstructure:"log_level"`
	LogFormat        string  `mapstructure:"log_format"`
	MetricsAddr      string  `mapstructure:"metrics_addr"`
	OTLPEndpoint     string  `mapstructure:"otlp_endpoint"`
	OTLPProtocol     string  `mapstructure:"otlp_protocol"`
	ServiceName      string  `mapstructure:"service_name"`
	ServiceVersion   string  `mapstructure:"service_version"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
}

// ChainConfig drives the ledger clock and the genesis of a fresh state store.
type ChainConfig struct {
	Clock    string            `mapstructure:"clock"`
	Start    string            `mapstructure:"start"` // RFC 3339, manual clock only
	Deployer string            `mapstructure:"deployer"`
	Alloc    map[string]string `mapstructure:"alloc"`
	Token    TokenConfig       `mapstructure:"token"`
}

// TokenConfig describes the burnable token minted at genesis.
type TokenConfig struct {
	Name     string `mapstructure:"name"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint64 `mapstructure:"decimals"`
	Supply   string `mapstructure:"supply"`
}

// AuctionConfig is the auction registrar schedule.
type AuctionConfig struct {
	TLD           string        `mapstructure:"tld"`
	LaunchLength  time.Duration `mapstructure:"launch_length"`
	AuctionLength time.Duration `mapstructure:"auction_length"`
	RevealPeriod  time.Duration `mapstructure:"reveal_period"`
	MinHoldPeriod time.Duration `mapstructure:"min_hold_period"`
	MinPrice      string        `mapstructure:"min_price"`
	Policy        string        `mapstructure:"policy"`
}

// FIFSConfig is the burnable first-come registrar.
type FIFSConfig struct {
	Domain string `mapstructure:"domain"`
	Cost   string `mapstructure:"cost"`
}

func setDefaults(v *viper.Viper) {
	SetCommonDefaults(v)

	d := NodeDefaults
	v.SetDefault("grpc.addr", d.ListenAddr)
	v.SetDefault("grpc.max_recv_msg_size", d.MaxRecvMsgSize)
	v.SetDefault("grpc.max_send_msg_size", d.MaxSendMsgSize)
	v.SetDefault("grpc.enable_reflection", d.EnableReflection)
	v.SetDefault("grpc.max_clock_skew", d.MaxClockSkew)
	v.SetDefault("grpc.operator", "")
	v.SetDefault("grpc.node_key", d.NodeKey)

	v.SetDefault("observability.metrics_addr", d.MetricsAddr)
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.service_name", "arc-registrar")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.trace_sample_ratio", 1.0)

	v.SetDefault("storage.state.backend", d.StateBackend)
	v.SetDefault("events.backend", d.EventSink)
	v.SetDefault("snapshot.backend", d.SnapshotTarget)

	v.SetDefault("chain.clock", d.Clock)
	v.SetDefault("chain.token.name", d.TokenName)
	v.SetDefault("chain.token.symbol", d.TokenSymbol)
	v.SetDefault("chain.token.decimals", d.TokenDecimals)
	v.SetDefault("chain.token.supply", d.TokenSupply)

	v.SetDefault("auction.tld", d.TLD)
	v.SetDefault("auction.launch_length", d.LaunchLength)
	v.SetDefault("auction.auction_length", d.AuctionLength)
	v.SetDefault("auction.reveal_period", d.RevealPeriod)
	v.SetDefault("auction.min_hold_period", d.MinHoldPeriod)
	v.SetDefault("auction.min_price", d.MinPrice)
	v.SetDefault("auction.policy", "")

	v.SetDefault("fifs.domain", d.Domain)
	v.SetDefault("fifs.cost", d.FIFSCost)
}

// BindServeFlags binds cobra flags to viper for `node start`.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("addr", "", "gRPC listen address")
	f.String("metrics-addr", "", "metrics HTTP listen address")
	f.Bool("reflection", false, "enable gRPC reflection")
	f.String("state-backend", "", "state backend (badger, memory, sqlite, redis)")
	f.String("event-sink", "", "event sink (log, redis, kafka)")
	f.String("clock", "", "ledger clock (system, manual)")

	_ = v.BindPFlag("grpc.addr", f.Lookup("addr"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
	_ = v.BindPFlag("grpc.enable_reflection", f.Lookup("reflection"))
	_ = v.BindPFlag("storage.state.backend", f.Lookup("state-backend"))
	_ = v.BindPFlag("events.backend", f.Lookup("event-sink"))
	_ = v.BindPFlag("chain.clock", f.Lookup("clock"))
}

// Load reads config from flags, env, and file, returning the merged Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)
	if err := read(v, EnvPrefix, configFile, "$HOME/.arc-registrar", "/etc/arc-registrar"); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Storage.State.Backend == "badger" && cfg.Storage.State.Config["path"] == "" {
		if cfg.Storage.State.Config == nil {
			cfg.Storage.State.Config = map[string]string{}
		}
		cfg.Storage.State.Config["path"] = filepath.Join(cfg.ResolvedDataDir(), "state")
	}
	if cfg.Snapshot.Backend == "file" && cfg.Snapshot.Config["path"] == "" {
		if cfg.Snapshot.Config == nil {
			cfg.Snapshot.Config = map[string]string{}
		}
		cfg.Snapshot.Config["path"] = filepath.Join(cfg.ResolvedDataDir(), "snapshots")
	}
	return cfg, nil
}

func read(v *viper.Viper, envPrefix, configFile string, paths ...string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("registrar")
		v.SetConfigType("hcl")
		v.AddConfigPath(".")
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return err
		}
	}
	return nil
}
