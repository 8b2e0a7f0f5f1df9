package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/units"
)

func TestDefaultDataDir(t *testing.T) {
	dataDir := DefaultDataDir()
	if !strings.HasSuffix(dataDir, ".arc-registrar") {
		t.Errorf("DefaultDataDir() should end with .arc-registrar, got: %s", dataDir)
	}
	if !filepath.IsAbs(dataDir) {
		t.Errorf("DefaultDataDir() should return absolute path, got: %s", dataDir)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load with no config file should not error, got: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"grpc.addr", cfg.GRPC.Addr, ":50071"},
		{"grpc.max_recv_msg_size", cfg.GRPC.MaxRecvMsgSize, 4 * 1024 * 1024},
		{"grpc.enable_reflection", cfg.GRPC.EnableReflection, false},
		{"grpc.max_clock_skew", cfg.GRPC.MaxClockSkew, 2 * time.Minute},
		{"observability.log_level", cfg.Observability.LogLevel, "info"},
		{"observability.metrics_addr", cfg.Observability.MetricsAddr, ":9090"},
		{"observability.service_name", cfg.Observability.ServiceName, "arc-registrar"},
		{"storage.state.backend", cfg.Storage.State.Backend, "badger"},
		{"events.backend", cfg.Events.Backend, "log"},
		{"snapshot.backend", cfg.Snapshot.Backend, "file"},
		{"chain.clock", cfg.Chain.Clock, "system"},
		{"chain.token.decimals", cfg.Chain.Token.Decimals, uint64(18)},
		{"auction.tld", cfg.Auction.TLD, "eth"},
		{"auction.auction_length", cfg.Auction.AuctionLength, 120 * time.Hour},
		{"auction.reveal_period", cfg.Auction.RevealPeriod, 48 * time.Hour},
		{"auction.launch_length", cfg.Auction.LaunchLength, 8 * 7 * 24 * time.Hour},
		{"fifs.domain", cfg.FIFS.Domain, "arc"},
		{"node_addr", cfg.NodeAddr, "localhost:50071"},
		{"grpc.node_key", cfg.GRPC.NodeKey, "node"},
		{"grpc.operator", cfg.GRPC.Operator, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if want := filepath.Join(cfg.ResolvedDataDir(), "state"); cfg.Storage.State.Config["path"] != want {
		t.Errorf("badger path = %q, want %q", cfg.Storage.State.Config["path"], want)
	}
	if want := filepath.Join(cfg.ResolvedDataDir(), "snapshots"); cfg.Snapshot.Config["path"] != want {
		t.Errorf("snapshot path = %q, want %q", cfg.Snapshot.Config["path"], want)
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARC_REGISTRAR_GRPC_ADDR", ":55555")
	t.Setenv("ARC_REGISTRAR_OBSERVABILITY_LOG_LEVEL", "debug")
	t.Setenv("ARC_REGISTRAR_DATA_DIR", "/custom/data/dir")
	t.Setenv("ARC_REGISTRAR_AUCTION_REVEAL_PERIOD", "1h")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GRPC.Addr != ":55555" {
		t.Errorf("GRPC.Addr = %s", cfg.GRPC.Addr)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %s", cfg.Observability.LogLevel)
	}
	if cfg.DataDir != "/custom/data/dir" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.Auction.RevealPeriod != time.Hour {
		t.Errorf("RevealPeriod = %s", cfg.Auction.RevealPeriod)
	}
	if cfg.Storage.State.Config["path"] != "/custom/data/dir/state" {
		t.Errorf("state path = %q", cfg.Storage.State.Config["path"])
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "registrar.yaml")
	content := `
data_dir: /tmp/registrar-test
grpc:
  addr: :6000
  enable_reflection: true
storage:
  state:
    backend: sqlite
    config:
      path: /tmp/state.db
events:
  backend: redis
  config:
    addr: redis:6379
chain:
  clock: manual
  start: "2026-01-01T00:00:00Z"
  deployer: "0x00000000000000000000000000000000000d3b10"
  alloc:
    "0x00000000000000000000000000000000000a11ce": 5ether
auction:
  tld: test
  auction_length: 10m
  reveal_period: 4m
  min_price: 1gwei
  policy: length < 3
fifs:
  domain: free
  cost: "0"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/registrar-test" || cfg.GRPC.Addr != ":6000" || !cfg.GRPC.EnableReflection {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Storage.State.Backend != "sqlite" || cfg.Storage.State.Config["path"] != "/tmp/state.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Events.Backend != "redis" || cfg.Events.Config["addr"] != "redis:6379" {
		t.Errorf("events = %+v", cfg.Events)
	}

	opts, err := cfg.NodeOptions(common.Address{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Clock != "manual" || !opts.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("clock = %q start %s", opts.Clock, opts.Start)
	}
	g := opts.Genesis
	if g.Deployer != common.HexToAddress("0xd3b10") {
		t.Errorf("deployer = %s", g.Deployer.Hex())
	}
	if got := g.Alloc[common.HexToAddress("0xa11ce")]; got == nil || got.Cmp(units.MustParse("5ether")) != 0 {
		t.Errorf("alloc = %v", g.Alloc)
	}
	if g.TLD != "test" || g.Domain != "free" || g.FIFSCost.Sign() != 0 {
		t.Errorf("genesis = %+v", g)
	}
	if g.Auction.AuctionLength != 10*time.Minute || g.Auction.MinPrice.Cmp(units.MustParse("1gwei")) != 0 || g.Auction.Policy != "length < 3" {
		t.Errorf("auction = %+v", g.Auction)
	}
}

func TestGenesisErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad deployer", func(c *Config) { c.Chain.Deployer = "nobody" }},
		{"bad alloc address", func(c *Config) { c.Chain.Alloc = map[string]string{"0x12": "1"} }},
		{"bad alloc amount", func(c *Config) {
			c.Chain.Alloc = map[string]string{"0x00000000000000000000000000000000000a11ce": "lots"}
		}},
		{"bad cost", func(c *Config) { c.FIFS.Cost = "-3" }},
		{"bad start", func(c *Config) { c.Chain.Start = "yesterday" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			tt.mutate(&c)
			_, err := c.NodeOptions(common.HexToAddress("0x1"), nil)
			if !errors.Is(err, arcerrors.ErrInvalidInput) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	if _, err := Load(viper.New(), "/nonexistent/path/to/registrar.hcl"); err == nil {
		t.Error("Load with explicit missing config file should error")
	}
}

func TestBindServeFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "start"}
	v := viper.New()
	BindServeFlags(cmd, v)

	err := cmd.Flags().Parse([]string{
		"--addr", ":8080",
		"--metrics-addr", ":9191",
		"--reflection",
		"--state-backend", "memory",
		"--event-sink", "kafka",
		"--clock", "manual",
	})
	if err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]string{
		"grpc.addr":                  ":8080",
		"observability.metrics_addr": ":9191",
		"storage.state.backend":      "memory",
		"events.backend":             "kafka",
		"chain.clock":                "manual",
	} {
		if got := v.GetString(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if !v.GetBool("grpc.enable_reflection") {
		t.Error("grpc.enable_reflection not bound")
	}
}

func TestBindCommonFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	BindCommonFlags(cmd, v)
	SetCommonDefaults(v)

	if err := cmd.PersistentFlags().Parse([]string{"--node", "node:1", "--key", "alice", "-o", "json"}); err != nil {
		t.Fatal(err)
	}
	var c BaseConfig
	if err := v.Unmarshal(&c); err != nil {
		t.Fatal(err)
	}
	if c.NodeAddr != "node:1" || c.KeyName != "alice" || c.Output != "json" {
		t.Errorf("base = %+v", c)
	}
	if c.Observability.LogLevel != Common.LogLevel || c.DataDir != Common.DataDir {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestBaseConfigResolved(t *testing.T) {
	t.Run("node addr from config", func(t *testing.T) {
		t.Setenv("ARC_REGISTRAR_NODE", "env:1")
		if got := (BaseConfig{NodeAddr: "cfg:1"}).ResolvedNodeAddr(); got != "cfg:1" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("node addr from env", func(t *testing.T) {
		t.Setenv("ARC_REGISTRAR_NODE", "env:1")
		if got := (BaseConfig{}).ResolvedNodeAddr(); got != "env:1" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("node addr default", func(t *testing.T) {
		t.Setenv("ARC_REGISTRAR_NODE", "")
		if got := (BaseConfig{}).ResolvedNodeAddr(); got != Common.NodeAddr {
			t.Errorf("got %q", got)
		}
	})
	t.Run("data dir", func(t *testing.T) {
		if got := (BaseConfig{}).ResolvedDataDir(); got != DefaultDataDir() {
			t.Errorf("got %q", got)
		}
		if got := (BaseConfig{DataDir: "/x"}).ResolvedDataDir(); got != "/x" {
			t.Errorf("got %q", got)
		}
	})
}

func TestLoadInto(t *testing.T) {
	t.Chdir(t.TempDir())
	v := viper.New()
	v.Set("node_addr", "mynode:1234")
	var c struct {
		BaseConfig `mapstructure:",squash"`
		Bid        string `mapstructure:"bid"`
	}
	v.Set("bid", "x")
	if err := LoadInto(v, "", &c); err != nil {
		t.Fatal(err)
	}
	if c.NodeAddr != "mynode:1234" || c.Bid != "x" || c.Observability.LogLevel != Common.LogLevel {
		t.Errorf("c = %+v", c)
	}
}
