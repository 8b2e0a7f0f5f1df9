// Package config provides shared configuration patterns and defaults for
// registrar commands.
package config

import (
	"os"
	"path/filepath"
)

// EnvPrefix prefixes every environment variable, e.g. ARC_REGISTRAR_GRPC_ADDR.
const EnvPrefix = "ARC_REGISTRAR"

// Common contains default values shared across commands.
var Common = struct {
	NodeAddr  string
	KeyName   string
	LogLevel  string
	LogFormat string
	DataDir   string
}{
	NodeAddr:  "localhost:50071",
	KeyName:   "",
	LogLevel:  "info",
	LogFormat: "text",
	DataDir:   DefaultDataDir(),
}

// DefaultDataDir returns the default data directory (~/.arc-registrar).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arc-registrar"
	}
	return filepath.Join(home, ".arc-registrar")
}

// NodeDefaults contains default values for `node start`.
var NodeDefaults = struct {
	ListenAddr       string
	MaxRecvMsgSize   int
	MaxSendMsgSize   int
	EnableReflection bool
	MetricsAddr      string
	MaxClockSkew     string
	StateBackend     string
	EventSink        string
	Clock            string
	TLD              string
	Domain           string
	LaunchLength     string
	AuctionLength    string
	RevealPeriod     string
	MinHoldPeriod    string
	MinPrice         string
	FIFSCost         string
	TokenName        string
	TokenSymbol      string
	TokenDecimals    uint64
	TokenSupply      string
	SnapshotTarget   string
	NodeKey          string
}{
	ListenAddr:       ":50071",
	MaxRecvMsgSize:   4 * 1024 * 1024, // 4MB
	MaxSendMsgSize:   4 * 1024 * 1024, // 4MB
	EnableReflection: false,
	MetricsAddr:      ":9090",
	MaxClockSkew:     "2m",
	StateBackend:     "badger",
	EventSink:        "log",
	Clock:            "system",
	TLD:              "eth",
	Domain:           "arc",
	LaunchLength:     "1344h", // 8 weeks
	AuctionLength:    "120h",
	RevealPeriod:     "48h",
	MinHoldPeriod:    "8760h",
	MinPrice:         "0.01ether",
	FIFSCost:         "10ether",
	TokenName:        "Arc Burn Token",
	TokenSymbol:      "ARB",
	TokenDecimals:    18,
	TokenSupply:      "1000000ether",
	SnapshotTarget:   "file",
	NodeKey:          "node",
}
