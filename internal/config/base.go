package config

import "os"

// BaseConfig contains the fields every client command reads. Command configs
// embed it with mapstructure:",squash".
type BaseConfig struct {
	DataDir       string              `mapstructure:"data_dir"`
	NodeAddr      string              `mapstructure:"node_addr"`
	KeyName       string              `mapstructure:"key_name"`
	KeyPath       string              `mapstructure:"key_path"`
	Output        string              `mapstructure:"output"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ResolvedNodeAddr returns the node address, checking config >
// ARC_REGISTRAR_NODE env > default.
func (c BaseConfig) ResolvedNodeAddr() string {
	if c.NodeAddr != "" {
		return c.NodeAddr
	}
	if addr := os.Getenv(EnvPrefix + "_NODE"); addr != "" {
		return addr
	}
	return Common.NodeAddr
}

// ResolvedDataDir returns the data directory from config, or the default.
func (c BaseConfig) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}
