package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// SetCommonDefaults seeds v with the defaults every command shares.
func SetCommonDefaults(v *viper.Viper) {
	for key, val := range map[string]any{
		"data_dir":                 Common.DataDir,
		"node_addr":                Common.NodeAddr,
		"key_name":                 Common.KeyName,
		"output":                   "text",
		"observability.log_level":  Common.LogLevel,
		"observability.log_format": Common.LogFormat,
	} {
		v.SetDefault(key, val)
	}
}

// commonFlags maps persistent flag names to their viper keys. An empty key
// leaves the flag unbound.
var commonFlags = []struct {
	flag, short, key, usage string
}{
	{"data-dir", "", "data_dir", "data directory (default ~/.arc-registrar)"},
	{"node", "", "node_addr", "node address (default localhost:50071)"},
	{"key", "", "key_name", "key name or alias to sign with"},
	{"key-path", "", "key_path", "path to key file (overrides --key)"},
	{"output", "o", "output", "output format (text, json, yaml, markdown)"},
	{"log-level", "", "observability.log_level", "log level (debug, info, warn, error)"},
	{"log-format", "", "observability.log_format", "log format (json, text)"},
	{"config", "", "", "config file path"},
}

// BindCommonFlags registers the persistent client flags on cmd and binds
// them into v.
func BindCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	for _, cf := range commonFlags {
		f.StringP(cf.flag, cf.short, "", cf.usage)
		if cf.key != "" {
			_ = v.BindPFlag(cf.key, f.Lookup(cf.flag))
		}
	}
	f.Duration("timeout", 30*time.Second, "per-command timeout")
	_ = v.BindPFlag("timeout", f.Lookup("timeout"))
}

// LoadInto layers defaults, the config file, environment and flags, then
// decodes the result into cfg.
func LoadInto(v *viper.Viper, configFile string, cfg any) error {
	SetCommonDefaults(v)
	if err := read(v, EnvPrefix, configFile, "$HOME/.arc-registrar"); err != nil {
		return err
	}
	return v.Unmarshal(cfg)
}
