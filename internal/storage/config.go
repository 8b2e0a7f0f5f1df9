package storage

import (
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Params reads one backend's flat string configuration. The first invalid
// value is kept and returned by Err; later reads return their defaults.
//
//	p := storage.Read("redis", cfg)
//	addr := p.Required(KeyAddr)
//	pool := p.Int(KeyPoolSize, 10)
//	if err := p.Err(); err != nil { ... }
type Params struct {
	backend string
	values  map[string]string
	err     error
}

// Read wraps values for backend. A nil map reads as empty.
func Read(backend string, values map[string]string) *Params {
	return &Params{backend: backend, values: values}
}

// Err returns the first configuration error, a *ConfigError.
func (p *Params) Err() error { return p.err }

// Fail records a validation error for key unless one is already set.
func (p *Params) Fail(key, message string, cause error) {
	if p.err == nil {
		p.err = &ConfigError{Backend: p.backend, Field: key, Value: p.values[key], Message: message, Cause: cause}
	}
}

func (p *Params) raw(key string) (string, bool) {
	v, ok := p.values[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// String returns the value of key, or def when unset or blank.
func (p *Params) String(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

// Required returns the value of key and records an error when it is unset.
func (p *Params) Required(key string) string {
	v, ok := p.raw(key)
	if !ok {
		p.Fail(key, "cannot be empty", nil)
	}
	return v
}

// Path returns a filesystem path with a leading ~/ expanded.
func (p *Params) Path(key, def string) string {
	v := p.String(key, def)
	if v == "" {
		return ""
	}
	return ExpandPath(v)
}

// Bool accepts true/false, 1/0 and yes/no in any case.
func (p *Params) Bool(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	p.Fail(key, "must be a boolean (true/false, 1/0, yes/no)", nil)
	return def
}

// Int returns a non-negative integer.
func (p *Params) Int(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		p.Fail(key, "must be a non-negative integer", err)
		return def
	}
	return i
}

// Bytes returns a size such as "64MiB", "1.5GB" or a plain byte count.
func (p *Params) Bytes(key string, def int64) int64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := humanize.ParseBytes(v)
	if err != nil || n > 1<<62 {
		p.Fail(key, "must be a size (e.g. 64MiB)", err)
		return def
	}
	return int64(n)
}

// Duration accepts Go duration strings or integer seconds.
func (p *Params) Duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	p.Fail(key, "must be a duration (e.g. 5s, 1m30s) or integer seconds", nil)
	return def
}

// List splits a comma-separated value, dropping blanks.
func (p *Params) List(key string, def []string) []string {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// OneOf returns the value of key when it is one of allowed.
func (p *Params) OneOf(key, def string, allowed ...string) string {
	v := p.String(key, def)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a
		}
	}
	p.Fail(key, "must be one of "+strings.Join(allowed, ", "), nil)
	return def
}

// ExpandPath expands ~ to the user's home directory and cleans the path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return filepath.Clean(path)
}

// Merge layers values over defaults into a new map.
func Merge(defaults, values map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(values))
	maps.Copy(out, defaults)
	maps.Copy(out, values)
	return out
}
