package snapshot

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gezibash/arc-registrar/internal/storage"
)

var (
	// ErrNotFound indicates the named snapshot does not exist.
	ErrNotFound = errors.New("snapshot not found")
	// ErrClosed indicates the target has been closed.
	ErrClosed = errors.New("target closed")
)

// Object describes a stored snapshot.
type Object struct {
	Name     string
	Size     int64
	Modified time.Time
}

// Target stores snapshot streams by name. Implementations must be safe for
// concurrent use.
type Target interface {
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]Object, error)
	Close() error
}

// Factory creates a target from configuration.
type Factory func(ctx context.Context, config map[string]string) (Target, error)

var targets = storage.NewRegistry[Target]("snapshot target")

// Register adds a target factory. Panics on duplicate names.
func Register(name string, factory Factory, defaults func() map[string]string) {
	targets.Register(name, factory, defaults)
}

// OpenTarget creates the named target. Config values override the
// target's defaults.
func OpenTarget(ctx context.Context, name string, config map[string]string) (Target, error) {
	return targets.Open(ctx, name, config)
}

// Targets returns the registered target names, sorted.
func Targets() []string { return targets.Names() }

// Name returns a default snapshot name for t.
func Name(t time.Time) string {
	return "state-" + t.UTC().Format("20060102T150405Z") + ".snap"
}

// ValidName rejects names that could escape a target's namespace.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." {
		return storage.NewConfigErrorWithValue("snapshot", "name", name, "invalid snapshot name")
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == 0 {
			return storage.NewConfigErrorWithValue("snapshot", "name", name, "must not contain path separators")
		}
	}
	return nil
}
