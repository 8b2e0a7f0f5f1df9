package physical

import (
	"context"

	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/storage"
	"github.com/gezibash/arc-registrar/pkg/logging"
)

// Factory creates a backend from a configuration map.
type Factory func(ctx context.Context, config map[string]string) (Backend, error)

var backends = storage.NewRegistry[Backend]("statestore backend")

// Register makes a backend available by name. It panics on duplicates.
func Register(name string, factory Factory, defaults func() map[string]string) {
	backends.Register(name, factory, defaults)
}

// Backends returns the registered backend names, sorted.
func Backends() []string { return backends.Names() }

// Registered reports whether name has a backend.
func Registered(name string) bool { return backends.Has(name) }

// New opens the named backend with config layered over its defaults.
func New(ctx context.Context, name string, config map[string]string, metrics *observability.Metrics) (_ Backend, err error) {
	op, ctx := observability.StartOperation(ctx, metrics, "statestore.open",
		observability.KeyBackend.String(name))
	defer func() { op.End(err) }()

	b, err := backends.Open(ctx, name, config)
	if err != nil {
		return nil, err
	}
	logging.New(nil).InfoContext(ctx, "state backend opened", "backend", name)
	return b, nil
}
