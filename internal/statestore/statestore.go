// Package statestore opens the configured physical backend for ledger state.
package statestore

import (
	"context"
	"fmt"

	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/statestore/physical"

	// Register state backends
	_ "github.com/gezibash/arc-registrar/internal/statestore/physical/badger"
	_ "github.com/gezibash/arc-registrar/internal/statestore/physical/memory"
	_ "github.com/gezibash/arc-registrar/internal/statestore/physical/redis"
	_ "github.com/gezibash/arc-registrar/internal/statestore/physical/sqlite"
)

// Open creates the named backend. An empty name selects badger.
func Open(ctx context.Context, name string, config map[string]string, metrics *observability.Metrics) (physical.Backend, error) {
	if name == "" {
		name = "badger"
	}
	backend, err := physical.New(ctx, name, config, metrics)
	if err != nil {
		return nil, fmt.Errorf("open state backend: %w", err)
	}
	return backend, nil
}

// Backends lists the registered backend names.
func Backends() []string {
	return physical.Backends()
}
