// Package memory provides an in-memory state backend for tests and devnets.
package memory

import (
	"context"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/badger"
	"github.com/gezibash/arc-registrar/internal/storage"
)

func init() {
	physical.Register("memory", NewFactory, Defaults)
}

// Defaults returns the default configuration for the memory backend.
func Defaults() map[string]string {
	return map[string]string{
		badger.KeyInMemory: "true",
	}
}

// NewFactory creates a new in-memory backend using BadgerDB's in-memory mode.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	return badger.NewFactory(ctx, storage.Merge(config, Defaults()))
}
