package memory

import (
	"context"
	"testing"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/physicaltest"
)

func TestConformance(t *testing.T) {
	physicaltest.Run(t, func(t *testing.T) physical.Backend {
		be, err := NewFactory(context.Background(), map[string]string{})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { be.Close() })
		return be
	})
}

func TestRegistered(t *testing.T) {
	if !physical.Registered("memory") {
		t.Fatal("memory backend not registered")
	}
	if !physical.Registered("badger") {
		t.Fatal("badger backend should be registered through the memory import")
	}
}
