package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/physicaltest"
)

func newTestBackend(t *testing.T) physical.Backend {
	t.Helper()
	be, err := NewFactory(context.Background(), map[string]string{
		KeyPath: filepath.Join(t.TempDir(), "state.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func TestConformance(t *testing.T) {
	physicaltest.Run(t, newTestBackend)
}

func TestScanHighBytePrefix(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	err := be.Update(ctx, func(txn physical.Txn) error {
		for _, k := range [][]byte{{0xff, 0x01}, {0xff, 0xff}, {0xfe}} {
			if err := txn.Set(k, []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var n int
	err = be.View(ctx, func(txn physical.Txn) error {
		return txn.Scan([]byte{0xff}, func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("scan 0xff prefix = %d keys, want 2", n)
	}
}
