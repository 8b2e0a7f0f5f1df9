package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/physicaltest"
)

func TestConformanceDisk(t *testing.T) {
	physicaltest.Run(t, func(t *testing.T) physical.Backend {
		be, err := NewFactory(context.Background(), map[string]string{
			KeyPath:       filepath.Join(t.TempDir(), "state"),
			KeySyncWrites: "false",
		})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { be.Close() })
		return be
	})
}

func TestConformanceInMemory(t *testing.T) {
	physicaltest.Run(t, func(t *testing.T) physical.Backend {
		be, err := NewInMemory()
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { be.Close() })
		return be
	})
}

func TestReopenKeepsState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	cfg := map[string]string{KeyPath: dir}

	be, err := NewFactory(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	err = be.Update(context.Background(), func(txn physical.Txn) error {
		return txn.Set([]byte("deed"), []byte("owned"))
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := be.Close(); err != nil {
		t.Fatal(err)
	}

	be, err = NewFactory(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer be.Close()

	err = be.View(context.Background(), func(txn physical.Txn) error {
		v, err := txn.Get([]byte("deed"))
		if err != nil {
			return err
		}
		if string(v) != "owned" {
			t.Errorf("value = %q", v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := NewFactory(context.Background(), map[string]string{KeyPath: ""}); err == nil {
		t.Fatal("expected config error")
	}
}

func TestValueLogGC(t *testing.T) {
	be, err := NewFactory(context.Background(), map[string]string{
		KeyPath:       filepath.Join(t.TempDir(), "state"),
		KeyGCInterval: "10ms",
	})
	if err != nil {
		t.Fatal(err)
	}
	b := be.(*Backend)
	if err := b.RunGC(0.5); err != nil {
		t.Fatalf("RunGC on a fresh db: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.RunGC(0.5); err != physical.ErrClosed {
		t.Fatalf("RunGC after close = %v", err)
	}
}

func TestDiscardRatioBounds(t *testing.T) {
	for _, v := range []string{"0", "100"} {
		_, err := NewFactory(context.Background(), map[string]string{
			KeyPath:           filepath.Join(t.TempDir(), "state"),
			KeyGCDiscardRatio: v,
		})
		if err == nil {
			t.Errorf("gc_discard_ratio=%s accepted", v)
		}
	}
}
