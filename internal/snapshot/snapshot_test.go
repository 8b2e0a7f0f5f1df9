package snapshot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/snapshot"
	_ "github.com/gezibash/arc-registrar/internal/snapshot/fs"
	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/badger"
)

func TestSaveRestoreThroughFileTarget(t *testing.T) {
	ctx := context.Background()
	target, err := snapshot.OpenTarget(ctx, "file", map[string]string{"path": t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = target.Close() }()

	src, _ := badger.NewInMemory()
	defer func() { _ = src.Close() }()
	if err := src.Update(ctx, func(txn physical.Txn) error { return txn.Set([]byte("node/manifest"), []byte("version: 1")) }); err != nil {
		t.Fatal(err)
	}

	metrics := observability.NewMetrics()
	sum, err := snapshot.Save(ctx, src, target, "a.snap", snapshot.Header{}, metrics)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Keys != 1 {
		t.Errorf("saved %d keys", sum.Keys)
	}

	objs, err := target.List(ctx)
	if err != nil || len(objs) != 1 || objs[0].Name != "a.snap" || objs[0].Size != sum.Bytes {
		t.Fatalf("List = %+v, %v", objs, err)
	}

	dst, _ := badger.NewInMemory()
	defer func() { _ = dst.Close() }()
	if _, err := snapshot.Restore(ctx, dst, target, "a.snap", snapshot.ImportOptions{}, metrics); err != nil {
		t.Fatal(err)
	}
	err = dst.View(ctx, func(txn physical.Txn) error {
		v, err := txn.Get([]byte("node/manifest"))
		if err == nil && string(v) != "version: 1" {
			t.Errorf("restored value %q", v)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := snapshot.Restore(ctx, dst, target, "missing.snap", snapshot.ImportOptions{Replace: true}, metrics); !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("missing snapshot: %v", err)
	}
	if _, err := snapshot.Save(ctx, src, target, "../escape", snapshot.Header{}, metrics); err == nil {
		t.Error("Save accepted a path-escaping name")
	}
}

func TestOpenUnknownTarget(t *testing.T) {
	if _, err := snapshot.OpenTarget(context.Background(), "tape", nil); err == nil {
		t.Error("unknown target opened")
	}
}
