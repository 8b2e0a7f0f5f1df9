// Package physicaltest provides a shared conformance suite for statestore backends.
package physicaltest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
)

// Run exercises the Backend contract against backends produced by newBackend.
// Each subtest gets a fresh backend.
func Run(t *testing.T, newBackend func(t *testing.T) physical.Backend) {
	t.Helper()

	t.Run("SetGet", func(t *testing.T) { testSetGet(t, newBackend(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newBackend(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newBackend(t)) })
	t.Run("ScanOrder", func(t *testing.T) { testScanOrder(t, newBackend(t)) })
	t.Run("ViewIsReadOnly", func(t *testing.T) { testViewReadOnly(t, newBackend(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newBackend(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newBackend(t)) })
}

func set(t *testing.T, be physical.Backend, key, value string) {
	t.Helper()
	err := be.Update(context.Background(), func(txn physical.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		t.Fatalf("Update(set %s): %v", key, err)
	}
}

func get(t *testing.T, be physical.Backend, key string) ([]byte, error) {
	t.Helper()
	var out []byte
	err := be.View(context.Background(), func(txn physical.Txn) error {
		v, err := txn.Get([]byte(key))
		out = v
		return err
	})
	return out, err
}

func testSetGet(t *testing.T, be physical.Backend) {
	set(t, be, "a", "1")
	got, err := get(t, be, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "1" {
		t.Errorf("Get = %q, want 1", got)
	}

	set(t, be, "a", "2")
	got, _ = get(t, be, "a")
	if string(got) != "2" {
		t.Errorf("overwrite Get = %q, want 2", got)
	}
}

func testNotFound(t *testing.T, be physical.Backend) {
	if _, err := get(t, be, "missing"); !errors.Is(err, physical.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func testDelete(t *testing.T, be physical.Backend) {
	set(t, be, "gone", "x")
	err := be.Update(context.Background(), func(txn physical.Txn) error {
		return txn.Delete([]byte("gone"))
	})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := get(t, be, "gone"); !errors.Is(err, physical.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func testRollback(t *testing.T, be physical.Backend) {
	set(t, be, "keep", "old")
	boom := errors.New("boom")
	err := be.Update(context.Background(), func(txn physical.Txn) error {
		if err := txn.Set([]byte("keep"), []byte("new")); err != nil {
			return err
		}
		if err := txn.Set([]byte("extra"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want boom", err)
	}
	got, _ := get(t, be, "keep")
	if string(got) != "old" {
		t.Errorf("keep = %q after rollback, want old", got)
	}
	if _, err := get(t, be, "extra"); !errors.Is(err, physical.ErrNotFound) {
		t.Errorf("extra survived rollback: %v", err)
	}
}

func testReadYourWrites(t *testing.T, be physical.Backend) {
	set(t, be, "p/1", "one")
	err := be.Update(context.Background(), func(txn physical.Txn) error {
		if err := txn.Set([]byte("p/2"), []byte("two")); err != nil {
			return err
		}
		if err := txn.Delete([]byte("p/1")); err != nil {
			return err
		}
		v, err := txn.Get([]byte("p/2"))
		if err != nil || string(v) != "two" {
			return fmt.Errorf("pending write invisible: %q %v", v, err)
		}
		if _, err := txn.Get([]byte("p/1")); !errors.Is(err, physical.ErrNotFound) {
			return fmt.Errorf("pending delete invisible: %v", err)
		}
		var keys []string
		if err := txn.Scan([]byte("p/"), func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		}); err != nil {
			return err
		}
		if len(keys) != 1 || keys[0] != "p/2" {
			return fmt.Errorf("scan = %v, want [p/2]", keys)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testScanOrder(t *testing.T, be physical.Backend) {
	for _, k := range []string{"s/c", "s/a", "t/x", "s/b", "r/z"} {
		set(t, be, k, "v-"+k)
	}

	var keys []string
	err := be.View(context.Background(), func(txn physical.Txn) error {
		return txn.Scan([]byte("s/"), func(k, v []byte) error {
			if !bytes.Equal(v, []byte("v-"+string(k))) {
				return fmt.Errorf("value for %s = %q", k, v)
			}
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"s/a", "s/b", "s/c"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Scan = %v, want %v", keys, want)
	}

	stop := errors.New("stop")
	count := 0
	err = be.View(context.Background(), func(txn physical.Txn) error {
		return txn.Scan([]byte("s/"), func(_, _ []byte) error {
			count++
			return stop
		})
	})
	if !errors.Is(err, stop) || count != 1 {
		t.Errorf("early stop: err=%v count=%d", err, count)
	}
}

func testViewReadOnly(t *testing.T, be physical.Backend) {
	err := be.View(context.Background(), func(txn physical.Txn) error {
		return txn.Set([]byte("x"), []byte("y"))
	})
	if !errors.Is(err, physical.ErrReadOnly) {
		t.Errorf("Set in View = %v, want ErrReadOnly", err)
	}
}

func testStats(t *testing.T, be physical.Backend) {
	set(t, be, "k1", "v")
	set(t, be, "k2", "v")
	st, err := be.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Keys != 2 {
		t.Errorf("Keys = %d, want 2", st.Keys)
	}
	if st.BackendType == "" {
		t.Error("BackendType empty")
	}
}

func testClosed(t *testing.T, be physical.Backend) {
	if err := be.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := be.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	err := be.Update(context.Background(), func(physical.Txn) error { return nil })
	if !errors.Is(err, physical.ErrClosed) {
		t.Errorf("Update after close = %v, want ErrClosed", err)
	}
}
