package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/badger"
)

func newBackend(t *testing.T) physical.Backend {
	t.Helper()
	b, err := badger.NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func fill(t *testing.T, b physical.Backend, n int) {
	t.Helper()
	err := b.Update(context.Background(), func(txn physical.Txn) error {
		for i := 0; i < n; i++ {
			if err := txn.Set([]byte(fmt.Sprintf("k/%03d", i)), []byte(fmt.Sprintf("v%d", i))); err != nil {
				return err
			}
		}
		return txn.Set([]byte("empty"), []byte{})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func dump(t *testing.T, b physical.Backend) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := b.View(context.Background(), func(txn physical.Txn) error {
		return txn.Scan(nil, func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newBackend(t)
	fill(t, src, 50)

	var buf bytes.Buffer
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sum, err := Export(ctx, src, &buf, Header{CreatedAt: at, Note: "nightly"})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Keys != 51 || sum.Bytes != int64(buf.Len()) {
		t.Errorf("summary = %+v, buffer %d", sum, buf.Len())
	}

	dst := newBackend(t)
	got, err := Import(ctx, dst, bytes.NewReader(buf.Bytes()), ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Keys != sum.Keys || got.Digest != sum.Digest {
		t.Errorf("import summary = %+v, want %+v", got, sum)
	}
	if !got.Header.CreatedAt.Equal(at) || got.Header.Note != "nightly" || got.Header.Version != Version {
		t.Errorf("header = %+v", got.Header)
	}

	want, have := dump(t, src), dump(t, dst)
	if len(want) != len(have) {
		t.Fatalf("restored %d keys, want %d", len(have), len(want))
	}
	for k, v := range want {
		if have[k] != v {
			t.Errorf("%s = %q, want %q", k, have[k], v)
		}
	}
}

func TestEmptyValuesRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newBackend(t)
	err := src.Update(ctx, func(txn physical.Txn) error {
		for _, k := range []string{"a", "b", "c"} {
			if err := txn.Set([]byte(k), nil); err != nil {
				return err
			}
		}
		return txn.Set([]byte("d"), []byte("x"))
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	out, err := Export(ctx, src, &buf, Header{})
	if err != nil {
		t.Fatal(err)
	}
	dst := newBackend(t)
	in, err := Import(ctx, dst, &buf, ImportOptions{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if in.Digest != out.Digest || in.Keys != 4 {
		t.Fatalf("import summary %+v, export %+v", in, out)
	}
	got := dump(t, dst)
	if got["a"] != "" || got["c"] != "" || got["d"] != "x" || len(got) != 4 {
		t.Fatalf("restored %v", got)
	}
}

func TestImportRequiresEmptyUnlessReplace(t *testing.T) {
	ctx := context.Background()
	src := newBackend(t)
	fill(t, src, 3)
	var buf bytes.Buffer
	if _, err := Export(ctx, src, &buf, Header{}); err != nil {
		t.Fatal(err)
	}

	dst := newBackend(t)
	if err := dst.Update(ctx, func(txn physical.Txn) error { return txn.Set([]byte("stale"), []byte("x")) }); err != nil {
		t.Fatal(err)
	}
	if _, err := Import(ctx, dst, bytes.NewReader(buf.Bytes()), ImportOptions{}); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("Import into populated backend = %v", err)
	}
	if _, err := Import(ctx, dst, bytes.NewReader(buf.Bytes()), ImportOptions{Replace: true}); err != nil {
		t.Fatal(err)
	}
	state := dump(t, dst)
	if _, ok := state["stale"]; ok {
		t.Error("Replace kept a stale key")
	}
	if len(state) != 4 {
		t.Errorf("restored %d keys", len(state))
	}
}

func TestImportRejectsCorruption(t *testing.T) {
	ctx := context.Background()
	src := newBackend(t)
	fill(t, src, 5)
	var buf bytes.Buffer
	if _, err := Export(ctx, src, &buf, Header{}); err != nil {
		t.Fatal(err)
	}
	good := buf.Bytes()

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-10] }},
		{"flipped entry", func(b []byte) []byte { b[len(b)-40] ^= 0xff; return b }},
		{"digest", func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dst := newBackend(t)
			_, err := Import(ctx, dst, bytes.NewReader(tc.mangle(bytes.Clone(good))), ImportOptions{})
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Import = %v, want ErrCorrupt", err)
			}
			if n := len(dump(t, dst)); n != 0 {
				t.Errorf("failed import left %d keys", n)
			}
		})
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		if ValidName(name) == nil {
			t.Errorf("ValidName(%q) = nil", name)
		}
	}
	if err := ValidName(Name(time.Now())); err != nil {
		t.Errorf("default name rejected: %v", err)
	}
}
