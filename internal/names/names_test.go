package names

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const aliceHex = "0x00000000000000000000000000000000000A11CE"

func TestStoreAddLookupPersist(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add("@Alice", aliceHex); err != nil {
		t.Fatal(err)
	}

	again, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := again.Lookup("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != common.HexToAddress(aliceHex) {
		t.Errorf("Lookup = %s", got.Hex())
	}

	list := again.List()
	if len(list) != 1 || list[0].Name != "alice" || list[0].Petname == "" {
		t.Errorf("List = %+v", list)
	}

	if err := again.Remove("alice"); err != nil {
		t.Fatal(err)
	}
	if err := again.Remove("alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v", err)
	}
}

func TestStoreAddRejects(t *testing.T) {
	s := New(t.TempDir())
	tests := []struct {
		name, addr string
		want       error
	}{
		{"", aliceHex, ErrInvalidName},
		{"a.b", aliceHex, ErrInvalidName},
		{"two words", aliceHex, ErrInvalidName},
		{"bob", "0x1234", ErrInvalidKey},
	}
	for _, tc := range tests {
		if err := s.Add(tc.name, tc.addr); !errors.Is(err, tc.want) {
			t.Errorf("Add(%q, %q) = %v, want %v", tc.name, tc.addr, err, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Add("alice", aliceHex); err != nil {
		t.Fatal(err)
	}
	want := common.HexToAddress(aliceHex)

	for _, arg := range []string{"@alice", "alice", aliceHex, " " + aliceHex} {
		got, err := s.Resolve(arg)
		if err != nil || got != want {
			t.Errorf("Resolve(%q) = %s, %v", arg, got.Hex(), err)
		}
	}
	if _, err := s.Resolve("@carol"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(@carol) = %v", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Filename), []byte("alice: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir); err == nil {
		t.Error("Open accepted a corrupt names file")
	}
}
