package physical

import (
	"bytes"
	"context"
	"errors"
	"testing"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   []byte
	}{
		{"simple", []byte("ab"), []byte("ac")},
		{"carry", []byte{0x01, 0xff}, []byte{0x02}},
		{"all ff", []byte{0xff, 0xff}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrefixEnd(tt.prefix); !bytes.Equal(got, tt.want) {
				t.Errorf("PrefixEnd(%x) = %x, want %x", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestUnknownBackend(t *testing.T) {
	if Registered("does-not-exist") {
		t.Fatal("unexpected registration")
	}
	_, err := New(context.Background(), "does-not-exist", nil, nil)
	if !errors.Is(err, arcerrors.ErrInvalidInput) {
		t.Errorf("New unknown backend = %v", err)
	}
}
