package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestRevertUnwrapsToKind(t *testing.T) {
	err := Reverted("deed", "transfer", ErrUnauthorized, "caller %s", "0x01")
	if !stderrors.Is(err, ErrUnauthorized) {
		t.Fatalf("errors.Is(%v, ErrUnauthorized) = false", err)
	}
	if stderrors.Is(err, ErrInvalidState) {
		t.Fatal("revert should not match a different kind")
	}

	wrapped := fmt.Errorf("submit: %w", err)
	var r *Revert
	if !As(wrapped, &r) {
		t.Fatal("As should find the revert through wrapping")
	}
	if r.Contract != "deed" || r.Op != "transfer" {
		t.Errorf("revert = %+v", r)
	}
}

func TestRevertMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Revert
		want string
	}{
		{"with reason", Reverted("auction", "newBid", ErrInvalidValue, "deposit %d", 5), "auction.newBid: invalid value: deposit 5"},
		{"without reason", &Revert{Contract: "fifs", Op: "register", Kind: ErrInvalidState}, "fifs.register: invalid state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
