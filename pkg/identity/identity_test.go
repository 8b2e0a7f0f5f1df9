package identity

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestSignAndRecover(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.Keccak256([]byte("bid"))
	sig, err := kp.Sign(digest)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Recover(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	if got != kp.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), kp.Address().Hex())
	}
	if !Verify(kp.Address(), digest, sig) {
		t.Error("Verify rejected a valid signature")
	}
	if Verify(kp.Address(), crypto.Keccak256([]byte("other")), sig) {
		t.Error("Verify accepted a signature over another digest")
	}
	if _, err := Recover(digest, sig[:10]); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("short signature: %v", err)
	}
}

func TestHexRoundTrip(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	again, err := FromHex(kp.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if again.Address() != kp.Address() || !bytes.Equal(again.PublicKey(), kp.PublicKey()) {
		t.Error("hex round trip changed the key")
	}
	if _, err := FromHex("0xzz"); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("bad hex: %v", err)
	}
}

func TestFromMnemonicIsDeterministic(t *testing.T) {
	const m = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	a, err := FromMnemonic(m, "")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := FromMnemonic(m, "")
	c, _ := FromMnemonic(m, "pass")
	if a.Address() != b.Address() || a.Address() == c.Address() {
		t.Errorf("addresses: %s %s %s", a.Address().Hex(), b.Address().Hex(), c.Address().Hex())
	}
	if _, err := FromMnemonic("not a mnemonic", ""); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("bad mnemonic: %v", err)
	}
}

func TestSignatureEncoding(t *testing.T) {
	kp, _ := Generate()
	sig, _ := kp.Sign(crypto.Keccak256([]byte("x")))
	dec, err := DecodeSignature(EncodeSignature(sig))
	if err != nil || !bytes.Equal(dec, sig) {
		t.Errorf("decode = %x, %v", dec, err)
	}
	if _, err := DecodeSignature("0x1234"); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("short: %v", err)
	}
}

func TestProviderFunc(t *testing.T) {
	kp, _ := Generate()
	p := ProviderFunc(func(context.Context) (Signer, error) { return kp, nil })
	s, err := p.Load(context.Background())
	if err != nil || s.Address() != kp.Address() {
		t.Errorf("Load = %v, %v", s, err)
	}
}
