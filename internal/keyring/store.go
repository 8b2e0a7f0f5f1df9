package keyring

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/gezibash/arc-registrar/pkg/identity"
)

// On disk a keyring is
//
//	<dir>/keyring.yaml          default key and aliases
//	<dir>/keys/<addr>.key       hex secp256k1 private key
//	<dir>/keys/<addr>.yaml      Metadata
//
// where <addr> is the lower-case address without 0x.

type index struct {
	Version int                       `yaml:"version"`
	Default string                    `yaml:"default,omitempty"`
	Aliases map[string]common.Address `yaml:"aliases"`
}

func fileID(addr common.Address) string {
	return strings.ToLower(addr.Hex()[2:])
}

func (kr *Keyring) keysDir() string              { return filepath.Join(kr.dir, "keys") }
func (kr *Keyring) indexPath() string            { return filepath.Join(kr.dir, "keyring.yaml") }
func (kr *Keyring) base(a common.Address) string { return filepath.Join(kr.keysDir(), fileID(a)) }

func (kr *Keyring) keyExists(addr common.Address) bool {
	_, err := os.Stat(kr.base(addr) + ".key")
	return err == nil
}

func (kr *Keyring) saveKey(kp *identity.Keypair, meta *Metadata) error {
	if err := os.MkdirAll(kr.keysDir(), 0o700); err != nil {
		return fmt.Errorf("create keys directory: %w", err)
	}
	base := kr.base(meta.Address)
	if err := crypto.SaveECDSA(base+".key", kp.Private()); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if err := writeYAML(base+".yaml", meta); err != nil {
		_ = os.Remove(base + ".key")
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (kr *Keyring) loadKey(addr common.Address) (*identity.Keypair, *Metadata, error) {
	base := kr.base(addr)
	priv, err := crypto.LoadECDSA(base + ".key")
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil, ErrNotFound
	case err != nil:
		return nil, nil, fmt.Errorf("read key file: %w", err)
	}
	kp := identity.FromPrivate(priv)
	if kp.Address() != addr {
		return nil, nil, fmt.Errorf("key file %s holds %s", fileID(addr), kp.Address().Hex())
	}

	meta := &Metadata{Address: addr}
	if err := readYAML(base+".yaml", meta); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("read metadata: %w", err)
	}
	return kp, meta, nil
}

func (kr *Keyring) deleteKeyFiles(addr common.Address) error {
	base := kr.base(addr)
	err := os.Remove(base + ".key")
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("delete key file: %w", err)
	}
	_ = os.Remove(base + ".yaml")
	return nil
}

func (kr *Keyring) listKeyFiles() ([]common.Address, error) {
	entries, err := os.ReadDir(kr.keysDir())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read keys directory: %w", err)
	}
	var addrs []common.Address
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".key")
		if ok && !e.IsDir() && common.IsHexAddress(id) {
			addrs = append(addrs, common.HexToAddress(id))
		}
	}
	return addrs, nil
}

// loadIndex returns an empty index when none has been written yet.
func (kr *Keyring) loadIndex() (*index, error) {
	idx := &index{Version: 1}
	if err := readYAML(kr.indexPath(), idx); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("keyring index: %w", err)
	}
	if idx.Aliases == nil {
		idx.Aliases = make(map[string]common.Address)
	}
	return idx, nil
}

func (kr *Keyring) saveIndex(idx *index) error {
	if err := os.MkdirAll(kr.dir, 0o700); err != nil {
		return fmt.Errorf("create keyring directory: %w", err)
	}
	if err := writeYAML(kr.indexPath(), idx); err != nil {
		return fmt.Errorf("keyring index: %w", err)
	}
	return nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// writeYAML replaces path atomically with owner-only permissions.
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
