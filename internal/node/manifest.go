package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
)

var (
	keyManifest = []byte("node/manifest")
	keyClock    = []byte("node/clock")
)

// ManifestVersion is the manifest layout written by this build.
const ManifestVersion = 1

// Manifest records where genesis deployed each contract. It is written once
// and read back on every start so a node re-attaches to existing state.
type Manifest struct {
	Version    int            `yaml:"version"`
	CreatedAt  time.Time      `yaml:"created_at"`
	Deployer   common.Address `yaml:"deployer"`
	TLD        string         `yaml:"tld"`
	TLDNode    common.Hash    `yaml:"tld_node"`
	Domain     string         `yaml:"domain"`
	DomainNode common.Hash    `yaml:"domain_node"`
	Registry   common.Address `yaml:"registry"`
	Resolver   common.Address `yaml:"resolver"`
	Token      common.Address `yaml:"token"`
	Auction    common.Address `yaml:"auction"`
	FIFS       common.Address `yaml:"fifs"`
	Holder     common.Address `yaml:"holder"`
	Delegating common.Address `yaml:"delegating_holder"`
}

// Contracts returns the deployed contract addresses keyed by role.
func (m Manifest) Contracts() map[string]common.Address {
	return map[string]common.Address{
		"registry":          m.Registry,
		"resolver":          m.Resolver,
		"token":             m.Token,
		"auction":           m.Auction,
		"fifs":              m.FIFS,
		"holder":            m.Holder,
		"delegating_holder": m.Delegating,
	}
}

// LoadManifest reads the manifest. ok is false on a fresh backend.
func LoadManifest(ctx context.Context, backend physical.Backend) (m Manifest, ok bool, err error) {
	err = backend.View(ctx, func(txn physical.Txn) error {
		raw, err := txn.Get(keyManifest)
		if errors.Is(err, physical.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		ok = true
		return nil
	})
	if err == nil && ok && m.Version != ManifestVersion {
		return m, ok, fmt.Errorf("manifest version %d, want %d", m.Version, ManifestVersion)
	}
	return m, ok, err
}

// SaveManifest writes m.
func SaveManifest(ctx context.Context, backend physical.Backend, m Manifest) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return backend.Update(ctx, func(txn physical.Txn) error {
		return txn.Set(keyManifest, raw)
	})
}

func loadClock(ctx context.Context, backend physical.Backend) (time.Time, bool, error) {
	var (
		t  time.Time
		ok bool
	)
	err := backend.View(ctx, func(txn physical.Txn) error {
		raw, err := txn.Get(keyClock)
		if errors.Is(err, physical.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		sec, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("decode clock: %w", err)
		}
		t, ok = time.Unix(sec, 0).UTC(), true
		return nil
	})
	return t, ok, err
}

func saveClock(ctx context.Context, backend physical.Backend, t time.Time) error {
	return backend.Update(ctx, func(txn physical.Txn) error {
		return txn.Set(keyClock, []byte(strconv.FormatInt(t.Unix(), 10)))
	})
}
