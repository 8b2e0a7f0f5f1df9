// Package keyring stores secp256k1 account keys on disk, addressed by
// account address, with aliases and a default key.
package keyring

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gezibash/arc-registrar/pkg/identity"
)

const DefaultAlias = "default"

var (
	ErrNotFound      = errors.New("key not found")
	ErrAliasNotFound = errors.New("alias not found")
	ErrAlreadyExists = errors.New("key already exists")
	ErrNoDefault     = errors.New("no default key set")
)

type Keyring struct {
	dir string
}

// Key is a loaded key. It satisfies identity.Signer.
type Key struct {
	*identity.Keypair
	Metadata *Metadata
}

type Metadata struct {
	Address   common.Address `json:"address" yaml:"address"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	Source    string         `json:"source,omitempty" yaml:"source,omitempty"`
}

type KeyInfo struct {
	Address   common.Address `json:"address"`
	Aliases   []string       `json:"aliases,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	IsDefault bool           `json:"is_default"`
}

func New(dir string) *Keyring {
	return &Keyring{dir: dir}
}

func (kr *Keyring) Generate(_ context.Context, alias string) (*Key, error) {
	kp, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	return kr.store(kp, alias, "generated", true)
}

// Import stores a hex-encoded private key.
func (kr *Keyring) Import(_ context.Context, privHex, alias string) (*Key, error) {
	kp, err := identity.FromHex(privHex)
	if err != nil {
		return nil, err
	}
	return kr.store(kp, alias, "imported", false)
}

// ImportMnemonic derives a key from a BIP-39 mnemonic and stores it.
func (kr *Keyring) ImportMnemonic(_ context.Context, mnemonic, passphrase, alias string) (*Key, error) {
	kp, err := identity.FromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return kr.store(kp, alias, "mnemonic", false)
}

func (kr *Keyring) store(kp *identity.Keypair, alias, source string, fresh bool) (*Key, error) {
	addr := kp.Address()
	if fresh && kr.keyExists(addr) {
		return nil, ErrAlreadyExists
	}

	meta := &Metadata{Address: addr, CreatedAt: time.Now().UTC(), Source: source}
	if err := kr.saveKey(kp, meta); err != nil {
		return nil, err
	}

	if alias != "" {
		if err := kr.SetAlias(alias, addr.Hex()); err != nil {
			if fresh {
				_ = kr.deleteKeyFiles(addr)
			}
			return nil, err
		}
	}
	return &Key{Keypair: kp, Metadata: meta}, nil
}

// Load resolves an alias or address and loads the key.
func (kr *Keyring) Load(_ context.Context, nameOrAddr string) (*Key, error) {
	addr, err := kr.resolve(nameOrAddr)
	if err != nil {
		return nil, err
	}
	kp, meta, err := kr.loadKey(addr)
	if err != nil {
		return nil, err
	}
	return &Key{Keypair: kp, Metadata: meta}, nil
}

func (kr *Keyring) LoadDefault(ctx context.Context) (*Key, error) {
	idx, err := kr.loadIndex()
	if err != nil {
		return nil, err
	}
	if idx.Default == "" {
		return nil, ErrNoDefault
	}
	return kr.Load(ctx, idx.Default)
}

// LoadOrDefault loads nameOrAddr, or the default key when it is empty.
func (kr *Keyring) LoadOrDefault(ctx context.Context, nameOrAddr string) (*Key, error) {
	if nameOrAddr == "" {
		return kr.LoadDefault(ctx)
	}
	return kr.Load(ctx, nameOrAddr)
}

func (kr *Keyring) LoadOrGenerate(ctx context.Context, alias string) (*Key, error) {
	key, err := kr.Load(ctx, alias)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAliasNotFound) {
		return nil, err
	}
	return kr.Generate(ctx, alias)
}

func (kr *Keyring) List(_ context.Context) ([]*KeyInfo, error) {
	idx, err := kr.loadIndex()
	if err != nil {
		return nil, err
	}

	aliasMap := make(map[common.Address][]string)
	for alias, addr := range idx.Aliases {
		aliasMap[addr] = append(aliasMap[addr], alias)
	}
	var def common.Address
	if idx.Default != "" {
		def, _ = kr.resolveWith(idx.Default, idx)
	}

	addrs, err := kr.listKeyFiles()
	if err != nil {
		return nil, err
	}

	infos := make([]*KeyInfo, 0, len(addrs))
	for _, addr := range addrs {
		_, meta, err := kr.loadKey(addr)
		if err != nil {
			continue
		}
		infos = append(infos, &KeyInfo{
			Address:   addr,
			Aliases:   aliasMap[addr],
			CreatedAt: meta.CreatedAt,
			IsDefault: def != (common.Address{}) && def == addr,
		})
	}
	return infos, nil
}

func (kr *Keyring) Delete(_ context.Context, nameOrAddr string) error {
	addr, err := kr.resolve(nameOrAddr)
	if err != nil {
		return err
	}

	idx, err := kr.loadIndex()
	if err != nil {
		return err
	}
	dirty := false
	if idx.Default != "" {
		if d, _ := kr.resolveWith(idx.Default, idx); d == addr {
			idx.Default = ""
			dirty = true
		}
	}
	before := len(idx.Aliases)
	maps.DeleteFunc(idx.Aliases, func(_ string, a common.Address) bool { return a == addr })
	if dirty || len(idx.Aliases) != before {
		if err := kr.saveIndex(idx); err != nil {
			return err
		}
	}
	return kr.deleteKeyFiles(addr)
}

func (kr *Keyring) SetAlias(alias, addrHex string) error {
	if !common.IsHexAddress(strings.TrimSpace(addrHex)) {
		return ErrNotFound
	}
	addr := common.HexToAddress(strings.TrimSpace(addrHex))
	if !kr.keyExists(addr) {
		return ErrNotFound
	}

	idx, err := kr.loadIndex()
	if err != nil {
		return err
	}
	idx.Aliases[alias] = addr
	return kr.saveIndex(idx)
}

func (kr *Keyring) SetDefault(alias string) error {
	idx, err := kr.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := idx.Aliases[alias]; !ok {
		return ErrAliasNotFound
	}
	idx.Default = alias
	return kr.saveIndex(idx)
}

func (kr *Keyring) resolve(nameOrAddr string) (common.Address, error) {
	idx, err := kr.loadIndex()
	if err != nil {
		return common.Address{}, err
	}
	return kr.resolveWith(nameOrAddr, idx)
}

func (kr *Keyring) resolveWith(nameOrAddr string, idx *index) (common.Address, error) {
	if addr, ok := idx.Aliases[nameOrAddr]; ok {
		if kr.keyExists(addr) {
			return addr, nil
		}
		return common.Address{}, ErrNotFound
	}
	s := strings.TrimSpace(nameOrAddr)
	if common.IsHexAddress(s) {
		addr := common.HexToAddress(s)
		if kr.keyExists(addr) {
			return addr, nil
		}
		return common.Address{}, ErrNotFound
	}
	return common.Address{}, ErrAliasNotFound
}
