// Package names manages local @name to account address mappings.
//
// Commands accept "@alice" wherever an address is expected; the names file
// in the data directory is consulted before the argument is parsed as hex.
package names

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gezibash/arc-registrar/pkg/namehash"
	"gopkg.in/yaml.v3"
)

// Filename is the names file name within the data directory.
const Filename = "addressbook.yaml"

var (
	ErrNotFound    = errors.New("name not found")
	ErrInvalidName = errors.New("invalid name")
	ErrInvalidKey  = errors.New("invalid address")
)

// Entry represents a name entry.
type Entry struct {
	Name    string         `json:"name" yaml:"name"`
	Address common.Address `json:"address" yaml:"address"`
	Petname string         `json:"petname" yaml:"petname"`
}

// Store manages name-to-address mappings stored locally.
type Store struct {
	path    string
	entries map[string]common.Address
	mu      sync.RWMutex
}

// New creates a name store using the given data directory.
func New(dataDir string) *Store {
	return &Store{
		path:    filepath.Join(dataDir, Filename),
		entries: make(map[string]common.Address),
	}
}

// Open creates a store and loads it.
func Open(dataDir string) (*Store, error) {
	s := New(dataDir)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the names from disk. A missing file is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.entries = make(map[string]common.Address)
			return nil
		}
		return fmt.Errorf("read names: %w", err)
	}

	entries := make(map[string]common.Address)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse names: %w", err)
	}
	s.entries = entries
	return nil
}

// Save writes the names to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	data, err := yaml.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("marshal names: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write names: %w", err)
	}
	return nil
}

// Add adds or updates an entry. A leading @ is ignored.
func (s *Store) Add(name, addr string) error {
	name = normalizeName(name)
	if name == "" || strings.ContainsAny(name, " .@") {
		return ErrInvalidName
	}
	a, err := namehash.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKey, addr)
	}

	s.mu.Lock()
	s.entries[name] = a
	s.mu.Unlock()
	return s.Save()
}

// Remove deletes an entry by name.
func (s *Store) Remove(name string) error {
	name = normalizeName(name)

	s.mu.Lock()
	if _, ok := s.entries[name]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.entries, name)
	s.mu.Unlock()

	return s.Save()
}

// Lookup returns the address for a name, or ErrNotFound.
func (s *Store) Lookup(name string) (common.Address, error) {
	name = normalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.entries[name]
	if !ok {
		return common.Address{}, ErrNotFound
	}
	return addr, nil
}

// List returns all entries sorted by name.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.entries))
	for name, addr := range s.entries {
		entries = append(entries, Entry{Name: name, Address: addr, Petname: Petname(addr)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Resolve turns "@name" or a hex address into an address. Bare words are
// looked up as names.
func (s *Store) Resolve(arg string) (common.Address, error) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "@") {
		if a, err := namehash.ParseAddress(arg); err == nil {
			return a, nil
		}
	}
	addr, err := s.Lookup(arg)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s", err, arg)
	}
	return addr, nil
}

func normalizeName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	return strings.ToLower(name)
}
