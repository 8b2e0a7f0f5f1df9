package auction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const bidsFile = "bids.yaml"

// savedBid is the secret half of a sealed bid. Losing it forfeits the
// deposit, so it is written before the bid is placed. Value and salt are
// only stored encrypted in Secret.
type savedBid struct {
	Name    string         `yaml:"name"`
	Label   common.Hash    `yaml:"label"`
	Bidder  common.Address `yaml:"bidder"`
	Sealed  common.Hash    `yaml:"sealed"`
	Deposit string         `yaml:"deposit"`
	Secret  string         `yaml:"secret"`
	Created time.Time      `yaml:"created"`
	Placed  bool           `yaml:"placed"`
}

// bidBook stores unrevealed bids under the data directory.
type bidBook struct {
	path string
	mu   sync.Mutex
	bids []savedBid
}

func openBidBook(dataDir string) (*bidBook, error) {
	b := &bidBook{path: filepath.Join(dataDir, bidsFile)}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &b.bids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.path, err)
	}
	return b, nil
}

func (b *bidBook) save() error {
	data, err := yaml.Marshal(b.bids)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return err
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *bidBook) add(bid savedBid) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = append(b.bids, bid)
	return b.save()
}

func (b *bidBook) markPlaced(sealed common.Hash) error {
	return b.update(func(bids []savedBid) []savedBid {
		for i := range bids {
			if bids[i].Sealed == sealed {
				bids[i].Placed = true
			}
		}
		return bids
	})
}

// forLabel returns bidder's placed bids on label.
func (b *bidBook) forLabel(label common.Hash, bidder common.Address) []savedBid {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []savedBid
	for _, bid := range b.bids {
		if bid.Label == label && bid.Bidder == bidder && bid.Placed {
			out = append(out, bid)
		}
	}
	return out
}

func (b *bidBook) remove(sealed common.Hash) error {
	return b.update(func(bids []savedBid) []savedBid {
		out := bids[:0]
		for _, bid := range bids {
			if bid.Sealed != sealed {
				out = append(out, bid)
			}
		}
		return out
	})
}

func (b *bidBook) list() []savedBid {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]savedBid(nil), b.bids...)
}

func (b *bidBook) update(fn func([]savedBid) []savedBid) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = fn(b.bids)
	return b.save()
}
