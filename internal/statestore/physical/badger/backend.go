// Package badger stores ledger state in BadgerDB, on disk or in memory.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/storage"
	"github.com/gezibash/arc-registrar/pkg/logging"
)

// Configuration keys.
const (
	KeyPath             = "path"
	KeySyncWrites       = "sync_writes"
	KeyValueLogFileSize = "value_log_file_size"
	KeyMemTableSize     = "mem_table_size"
	KeyInMemory         = "in_memory"
	KeyGCInterval       = "gc_interval"
	KeyGCDiscardRatio   = "gc_discard_ratio"
)

func init() {
	physical.Register("badger", NewFactory, Defaults)
}

func Defaults() map[string]string {
	return map[string]string{
		KeyPath:             "~/.arc-registrar/state",
		KeySyncWrites:       "true",
		KeyValueLogFileSize: "256MiB",
		KeyMemTableSize:     "64MiB",
		KeyInMemory:         "false",
		KeyGCInterval:       "10m",
		KeyGCDiscardRatio:   "50",
	}
}

// NewFactory opens a backend from config. gc_interval of 0 disables the
// value log collector; gc_discard_ratio is a percentage.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	p := storage.Read("badger", config)
	inMemory := p.Bool(KeyInMemory, false)
	path := p.Path(KeyPath, "")
	syncWrites := p.Bool(KeySyncWrites, true)
	vlogSize := p.Bytes(KeyValueLogFileSize, 0)
	memSize := p.Bytes(KeyMemTableSize, 0)
	gcEvery := p.Duration(KeyGCInterval, 0)
	discard := p.Int(KeyGCDiscardRatio, 50)
	if !inMemory && path == "" {
		p.Fail(KeyPath, "cannot be empty", nil)
	}
	if discard < 1 || discard > 99 {
		p.Fail(KeyGCDiscardRatio, "must be between 1 and 99", nil)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to create directory", err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(syncWrites)
	}
	if vlogSize > 0 {
		opts.ValueLogFileSize = vlogSize
	}
	if memSize > 0 {
		opts.MemTableSize = memSize
	}

	b, err := open(opts.WithLogger(nil))
	if err != nil {
		return nil, err
	}
	if gcEvery > 0 && !inMemory {
		b.collect(gcEvery, float64(discard)/100)
	}
	logging.New(nil).Info("badger state opened", "path", path, "in_memory", inMemory, "sync_writes", syncWrites)
	return b, nil
}

// NewInMemory opens a throwaway backend.
func NewInMemory() (*Backend, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Backend, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to open database", err)
	}
	return &Backend{db: db, stop: make(chan struct{})}, nil
}

// Backend implements physical.Backend on a badger.DB.
type Backend struct {
	db     *badger.DB
	closed atomic.Bool
	stop   chan struct{}
	gc     sync.WaitGroup
}

func (b *Backend) View(_ context.Context, fn func(physical.Txn) error) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	return b.db.View(func(txn *badger.Txn) error {
		return fn(txnView{txn})
	})
}

func (b *Backend) Update(_ context.Context, fn func(physical.Txn) error) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return fn(txnRW{txnView{txn}})
	})
	if errors.Is(err, badger.ErrTxnTooBig) || errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("badger update: %w", err)
	}
	return err
}

func (b *Backend) Stats(_ context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	st := &physical.Stats{BackendType: "badger"}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.Keys++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger stats: %w", err)
	}
	lsm, vlog := b.db.Size()
	st.SizeBytes = lsm + vlog
	return st, nil
}

// RunGC rewrites value log files until badger finds nothing left to reclaim.
func (b *Backend) RunGC(discardRatio float64) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	for {
		err := b.db.RunValueLogGC(discardRatio)
		switch {
		case err == nil:
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

func (b *Backend) collect(every time.Duration, ratio float64) {
	b.gc.Add(1)
	go func() {
		defer b.gc.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-t.C:
				if err := b.RunGC(ratio); err != nil && !errors.Is(err, physical.ErrClosed) {
					logging.New(nil).Warn("badger gc", "error", err)
				}
			}
		}
	}()
}

func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	close(b.stop)
	b.gc.Wait()
	return b.db.Close()
}

type txnView struct{ txn *badger.Txn }

func (t txnView) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, physical.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return item.ValueCopy(nil)
}

func (txnView) Set(_, _ []byte) error { return physical.ErrReadOnly }
func (txnView) Delete(_ []byte) error { return physical.ErrReadOnly }

func (t txnView) Scan(prefix []byte, fn func(key, value []byte) error) error {
	it := t.txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: prefix})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("badger scan: %w", err)
		}
		if err := fn(item.KeyCopy(nil), v); err != nil {
			return err
		}
	}
	return nil
}

// txnRW copies keys and values because badger holds on to the slices
// until commit.
type txnRW struct{ txnView }

func (t txnRW) Set(key, value []byte) error {
	return t.txn.Set(append([]byte(nil), key...), append([]byte(nil), value...))
}

func (t txnRW) Delete(key []byte) error {
	return t.txn.Delete(append([]byte(nil), key...))
}
