// Package physical provides the physical storage backend interface for ledger state.
package physical

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested key was not found.
	ErrNotFound = errors.New("key not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")

	// ErrReadOnly indicates a write was attempted inside View.
	ErrReadOnly = errors.New("read-only transaction")
)

// Txn is a key/value transaction. Writes are visible to later reads in the
// same transaction and become durable only when the enclosing Update returns nil.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Scan visits every key with the given prefix in ascending byte order.
	// Returning an error from fn stops the scan and is returned as-is.
	// fn must not use the transaction; collect keys and act after Scan returns.
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// Stats contains storage statistics.
type Stats struct {
	Keys        int64
	SizeBytes   int64
	BackendType string
}

// Backend is the physical storage interface for ledger state.
// All implementations must be thread-safe. Update is all-or-nothing: when fn
// returns an error nothing it wrote is persisted.
type Backend interface {
	View(ctx context.Context, fn func(Txn) error) error
	Update(ctx context.Context, fn func(Txn) error) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// PrefixEnd returns the smallest key greater than every key with prefix,
// or nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
