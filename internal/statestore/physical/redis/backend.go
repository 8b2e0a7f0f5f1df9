// Package redis provides a Redis-backed state storage backend.
//
// Keys are hex-encoded under a configurable prefix so prefix scans map onto
// SCAN MATCH patterns. Writes made inside Update are buffered and flushed in
// one MULTI/EXEC pipeline; the ledger serializes writers, so no WATCH is used.
package redis

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/storage"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyPoolSize     = "pool_size"
	KeyKeyPrefix    = "key_prefix"

	scanBatchSize = 500
)

func init() {
	physical.Register("redis", NewFactory, Defaults)
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "2",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyPoolSize:     "0",
		KeyKeyPrefix:    "arc-registrar:state:",
	}
}

// NewFactory creates a new Redis backend from a configuration map.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	p := storage.Read("redis", config)
	addr := p.Required(KeyAddr)
	dialTimeout := p.Duration(KeyDialTimeout, 5*time.Second)
	opts := &redis.Options{
		Addr:         addr,
		Password:     p.String(KeyPassword, ""),
		DB:           p.Int(KeyDB, 2),
		MaxRetries:   p.Int(KeyMaxRetries, 3),
		DialTimeout:  dialTimeout,
		ReadTimeout:  p.Duration(KeyReadTimeout, 3*time.Second),
		WriteTimeout: p.Duration(KeyWriteTimeout, 3*time.Second),
		PoolSize:     p.Int(KeyPoolSize, 0),
	}
	keyPrefix := p.String(KeyKeyPrefix, "arc-registrar:state:")
	if err := p.Err(); err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.NewConfigErrorWithCause("redis", KeyAddr, "failed to connect", err)
	}

	slog.Info("redis statestore initialized", "addr", addr, "db", opts.DB, "key_prefix", keyPrefix)

	return NewWithClient(client, keyPrefix), nil
}

// Backend is a Redis implementation of physical.Backend.
type Backend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewWithClient creates a new backend with an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = "arc-registrar:state:"
	}
	return &Backend{client: client, prefix: prefix}
}

// View runs fn against live Redis reads.
func (b *Backend) View(ctx context.Context, fn func(physical.Txn) error) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	return fn(&txnAdapter{ctx: ctx, b: b, readOnly: true})
}

// Update buffers the writes of fn and flushes them in one MULTI/EXEC block.
func (b *Backend) Update(ctx context.Context, fn func(physical.Txn) error) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	txn := &txnAdapter{ctx: ctx, b: b, writes: make(map[string][]byte)}
	if err := fn(txn); err != nil {
		return err
	}
	if len(txn.writes) == 0 {
		return nil
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range txn.writes {
			if v == nil {
				pipe.Del(ctx, b.prefix+k)
			} else {
				pipe.Set(ctx, b.prefix+k, v, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis update: %w", err)
	}
	return nil
}

// Stats counts the keys under the configured prefix.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	keys, err := b.scanKeys(ctx, "")
	if err != nil {
		return nil, err
	}
	var size int64
	for _, k := range keys {
		n, err := b.client.StrLen(ctx, b.prefix+k).Result()
		if err != nil {
			return nil, fmt.Errorf("redis stats: %w", err)
		}
		size += n + int64(len(k))/2
	}
	return &physical.Stats{
		Keys:        int64(len(keys)),
		SizeBytes:   size,
		BackendType: "redis",
	}, nil
}

// Close closes the Redis client.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}

// scanKeys returns the hex keys (without the backend prefix) that start with hexPrefix, sorted.
func (b *Backend) scanKeys(ctx context.Context, hexPrefix string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	match := b.prefix + hexPrefix + "*"
	for {
		batch, next, err := b.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range batch {
			out = append(out, strings.TrimPrefix(k, b.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

type txnAdapter struct {
	ctx      context.Context
	b        *Backend
	readOnly bool
	// writes maps hex key to value; a nil value marks a delete.
	writes map[string][]byte
}

func (t *txnAdapter) Get(key []byte) ([]byte, error) {
	hk := hex.EncodeToString(key)
	if v, ok := t.writes[hk]; ok {
		if v == nil {
			return nil, physical.ErrNotFound
		}
		return bytes.Clone(v), nil
	}
	v, err := t.b.client.Get(t.ctx, t.b.prefix+hk).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (t *txnAdapter) Set(key, value []byte) error {
	if t.readOnly {
		return physical.ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	t.writes[hex.EncodeToString(key)] = bytes.Clone(value)
	return nil
}

func (t *txnAdapter) Delete(key []byte) error {
	if t.readOnly {
		return physical.ErrReadOnly
	}
	t.writes[hex.EncodeToString(key)] = nil
	return nil
}

func (t *txnAdapter) Scan(prefix []byte, fn func(key, value []byte) error) error {
	hp := hex.EncodeToString(prefix)
	keys, err := t.b.scanKeys(t.ctx, hp)
	if err != nil {
		return err
	}
	for hk := range t.writes {
		if strings.HasPrefix(hk, hp) {
			keys = append(keys, hk)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	for _, hk := range keys {
		key, err := hex.DecodeString(hk)
		if err != nil {
			continue
		}
		value, err := t.Get(key)
		if errors.Is(err, physical.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}
