// Package snapshot exports and imports the whole state store as a single
// length-prefixed stream, and ships those streams to pluggable targets.
//
// Stream layout:
//
//	magic "ARCSNAP\x01"
//	uvarint(len) yaml Header
//	repeated: uvarint(len) key, uvarint(len) value
//	uvarint(0)
//	uvarint(count) keccak256(entries)
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"gopkg.in/yaml.v3"
)

const (
	// Version is the stream format version.
	Version = 1

	maxHeaderLen = 1 << 16
	maxEntryLen  = 64 << 20
)

var magic = []byte("ARCSNAP\x01")

var (
	// ErrCorrupt is returned for malformed or tampered streams.
	ErrCorrupt = errors.New("corrupt snapshot")
	// ErrNotEmpty is returned when importing into a populated backend
	// without Replace.
	ErrNotEmpty = errors.New("target state is not empty")
)

// Header describes a snapshot.
type Header struct {
	Version   int       `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	Backend   string    `yaml:"backend"`
	Note      string    `yaml:"note,omitempty"`
}

// Summary is the result of an export or import.
type Summary struct {
	Header Header
	Keys   int64
	Bytes  int64
	Digest [32]byte
}

// Export writes every key of b to w from one consistent read transaction.
func Export(ctx context.Context, b physical.Backend, w io.Writer, h Header) (Summary, error) {
	if h.Version == 0 {
		h.Version = Version
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	if h.Backend == "" {
		if st, err := b.Stats(ctx); err == nil {
			h.Backend = st.BackendType
		}
	}

	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}
	if _, err := cw.Write(magic); err != nil {
		return Summary{}, err
	}
	hdr, err := yaml.Marshal(h)
	if err != nil {
		return Summary{}, fmt.Errorf("marshal header: %w", err)
	}
	if err := writeChunk(cw, hdr); err != nil {
		return Summary{}, err
	}

	sum := Summary{Header: h}
	digest := crypto.NewKeccakState()
	entries := io.MultiWriter(cw, digest)
	err = b.View(ctx, func(txn physical.Txn) error {
		return txn.Scan(nil, func(key, value []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(key) == 0 {
				return fmt.Errorf("empty key collides with the end marker")
			}
			if err := writeChunk(entries, key); err != nil {
				return err
			}
			if err := writeChunk(entries, value); err != nil {
				return err
			}
			sum.Keys++
			return nil
		})
	})
	if err != nil {
		return Summary{}, fmt.Errorf("export state: %w", err)
	}

	if err := writeUvarint(cw, 0); err != nil {
		return Summary{}, err
	}
	if err := writeUvarint(cw, uint64(sum.Keys)); err != nil {
		return Summary{}, err
	}
	copy(sum.Digest[:], digest.Sum(nil))
	if _, err := cw.Write(sum.Digest[:]); err != nil {
		return Summary{}, err
	}
	if err := bw.Flush(); err != nil {
		return Summary{}, err
	}
	sum.Bytes = cw.n
	return sum, nil
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Replace deletes existing state first. Without it the backend must be
	// empty.
	Replace bool
}

// Import reads a stream produced by Export into b inside a single update.
// Nothing is written unless the whole stream verifies.
func Import(ctx context.Context, b physical.Backend, r io.Reader, opts ImportOptions) (Summary, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Header: h}

	err = b.Update(ctx, func(txn physical.Txn) error {
		var existing [][]byte
		if err := txn.Scan(nil, func(key, _ []byte) error {
			existing = append(existing, bytes.Clone(key))
			return nil
		}); err != nil {
			return err
		}
		if len(existing) > 0 && !opts.Replace {
			return fmt.Errorf("%w: %d keys", ErrNotEmpty, len(existing))
		}
		for _, k := range existing {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		digest := crypto.NewKeccakState()
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			key, err := readChunk(br, digest, true)
			if err != nil {
				return err
			}
			if key == nil {
				break
			}
			value, err := readChunk(br, digest, false)
			if err != nil {
				return err
			}
			if err := txn.Set(key, value); err != nil {
				return err
			}
			sum.Keys++
		}

		count, err := binary.ReadUvarint(br)
		if err != nil {
			return fmt.Errorf("%w: trailer: %v", ErrCorrupt, err)
		}
		if int64(count) != sum.Keys {
			return fmt.Errorf("%w: trailer counts %d keys, read %d", ErrCorrupt, count, sum.Keys)
		}
		var want [32]byte
		if _, err := io.ReadFull(br, want[:]); err != nil {
			return fmt.Errorf("%w: digest: %v", ErrCorrupt, err)
		}
		copy(sum.Digest[:], digest.Sum(nil))
		if sum.Digest != want {
			return fmt.Errorf("%w: digest mismatch", ErrCorrupt)
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("import state: %w", err)
	}
	return sum, nil
}

// ReadHeader consumes the magic and header of a stream.
func ReadHeader(r *bufio.Reader) (Header, error) {
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(r, got); err != nil || !bytes.Equal(got, magic) {
		return Header{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	n, err := binary.ReadUvarint(r)
	if err != nil || n == 0 || n > maxHeaderLen {
		return Header{}, fmt.Errorf("%w: header length", ErrCorrupt)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	var h Header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return Header{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	return h, nil
}

// readChunk reads one length-prefixed chunk and feeds the prefix and bytes
// to digest. When end is set a zero length is the unhashed end marker and
// readChunk returns nil.
func readChunk(r *bufio.Reader, digest hash.Hash, end bool) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: length: %v", ErrCorrupt, err)
	}
	if n == 0 && end {
		return nil, nil
	}
	if n > maxEntryLen {
		return nil, fmt.Errorf("%w: entry of %d bytes", ErrCorrupt, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: entry: %v", ErrCorrupt, err)
	}
	_ = writeUvarint(digest, n)
	digest.Write(buf)
	return buf, nil
}

func writeChunk(w io.Writer, b []byte) error {
	if err := writeUvarint(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
