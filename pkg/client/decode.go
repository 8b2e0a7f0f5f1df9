package client

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	registrarv1 "github.com/gezibash/arc-registrar/api/registrar/v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// reader decodes response fields, keeping the first error.
type reader struct {
	m   *structpb.Struct
	err error
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("decode %s: %w", key, err)
	}
}

func (r *reader) str(key string) string { return registrarv1.String(r.m, key) }

func (r *reader) boolean(key string) bool { return registrarv1.Bool(r.m, key) }

func (r *reader) addr(key string) common.Address {
	return common.HexToAddress(r.str(key))
}

func (r *reader) hash(key string) common.Hash {
	return common.HexToHash(r.str(key))
}

func (r *reader) amount(key string) *big.Int {
	s := r.str(key)
	if s == "" {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		r.fail(key, fmt.Errorf("invalid integer %q", s))
		return new(big.Int)
	}
	return v
}

func (r *reader) time(key string) time.Time {
	s := r.str(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		r.fail(key, err)
	}
	return t
}

func (r *reader) duration(key string) time.Duration {
	s := r.str(key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		r.fail(key, err)
	}
	return d
}

func (r *reader) uint(key string) uint64 {
	s := r.str(key)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		r.fail(key, err)
	}
	return n
}

func (r *reader) int(key string) int64 {
	s := r.str(key)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		r.fail(key, err)
	}
	return n
}

func (r *reader) nested(key string) *reader {
	return &reader{m: registrarv1.Struct(r.m, key)}
}

func (r *reader) event() Event {
	attrs := make(map[string]string)
	for k, v := range registrarv1.Struct(r.m, "attrs").GetFields() {
		attrs[k] = v.GetStringValue()
	}
	return Event{
		Seq:      r.uint("seq"),
		Receipt:  r.str("receipt"),
		Contract: r.addr("contract"),
		Kind:     r.str("kind"),
		Name:     r.str("name"),
		Time:     r.time("time"),
		Attrs:    attrs,
	}
}

func (r *reader) receipt(key string) *Receipt {
	n := r.nested(key)
	if n.m == nil {
		return nil
	}
	rc := &Receipt{
		ID:       n.str("id"),
		Op:       n.str("op"),
		From:     n.addr("from"),
		Time:     n.time("time"),
		Duration: n.duration("duration"),
	}
	for _, e := range registrarv1.List(n.m, "events") {
		er := &reader{m: e}
		rc.Events = append(rc.Events, er.event())
		if er.err != nil && n.err == nil {
			n.err = er.err
		}
	}
	if n.err != nil && r.err == nil {
		r.err = n.err
	}
	return rc
}

func formatUint(n uint64) string { return strconv.FormatUint(n, 10) }
