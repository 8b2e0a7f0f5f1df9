package server

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	registrarv1 "github.com/gezibash/arc-registrar/api/registrar/v1"
	"github.com/gezibash/arc-registrar/internal/envelope"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/pkg/namehash"
	"github.com/gezibash/arc-registrar/pkg/units"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// args decodes request fields, keeping the first error.
type args struct {
	m   *structpb.Struct
	err error
}

func (a *args) fail(key, format string, v ...any) {
	if a.err == nil {
		a.err = status.Errorf(codes.InvalidArgument, "%s: "+format, append([]any{key}, v...)...)
	}
}

func (a *args) str(key string) string {
	v := registrarv1.String(a.m, key)
	if v == "" {
		a.fail(key, "required")
	}
	return v
}

func (a *args) optStr(key string) string { return registrarv1.String(a.m, key) }

func (a *args) boolean(key string) bool { return registrarv1.Bool(a.m, key) }

func (a *args) addr(key string) common.Address {
	v := a.str(key)
	if v == "" {
		return common.Address{}
	}
	addr, err := namehash.ParseAddress(v)
	if err != nil {
		a.fail(key, "%v", err)
	}
	return addr
}

func (a *args) optAddr(key string, def common.Address) common.Address {
	if registrarv1.String(a.m, key) == "" {
		return def
	}
	return a.addr(key)
}

func (a *args) hash(key string) common.Hash {
	v := a.str(key)
	if v == "" {
		return common.Hash{}
	}
	h, err := namehash.ParseHash(v)
	if err != nil {
		a.fail(key, "%v", err)
	}
	return h
}

func (a *args) optHash(key string) common.Hash {
	if registrarv1.String(a.m, key) == "" {
		return common.Hash{}
	}
	return a.hash(key)
}

func (a *args) amount(key string) *big.Int {
	v := a.str(key)
	if v == "" {
		return nil
	}
	n, err := units.Parse(v)
	if err != nil {
		a.fail(key, "%v", err)
	}
	return n
}

func (a *args) optAmount(key string) *big.Int {
	if registrarv1.String(a.m, key) == "" {
		return nil
	}
	return a.amount(key)
}

func (a *args) duration(key string) time.Duration {
	v := a.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		a.fail(key, "%v", err)
	}
	return d
}

func (a *args) count(key string, def int) int {
	if !registrarv1.Has(a.m, key) {
		return def
	}
	n := registrarv1.Number(a.m, key)
	if n < 0 || n != float64(int(n)) {
		a.fail(key, "must be a non-negative integer")
		return def
	}
	return int(n)
}

func sender(ctx context.Context) (common.Address, error) {
	c, ok := envelope.GetCaller(ctx)
	if !ok {
		return common.Address{}, status.Error(codes.Unauthenticated, "signed request required")
	}
	return c.Address, nil
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	m, err := registrarv1.Message(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return m, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func eventFields(e ledger.Event) map[string]any {
	attrs := make(map[string]any, len(e.Attrs))
	for _, a := range e.Attrs {
		attrs[a.Key] = a.Value
	}
	return map[string]any{
		"seq":      strconv.FormatUint(e.Seq, 10),
		"receipt":  e.Receipt,
		"contract": e.Contract,
		"kind":     e.Kind,
		"name":     e.Name,
		"time":     timeString(time.Unix(int64(e.Time), 0)),
		"attrs":    attrs,
	}
}

func receiptFields(r *ledger.Receipt) map[string]any {
	if r == nil {
		return nil
	}
	evs := make([]any, len(r.Events))
	for i, e := range r.Events {
		evs[i] = eventFields(e)
	}
	return map[string]any{
		"id":       r.ID,
		"op":       r.Op,
		"from":     r.From,
		"time":     timeString(r.Time),
		"duration": fmt.Sprint(r.Duration),
		"events":   evs,
	}
}

func receiptReply(r *ledger.Receipt, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"receipt": receiptFields(r)})
}

// seq accepts a decimal string or a number.
func (a *args) seq(key string) uint64 {
	if s := registrarv1.String(a.m, key); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			a.fail(key, "%v", err)
		}
		return n
	}
	return uint64(a.count(key, 0))
}
