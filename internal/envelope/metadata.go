package envelope

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	grpcmd "google.golang.org/grpc/metadata"
)

const (
	keyFrom         = "arc-from"
	keyTimestamp    = "arc-timestamp"
	keyNonceBin     = "arc-nonce-bin"
	keySignatureBin = "arc-signature-bin"
	keyMetaPrefix   = "arc-meta-"
)

// Present reports whether md carries an envelope.
func Present(md grpcmd.MD) bool {
	return len(md.Get(keySignatureBin)) > 0
}

// Extract pulls envelope fields from gRPC metadata. Method is left empty;
// the caller supplies it from the call info.
func Extract(md grpcmd.MD) (*Envelope, error) {
	fromStr := firstVal(md, keyFrom)
	if fromStr == "" {
		return nil, fmt.Errorf("missing %s", keyFrom)
	}
	if !common.IsHexAddress(fromStr) {
		return nil, fmt.Errorf("%s: not an address", keyFrom)
	}

	tsStr := firstVal(md, keyTimestamp)
	if tsStr == "" {
		return nil, fmt.Errorf("missing %s", keyTimestamp)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", keyTimestamp, err)
	}

	sig := firstVal(md, keySignatureBin)
	if sig == "" {
		return nil, fmt.Errorf("missing %s", keySignatureBin)
	}

	nonce := firstVal(md, keyNonceBin)
	if nonce == "" {
		return nil, fmt.Errorf("missing %s", keyNonceBin)
	}

	meta := make(map[string]string)
	for k, vals := range md {
		if strings.HasPrefix(k, keyMetaPrefix) && len(vals) > 0 {
			meta[strings.TrimPrefix(k, keyMetaPrefix)] = vals[0]
		}
	}

	return &Envelope{
		From:      common.HexToAddress(fromStr),
		Timestamp: ts,
		Nonce:     []byte(nonce),
		Signature: []byte(sig),
		Metadata:  meta,
	}, nil
}

func pairs(env *Envelope) grpcmd.MD {
	md := grpcmd.Pairs(
		keyFrom, env.From.Hex(),
		keyTimestamp, strconv.FormatInt(env.Timestamp, 10),
		keyNonceBin, string(env.Nonce),
		keySignatureBin, string(env.Signature),
	)
	for k, v := range env.Metadata {
		md.Append(keyMetaPrefix+k, v)
	}
	return md
}

// Inject sets envelope fields as gRPC trailing metadata on the response.
func Inject(ctx context.Context, env *Envelope) {
	_ = grpc.SetTrailer(ctx, pairs(env))
}

// InjectOutgoing sets envelope fields as outgoing gRPC metadata.
func InjectOutgoing(ctx context.Context, env *Envelope) context.Context {
	md := pairs(env)
	if prev, ok := grpcmd.FromOutgoingContext(ctx); ok {
		md = grpcmd.Join(prev, md)
	}
	return grpcmd.NewOutgoingContext(ctx, md)
}

func firstVal(md grpcmd.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
