package envelope

import (
	"context"
	"time"

	"github.com/gezibash/arc-registrar/internal/middleware"
	"github.com/gezibash/arc-registrar/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

var marshalOpts = proto.MarshalOptions{Deterministic: true}

// ServerOptions configures the server interceptors.
type ServerOptions struct {
	// Signer, when set, signs responses into trailing metadata.
	Signer identity.Signer
	Chain  *middleware.Chain
	// MaxSkew bounds the distance between envelope and server time.
	MaxSkew time.Duration
	// Replay rejects envelopes seen before. When nil each interceptor
	// builds its own guard sized for MaxSkew.
	Replay *ReplayGuard
	Now    func() time.Time
}

func (o ServerOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o ServerOptions) chain() *middleware.Chain {
	if o.Chain != nil {
		return o.Chain
	}
	return &middleware.Chain{}
}

func (o ServerOptions) withReplay() ServerOptions {
	if o.Replay == nil {
		o.Replay = NewReplayGuard(o.MaxSkew, 0)
	}
	return o
}

// authenticate verifies the envelope in ctx, if any, and returns a context
// carrying the Caller. Calls without an envelope proceed anonymously.
func (o ServerOptions) authenticate(ctx context.Context, method string, payload []byte) (context.Context, error) {
	md, ok := grpcmd.FromIncomingContext(ctx)
	if !ok || !Present(md) {
		return ctx, nil
	}
	env, err := Extract(md)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "extract envelope: %v", err)
	}
	if err := CheckSkew(env.Timestamp, o.now(), o.MaxSkew); err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "verify envelope: %v", err)
	}
	if err := Open(env, method, payload); err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "verify envelope: %v", err)
	}
	if err := o.Replay.Admit(env, method, payload); err != nil {
		return nil, status.Errorf(codes.AlreadyExists, "verify envelope: %v", err)
	}
	return WithCaller(ctx, &Caller{
		Address:  env.From,
		SignedAt: time.UnixMilli(env.Timestamp).UTC(),
		Metadata: env.Metadata,
	}), nil
}

// UnaryServerInterceptor verifies incoming request envelopes, runs
// middleware hooks and signs response envelopes.
func UnaryServerInterceptor(opts ServerOptions) grpc.UnaryServerInterceptor {
	opts = opts.withReplay()
	chain := opts.chain()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		protoMsg, ok := req.(proto.Message)
		if !ok {
			return nil, status.Error(codes.Internal, "request is not a proto message")
		}
		payload, err := marshalOpts.Marshal(protoMsg)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "marshal request: %v", err)
		}

		ctx, err = opts.authenticate(ctx, info.FullMethod, payload)
		if err != nil {
			return nil, err
		}

		callInfo := newCallInfo(ctx, info.FullMethod, false)
		ctx, err = chain.Admit(ctx, callInfo)
		if err != nil {
			return nil, err
		}

		resp, handlerErr := handler(ctx, req)
		chain.Finish(ctx, callInfo, handlerErr)

		if opts.Signer != nil && resp != nil {
			if respMsg, ok := resp.(proto.Message); ok {
				if respPayload, marshalErr := marshalOpts.Marshal(respMsg); marshalErr == nil {
					if respEnv, sealErr := SealAt(opts.Signer, info.FullMethod, respPayload, nil, opts.now()); sealErr == nil {
						Inject(ctx, respEnv)
					}
				}
			}
		}

		return resp, handlerErr
	}
}

// StreamServerInterceptor verifies the envelope at stream open, signed
// over an empty payload, and sets the Caller in context.
func StreamServerInterceptor(opts ServerOptions) grpc.StreamServerInterceptor {
	opts = opts.withReplay()
	chain := opts.chain()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := opts.authenticate(ss.Context(), info.FullMethod, []byte{})
		if err != nil {
			return err
		}

		callInfo := newCallInfo(ctx, info.FullMethod, true)
		ctx, err = chain.Admit(ctx, callInfo)
		if err != nil {
			return err
		}

		err = handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		chain.Finish(ctx, callInfo, err)
		return err
	}
}

func newCallInfo(ctx context.Context, method string, stream bool) *middleware.CallInfo {
	info := &middleware.CallInfo{FullMethod: method, IsStream: stream}
	if c, ok := GetCaller(ctx); ok {
		info.Caller, info.Signed = c.Address, true
	}
	return info
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

// UnaryClientInterceptor seals every outgoing request with s.
func UnaryClientInterceptor(s identity.Signer, meta map[string]string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		protoMsg, ok := req.(proto.Message)
		if !ok {
			return status.Error(codes.Internal, "request is not a proto message")
		}
		payload, err := marshalOpts.Marshal(protoMsg)
		if err != nil {
			return status.Errorf(codes.Internal, "marshal request: %v", err)
		}
		env, err := Seal(s, method, payload, meta)
		if err != nil {
			return status.Errorf(codes.Internal, "seal request: %v", err)
		}
		return invoker(InjectOutgoing(ctx, env), method, req, reply, cc, callOpts...)
	}
}

// StreamClientInterceptor seals stream opens with s over an empty payload.
func StreamClientInterceptor(s identity.Signer, meta map[string]string) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		env, err := Seal(s, method, []byte{}, meta)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "seal stream: %v", err)
		}
		return streamer(InjectOutgoing(ctx, env), desc, cc, method, callOpts...)
	}
}
