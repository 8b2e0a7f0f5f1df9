// Package client is a typed gRPC client for a registrar node.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	registrarv1 "github.com/gezibash/arc-registrar/api/registrar/v1"
	"github.com/gezibash/arc-registrar/internal/envelope"
	"github.com/gezibash/arc-registrar/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var marshalOpts = proto.MarshalOptions{Deterministic: true}

type Client struct {
	conn   *grpc.ClientConn
	signer identity.Signer
	node   *nodeState
}

type clientConfig struct {
	signer   identity.Signer
	nodeAddr *common.Address
	meta     map[string]string
	dialOpts []grpc.DialOption
}

// nodeState tracks the node address seen in signed responses.
type nodeState struct {
	mu   sync.RWMutex
	addr common.Address
	ok   bool
}

func (s *nodeState) set(addr common.Address) {
	s.mu.Lock()
	s.addr, s.ok = addr, true
	s.mu.Unlock()
}

func (s *nodeState) get() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr, s.ok
}

// Option configures client behavior.
type Option func(*clientConfig)

// WithSigner signs outgoing requests with s. Without a signer only public
// methods succeed.
func WithSigner(s identity.Signer) Option {
	return func(c *clientConfig) { c.signer = s }
}

// WithNodeAddress rejects responses not signed by addr.
func WithNodeAddress(addr common.Address) Option {
	return func(c *clientConfig) { c.nodeAddr = &addr }
}

// WithMetadata attaches signed metadata to every request envelope.
func WithMetadata(meta map[string]string) Option {
	return func(c *clientConfig) { c.meta = meta }
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *clientConfig) { c.dialOpts = append(c.dialOpts, opts...) }
}

func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	state := &nodeState{}
	unary := []grpc.UnaryClientInterceptor{verifyResponses(state, cfg.nodeAddr)}
	var stream []grpc.StreamClientInterceptor
	if cfg.signer != nil {
		unary = append(unary, envelope.UnaryClientInterceptor(cfg.signer, cfg.meta))
		stream = append(stream, envelope.StreamClientInterceptor(cfg.signer, cfg.meta))
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(unary...),
		grpc.WithChainStreamInterceptor(stream...),
	}
	dialOpts = append(dialOpts, cfg.dialOpts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, signer: cfg.signer, node: state}, nil
}

// verifyResponses checks the trailing response envelope when one is
// present. With expect set, an unsigned response is an error.
func verifyResponses(state *nodeState, expect *common.Address) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		var trailer grpcmd.MD
		callOpts = append(callOpts, grpc.Trailer(&trailer))
		if err := invoker(ctx, method, req, reply, cc, callOpts...); err != nil {
			return err
		}

		if !envelope.Present(trailer) {
			if expect != nil {
				return fmt.Errorf("verify response: unsigned response from %s", method)
			}
			return nil
		}
		env, err := envelope.Extract(trailer)
		if err != nil {
			return fmt.Errorf("verify response: %w", err)
		}
		msg, ok := reply.(proto.Message)
		if !ok {
			return nil
		}
		payload, err := marshalOpts.Marshal(msg)
		if err != nil {
			return fmt.Errorf("verify response: %w", err)
		}
		if err := envelope.Open(env, method, payload); err != nil {
			return fmt.Errorf("verify response: %w", err)
		}
		if expect != nil && env.From != *expect {
			return fmt.Errorf("verify response: signed by %s, want %s", env.From.Hex(), expect.Hex())
		}
		state.set(env.From)
		return nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Conn exposes the underlying connection, e.g. for health checks.
func (c *Client) Conn() *grpc.ClientConn { return c.conn }

// Address returns the signer's address, or the zero address when the
// client is anonymous.
func (c *Client) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// NodeAddress returns the address that signed the last verified response.
func (c *Client) NodeAddress() (common.Address, bool) {
	return c.node.get()
}

// Call invokes a unary method by name with raw fields.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := registrarv1.Message(fields)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, registrarv1.FullMethod(method), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
