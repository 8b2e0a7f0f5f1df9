package observability

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor traces each unary call and records it under the
// full method name.
func UnaryServerInterceptor(m *Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		call, ctx := startCall(ctx, m, info.FullMethod)
		resp, err := handler(ctx, req)
		call.end(err)
		return resp, err
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor. Message counts land on the span.
func StreamServerInterceptor(m *Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		call, ctx := startCall(ss.Context(), m, info.FullMethod)
		cs := &countingStream{ServerStream: ss, ctx: ctx}
		err := handler(srv, cs)
		call.span.SetAttributes(
			attribute.Int64("rpc.messages_sent", cs.sent.Load()),
			attribute.Int64("rpc.messages_received", cs.recv.Load()),
		)
		call.end(err)
		return err
	}
}

type rpcCall struct {
	metrics *Metrics
	method  string
	span    trace.Span
	start   time.Time
}

func startCall(ctx context.Context, m *Metrics, method string) (*rpcCall, context.Context) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = otel.GetTextMapPropagator().Extract(ctx, mdCarrier(md))
	}
	ctx, span := tracer().Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(KeyMethod.String(method)))
	return &rpcCall{metrics: m, method: method, span: span, start: time.Now()}, ctx
}

func (c *rpcCall) end(err error) {
	defer c.span.End()

	code := status.Code(err)
	c.span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(otelcodes.Error, status.Convert(err).Message())
	}
	if c.metrics == nil {
		return
	}
	label := "ok"
	if code != codes.OK {
		label = code.String()
		c.metrics.ErrorsTotal.WithLabelValues(c.method, label).Inc()
	}
	c.metrics.OperationDuration.WithLabelValues(c.method, label).Observe(time.Since(c.start).Seconds())
	c.metrics.OperationTotal.WithLabelValues(c.method, label).Inc()
}

// mdCarrier adapts incoming gRPC metadata, whose keys are lower case, to
// the propagation.TextMapCarrier interface.
type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c mdCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c mdCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

type countingStream struct {
	grpc.ServerStream
	ctx        context.Context
	sent, recv atomic.Int64
}

func (s *countingStream) Context() context.Context { return s.ctx }

func (s *countingStream) SendMsg(m any) error {
	if err := s.ServerStream.SendMsg(m); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

func (s *countingStream) RecvMsg(m any) error {
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	s.recv.Add(1)
	return nil
}
