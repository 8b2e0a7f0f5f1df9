package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

// --- Shutdown Coordinator ---

func TestShutdownCoordinatorLIFO(t *testing.T) {
	var order []int
	sc := &ShutdownCoordinator{}

	for i := 1; i <= 3; i++ {
		sc.Register(fmt.Sprintf("h%d", i), func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := sc.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("expected LIFO [3,2,1], got %v", order)
	}
}

func TestShutdownCoordinatorError(t *testing.T) {
	sc := &ShutdownCoordinator{}
	ran := 0
	sc.Register("first", func(ctx context.Context) error { ran++; return nil })
	sc.Register("bad", func(ctx context.Context) error { ran++; return errors.New("fail") })

	err := sc.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("error should mention 'bad': %v", err)
	}
	if ran != 2 {
		t.Fatalf("all handlers should run, ran %d", ran)
	}
}

func TestShutdownCoordinatorOnce(t *testing.T) {
	sc := &ShutdownCoordinator{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	closes := 0
	boom := errors.New("badger: close")
	sc.Register("state", func(context.Context) error { closes++; return boom })

	first := sc.Shutdown(context.Background())
	second := sc.Shutdown(context.Background())
	if closes != 1 {
		t.Fatalf("handler ran %d times", closes)
	}
	if !errors.Is(first, boom) || !errors.Is(second, boom) {
		t.Fatalf("results = %v, %v", first, second)
	}

	late := false
	sc.Register("late", func(context.Context) error { late = true; return nil })
	if !late {
		t.Fatal("handler registered after shutdown did not run")
	}
}

// --- Metrics ---

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	m.OperationTotal.WithLabelValues("auction.newBid", "ok").Inc()
	m.StateKeys.WithLabelValues("badger").Set(12)

	if got := testutil.ToFloat64(m.OperationTotal.WithLabelValues("auction.newBid", "ok")); got != 1 {
		t.Fatalf("expected count 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.StateKeys.WithLabelValues("badger")); got != 12 {
		t.Fatalf("expected gauge 12, got %f", got)
	}
}

// --- Logging ---

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("info", "json", &buf)

	logger.Info("hello", "key", "val")

	var entry map[string]any
	if err := json.NewDecoder(&buf).Decode(&entry); err != nil {
		t.Fatalf("output not valid JSON: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["key"] != "val" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestSetupLoggerTextNoColorOffTTY(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("debug", "text", &buf)
	logger.Debug("dbg line", "n", 1)

	out := buf.String()
	if !strings.Contains(out, "DBG dbg line n=1") {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("color codes written to a non-terminal: %q", out)
	}
}

func TestConsoleHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(h).With("component", "ledger").WithGroup("tx")
	logger.Info("committed", "events", 2)

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "tx.events=2") {
		t.Fatalf("unexpected output %q", out)
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at info level")
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewConsoleHandler(&buf, nil)).Warn("slow", "reason", "disk full", "empty", "")
	out := buf.String()
	if !strings.Contains(out, `WRN slow reason="disk full" empty=""`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLevelLabel(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelError, "ERR"},
		{slog.LevelWarn + 1, "WRN"},
		{slog.LevelInfo, "INF"},
		{slog.LevelDebug, "DBG"},
	}
	for _, tt := range tests {
		if got := levelLabel(tt.level, false); got != tt.want {
			t.Errorf("levelLabel(%v) = %q, want %q", tt.level, got, tt.want)
		}
		if got := levelLabel(tt.level, true); !strings.HasPrefix(got, "\033[") || !strings.Contains(got, tt.want) {
			t.Errorf("colored levelLabel(%v) = %q", tt.level, got)
		}
	}
}

// --- Operation ---

func TestStartOperationEnd(t *testing.T) {
	m := NewMetrics()
	op, _ := StartOperation(context.Background(), m, "test_op")
	op.End(nil)

	if got := testutil.ToFloat64(m.OperationTotal.WithLabelValues("test_op", "ok")); got != 1 {
		t.Fatalf("expected 1 ok operation, got %f", got)
	}
}

func TestStartOperationEndErrorKind(t *testing.T) {
	m := NewMetrics()
	op, _ := StartOperation(context.Background(), m, "fail_op")
	op.End(arcerrors.Reverted("deed", "close", arcerrors.ErrUnauthorized, "not registrar"))

	if got := testutil.ToFloat64(m.OperationTotal.WithLabelValues("fail_op", "error")); got != 1 {
		t.Fatalf("expected 1 error operation, got %f", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("fail_op", "unauthorized")); got != 1 {
		t.Fatalf("expected 1 unauthorized error, got %f", got)
	}
}

func TestOperationSpanAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	from := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	op, _ := StartOperation(context.Background(), nil, "auction.finalize", Address(KeyFrom, from))
	op.Annotate(KeyReceipt.String("r-1"))
	op.End(arcerrors.Reverted("auction", "finalize", arcerrors.ErrInvalidState, "not owned"))

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "auction.finalize" {
		t.Fatalf("spans = %v", spans)
	}
	got := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		string(KeyFrom):      from.Hex(),
		string(KeyReceipt):   "r-1",
		string(KeyErrorKind): "invalid_state",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestStartOperationNilMetrics(t *testing.T) {
	op, _ := StartOperation(context.Background(), nil, "no_metrics")
	op.End(errors.New("ignored"))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{arcerrors.ErrInvalidState, "invalid_state"},
		{fmt.Errorf("wrap: %w", arcerrors.ErrIntegrity), "integrity"},
		{arcerrors.ErrInsufficientFunds, "insufficient_funds"},
		{context.Canceled, "canceled"},
		{errors.New("disk"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// --- Observability ---

func TestNewObservabilityNoOTLP(t *testing.T) {
	obs, err := New(context.Background(), Options{
		LogLevel:       "info",
		LogFormat:      "json",
		ServiceName:    "test",
		ServiceVersion: "0.0.1",
	}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	switch obs.TracerProvider.(type) {
	case *tracenoop.TracerProvider, tracenoop.TracerProvider:
	default:
		t.Fatalf("expected noop tracer provider, got %T", obs.TracerProvider)
	}
	if err := obs.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestServeMetricsEndpoints(t *testing.T) {
	obs, err := New(context.Background(), Options{LogLevel: "error", LogFormat: "json"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- obs.ServeMetrics(ctx, ln) }()

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("health = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ServeMetrics returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeMetrics did not stop")
	}
}

// --- gRPC Interceptors ---

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }
func (m *mockServerStream) SendMsg(msg any) error    { return nil }

func TestUnaryServerInterceptor(t *testing.T) {
	m := NewMetrics()
	interceptor := UnaryServerInterceptor(m)
	info := &grpc.UnaryServerInfo{FullMethod: "/arc.registrar.v1.Registrar/Submit"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, grpcstatus.Error(grpccodes.PermissionDenied, "nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.OperationTotal.WithLabelValues(info.FullMethod, "PermissionDenied")); got != 1 {
		t.Fatalf("expected 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(info.FullMethod, "PermissionDenied")); got != 1 {
		t.Fatalf("errors = %f, want 1", got)
	}
}

func TestUnaryServerInterceptorJoinsRemoteTrace(t *testing.T) {
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	md := metadata.Pairs("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/arc.registrar.v1.Registrar/Status"}

	_, err := UnaryServerInterceptor(nil)(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != traceID {
		t.Fatalf("trace id = %s, want %s", got, traceID)
	}
}

func TestStreamServerInterceptorCountsMessages(t *testing.T) {
	m := NewMetrics()
	interceptor := StreamServerInterceptor(m)
	info := &grpc.StreamServerInfo{FullMethod: "/arc.registrar.v1.Registrar/Watch"}

	var sent int64
	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, stream grpc.ServerStream) error {
		for range 3 {
			if err := stream.SendMsg(nil); err != nil {
				return err
			}
		}
		sent = stream.(*countingStream).sent.Load()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 3 {
		t.Fatalf("sent = %d, want 3", sent)
	}
	if got := testutil.ToFloat64(m.OperationTotal.WithLabelValues(info.FullMethod, "ok")); got != 1 {
		t.Fatalf("expected 1, got %f", got)
	}
}
