// Package observability wires logging, Prometheus metrics and OpenTelemetry
// tracing for a registrar node.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Options selects log output and the trace exporter.
type Options struct {
	LogLevel  string
	LogFormat string

	// OTLPEndpoint enables tracing when set. OTLPProtocol is "grpc" or
	// "http" (the default).
	OTLPEndpoint string
	OTLPProtocol string

	ServiceName    string
	ServiceVersion string

	// TraceSampleRatio in (0,1) samples that share of new traces; any
	// other value samples all of them.
	TraceSampleRatio float64
}

// Observability bundles the process-wide logger, metrics and tracer.
type Observability struct {
	Logger         *slog.Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
	Shutdown       *ShutdownCoordinator
}

// New sets up logging to w, a fresh metrics registry, and tracing when an
// OTLP endpoint is configured. The tracer provider becomes the otel global.
func New(ctx context.Context, opts Options, w io.Writer) (*Observability, error) {
	o := &Observability{
		Logger:  SetupLogger(opts.LogLevel, opts.LogFormat, w),
		Metrics: NewMetrics(),
	}
	o.Shutdown = &ShutdownCoordinator{Logger: o.Logger}

	if opts.OTLPEndpoint == "" {
		o.TracerProvider = tracenoop.NewTracerProvider()
		o.Logger.Debug("tracing disabled")
		return o, nil
	}

	tp, err := newTracerProvider(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	o.TracerProvider = tp
	o.Shutdown.Register("tracer", tp.Shutdown)
	o.Logger.Info("tracing enabled", "endpoint", opts.OTLPEndpoint, "protocol", opts.OTLPProtocol)
	return o, nil
}

func newTracerProvider(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch opts.OTLPProtocol {
	case "grpc":
		exp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(opts.OTLPEndpoint), otlptracegrpc.WithInsecure())
	case "", "http":
		exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(opts.OTLPEndpoint), otlptracehttp.WithInsecure())
	default:
		return nil, fmt.Errorf("unknown otlp protocol %q", opts.OTLPProtocol)
	}
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	))
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if r := opts.TraceSampleRatio; r > 0 && r < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

// Close runs the registered shutdown handlers.
func (o *Observability) Close(ctx context.Context) error {
	return o.Shutdown.Shutdown(ctx)
}

// ServeMetrics serves /metrics and /health on ln until ctx is done.
func (o *Observability) ServeMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(o.Metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "OK")
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	o.Logger.Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
