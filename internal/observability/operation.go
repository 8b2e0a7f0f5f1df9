package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
)

// Operation tracks a high-level operation with span, metrics, and logging.
type Operation struct {
	ctx     context.Context
	span    trace.Span
	metrics *Metrics
	name    string
	start   time.Time
	logger  *slog.Logger
}

// StartOperation begins tracking an operation with a span, logger context, and timing.
// A nil Metrics disables metric recording.
func StartOperation(ctx context.Context, m *Metrics, name string, attrs ...attribute.KeyValue) (*Operation, context.Context) {
	ctx, span := tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	logger := slog.Default().With("operation", name)
	logger.DebugContext(ctx, "operation started")

	return &Operation{
		ctx:     ctx,
		span:    span,
		metrics: m,
		name:    name,
		start:   time.Now(),
		logger:  logger,
	}, ctx
}

// Annotate adds attributes learned after the operation started.
func (o *Operation) Annotate(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// End finishes the operation, recording duration and status.
func (o *Operation) End(err error) {
	duration := time.Since(o.start).Seconds()
	status := "ok"
	if err != nil {
		status = "error"
		o.logger.WarnContext(o.ctx, "operation failed", "error", err, "duration", duration)
	} else {
		o.logger.InfoContext(o.ctx, "operation completed", "duration", duration)
	}

	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
		o.span.SetAttributes(KeyErrorKind.String(ErrorKind(err)))
	}
	o.span.End()
	if o.metrics == nil {
		return
	}
	o.metrics.OperationDuration.WithLabelValues(o.name, status).Observe(duration)
	o.metrics.OperationTotal.WithLabelValues(o.name, status).Inc()
	if err != nil {
		o.metrics.ErrorsTotal.WithLabelValues(o.name, ErrorKind(err)).Inc()
	}
}

// ErrorKind classifies err into a low-cardinality label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, arcerrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, arcerrors.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, arcerrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, arcerrors.ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, arcerrors.ErrIntegrity):
		return "integrity"
	case errors.Is(err, arcerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, arcerrors.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
