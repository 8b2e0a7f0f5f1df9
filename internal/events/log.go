package events

import (
	"context"
	"log/slog"

	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/storage"
)

func init() {
	Register("log", newLogSink, func() map[string]string {
		return map[string]string{"level": "info"}
	})
}

type logSink struct {
	logger *slog.Logger
	level  slog.Level
}

func newLogSink(_ context.Context, config map[string]string) (Sink, error) {
	p := storage.Read("log", config)
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.String("level", "info"))); err != nil {
		p.Fail("level", "must be debug, info, warn or error", err)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return &logSink{logger: slog.Default().With("component", "events"), level: level}, nil
}

func (s *logSink) Publish(ctx context.Context, r *ledger.Receipt) error {
	for _, e := range r.Events {
		args := []any{"seq", e.Seq, "receipt", r.ID, "kind", e.Kind, "contract", e.Contract}
		for _, a := range e.Attrs {
			args = append(args, a.Key, a.Value)
		}
		s.logger.Log(ctx, s.level, e.Name, args...)
	}
	return nil
}

func (s *logSink) Close() error { return nil }
