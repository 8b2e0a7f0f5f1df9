package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/trace"

	"github.com/gezibash/arc-registrar/pkg/logging"
)

// SetupLogger builds the process logger and installs it as the slog
// default. "json" selects slog's JSON handler; anything else gets the
// console handler, colored when w is a terminal. Records logged with a
// span in their context carry trace_id and span_id.
func SetupLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logging.ParseLevel(level), ReplaceAttr: logging.ReplaceAttr}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		ch := NewConsoleHandler(w, opts)
		ch.color = isTerminal(w)
		h = ch
	}
	logger := slog.New(traceHandler{h})
	slog.SetDefault(logger)
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

type traceHandler struct{ slog.Handler }

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}

// ConsoleHandler writes one "15:04:05 INF message key=value" line per
// record. Groups become dotted key prefixes.
type ConsoleHandler struct {
	w       io.Writer
	mu      *sync.Mutex
	level   slog.Leveler
	replace func([]string, slog.Attr) slog.Attr
	color   bool

	groups []string
	prefix string // joined groups plus a trailing dot
	pre    []byte // attrs added with WithAttrs, already rendered
}

// NewConsoleHandler returns an uncolored console handler. A nil opts logs
// at info and above.
func NewConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{w: w, mu: new(sync.Mutex), level: slog.LevelInfo}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.replace = opts.ReplaceAttr
	}
	return h
}

func (h *ConsoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format(time.TimeOnly))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(r.Level, h.color))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.Write(h.pre)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	buf := bytes.NewBuffer(append([]byte(nil), h.pre...))
	for _, a := range attrs {
		c.appendAttr(buf, a)
	}
	c.pre = buf.Bytes()
	return &c
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(append([]string(nil), h.groups...), name)
	c.prefix = strings.Join(c.groups, ".") + "."
	return &c
}

func (h *ConsoleHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	if h.replace != nil && a.Value.Kind() != slog.KindGroup {
		a = h.replace(h.groups, a)
	}
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		g := *h
		if a.Key != "" {
			g.groups = append(append([]string(nil), h.groups...), a.Key)
			g.prefix = strings.Join(g.groups, ".") + "."
		}
		for _, ga := range a.Value.Group() {
			g.appendAttr(buf, ga)
		}
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(h.prefix)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		v = strconv.Quote(v)
	}
	buf.WriteString(v)
}

var levelColors = map[string]string{
	"ERR": "\033[31m",
	"WRN": "\033[33m",
	"INF": "\033[36m",
	"DBG": "\033[90m",
}

func levelLabel(l slog.Level, color bool) string {
	var tag string
	switch {
	case l >= slog.LevelError:
		tag = "ERR"
	case l >= slog.LevelWarn:
		tag = "WRN"
	case l >= slog.LevelInfo:
		tag = "INF"
	default:
		tag = "DBG"
	}
	if !color {
		return tag
	}
	return levelColors[tag] + tag + "\033[0m"
}
