package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/storage"
)

func sampleReceipt() *ledger.Receipt {
	return &ledger.Receipt{
		ID: "r-1",
		Op: "finalize",
		Events: []ledger.Event{
			{Seq: 7, Receipt: "r-1", Contract: "0x01", Kind: "auction", Name: "HashRegistered", Time: 1700000000,
				Attrs: []ledger.Attr{{Key: "label", Value: "0xabc"}, {Key: "value", Value: "1000"}}},
			{Seq: 8, Receipt: "r-1", Contract: "0x02", Kind: "registry", Name: "NewOwner"},
		},
	}
}

type recordingSink struct {
	got []*ledger.Receipt
	err error
}

func (s *recordingSink) Publish(_ context.Context, r *ledger.Receipt) error {
	s.got = append(s.got, r)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestMarshalRoundTrip(t *testing.T) {
	in := sampleReceipt().Events[0]
	data, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Seq != in.Seq || out.Name != in.Name || out.Kind != in.Kind || out.Time != in.Time {
		t.Errorf("round trip = %+v", out)
	}
	if out.Get("label") != "0xabc" || out.Get("value") != "1000" {
		t.Errorf("attrs = %+v", out.Attrs)
	}
}

func TestPublisherHook(t *testing.T) {
	m := observability.NewMetrics()

	t.Run("ok", func(t *testing.T) {
		sink := &recordingSink{}
		p := NewPublisher("ok", sink, m)
		p.Hook()(context.Background(), sampleReceipt())
		if err := p.Close(); err != nil {
			t.Fatal(err)
		}
		if len(sink.got) != 1 {
			t.Fatalf("published %d receipts", len(sink.got))
		}
		if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues("ok", "ok")); got != 2 {
			t.Errorf("ok counter = %v", got)
		}
	})

	t.Run("failure is counted", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("down")}
		p := NewPublisher("failing", sink, m)
		p.Hook()(context.Background(), sampleReceipt())
		_ = p.Close()
		if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues("failing", "error")); got != 2 {
			t.Errorf("error counter = %v", got)
		}
	})

	t.Run("empty receipts are skipped", func(t *testing.T) {
		sink := &recordingSink{}
		p := NewPublisher("empty", sink, nil)
		p.Hook()(context.Background(), &ledger.Receipt{ID: "empty"})
		_ = p.Close()
		if len(sink.got) != 0 {
			t.Errorf("published %d receipts", len(sink.got))
		}
	})

	t.Run("cancelled request still publishes", func(t *testing.T) {
		sink := &ctxSink{}
		p := NewPublisher("cancelled", sink, m)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.Hook()(ctx, sampleReceipt())
		_ = p.Close()
		if sink.err != nil {
			t.Errorf("publish saw %v", sink.err)
		}
		if !sink.deadline {
			t.Error("publish ran without a deadline")
		}
	})

	t.Run("after close", func(t *testing.T) {
		sink := &recordingSink{}
		p := NewPublisher("closed", sink, m)
		_ = p.Close()
		p.Hook()(context.Background(), sampleReceipt())
		if len(sink.got) != 0 {
			t.Errorf("published %d receipts after close", len(sink.got))
		}
		if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues("closed", "dropped")); got != 2 {
			t.Errorf("dropped counter = %v", got)
		}
	})
}

// ctxSink records the context state seen by Publish.
type ctxSink struct {
	err      error
	deadline bool
}

func (s *ctxSink) Publish(ctx context.Context, _ *ledger.Receipt) error {
	s.err = ctx.Err()
	_, s.deadline = ctx.Deadline()
	return s.err
}

func (s *ctxSink) Close() error { return nil }

// stallingSink blocks every Publish until released.
type stallingSink struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	got     int
}

func (s *stallingSink) Publish(ctx context.Context, _ *ledger.Receipt) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.got++
	s.mu.Unlock()
	return nil
}

func (s *stallingSink) Close() error { return nil }

func TestSlowSinkDoesNotBlockHook(t *testing.T) {
	m := observability.NewMetrics()
	sink := &stallingSink{started: make(chan struct{}, 4), release: make(chan struct{})}
	p := NewPublisher("slow", sink, m, WithQueueSize(1))
	hook := p.Hook()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		hook(context.Background(), sampleReceipt())
		<-sink.started
		hook(context.Background(), sampleReceipt()) // queued
		hook(context.Background(), sampleReceipt()) // queue full
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		close(sink.release)
		t.Fatal("hook waited on the sink")
	}

	if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues("slow", "dropped")); got != 2 {
		t.Errorf("dropped counter = %v", got)
	}
	close(sink.release)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if sink.got != 2 {
		t.Errorf("published %d receipts, want 2", sink.got)
	}
}

func TestPublishTimeout(t *testing.T) {
	m := observability.NewMetrics()
	sink := &stallingSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := NewPublisher("timeout", sink, m, WithPublishTimeout(20*time.Millisecond))
	p.Hook()(context.Background(), sampleReceipt())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues("timeout", "error")); got != 2 {
		t.Errorf("error counter = %v", got)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	sink, err := Open(context.Background(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Publish(context.Background(), sampleReceipt()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"HashRegistered", "NewOwner", "label=0xabc", "receipt=r-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	var cfgErr *storage.ConfigError
	if _, err := Open(context.Background(), "carrier-pigeon", nil); !errors.As(err, &cfgErr) {
		t.Errorf("unknown sink err = %v", err)
	}
	if _, err := Open(context.Background(), "log", map[string]string{"level": "loud"}); !errors.As(err, &cfgErr) {
		t.Errorf("bad level err = %v", err)
	}
	if _, err := Open(context.Background(), "kafka", map[string]string{"brokers": " "}); !errors.As(err, &cfgErr) {
		t.Errorf("kafka without brokers err = %v", err)
	}
}

func TestSinks(t *testing.T) {
	got := strings.Join(Sinks(), ",")
	if got != "kafka,log,redis" {
		t.Errorf("sinks = %s", got)
	}
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("ARC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ARC_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	stream := "arc-registrar:test:" + t.Name()
	sink, err := Open(ctx, "redis", map[string]string{"addr": addr, "stream": stream})
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	rs := sink.(*redisSink)
	defer rs.client.Del(ctx, stream)

	if err := sink.Publish(ctx, sampleReceipt()); err != nil {
		t.Fatal(err)
	}
	entries, err := rs.client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Values["name"] != "HashRegistered" {
		t.Errorf("entries = %+v", entries)
	}
}
