// Package events publishes committed ledger receipts to an external sink.
//
// Publishing runs after the ledger transaction has committed, off the
// transaction path. A sink failure is logged and counted; it never changes
// the outcome of the transaction.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/storage"
	"github.com/gezibash/arc-registrar/pkg/logging"
)

// Sink delivers receipts somewhere outside the node.
type Sink interface {
	Publish(ctx context.Context, r *ledger.Receipt) error
	Close() error
}

// Factory creates a sink from a configuration map.
type Factory func(ctx context.Context, config map[string]string) (Sink, error)

var sinks = storage.NewRegistry[Sink]("event sink")

// Register makes a sink available by name. It panics on duplicates.
func Register(name string, factory Factory, defaults func() map[string]string) {
	sinks.Register(name, factory, defaults)
}

// Sinks lists the registered sink names.
func Sinks() []string { return sinks.Names() }

// Open creates the named sink with config merged over its defaults. An
// empty name selects the log sink.
func Open(ctx context.Context, name string, config map[string]string) (Sink, error) {
	if name == "" {
		name = "log"
	}
	return sinks.Open(ctx, name, config)
}

const (
	// DefaultQueueSize bounds the receipts waiting for the sink.
	DefaultQueueSize = 1024
	// DefaultPublishTimeout bounds a single sink Publish.
	DefaultPublishTimeout = 10 * time.Second
)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithQueueSize sets how many receipts may wait for the sink.
func WithQueueSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan queued, n)
		}
	}
}

// WithPublishTimeout sets the deadline of each sink Publish.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

type queued struct {
	ctx context.Context
	r   *ledger.Receipt
}

// Publisher forwards receipts to a sink from its own goroutine and records
// the outcome. Receipts that arrive while the queue is full are dropped and
// counted; they remain readable from the ledger event log.
type Publisher struct {
	name    string
	sink    Sink
	metrics *observability.Metrics
	log     *logging.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	done   chan struct{}
}

// NewPublisher wraps sink and starts delivering. metrics may be nil.
func NewPublisher(name string, sink Sink, metrics *observability.Metrics, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		name:    name,
		sink:    sink,
		metrics: metrics,
		log:     logging.New(nil).WithComponent("events"),
		timeout: DefaultPublishTimeout,
		queue:   make(chan queued, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Hook returns a ledger commit hook that queues every receipt with events.
// It never waits on the sink.
func (p *Publisher) Hook() ledger.CommitHook {
	return func(ctx context.Context, r *ledger.Receipt) {
		if len(r.Events) == 0 {
			return
		}
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.closed {
			p.count("dropped", r)
			return
		}
		select {
		case p.queue <- queued{ctx: context.WithoutCancel(ctx), r: r}:
		default:
			p.count("dropped", r)
			p.log.WarnContext(ctx, "event queue full", "sink", p.name, "receipt", r.ID, "events", len(r.Events))
		}
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for q := range p.queue {
		p.publish(q)
	}
}

func (p *Publisher) publish(q queued) {
	ctx, cancel := context.WithTimeout(q.ctx, p.timeout)
	defer cancel()
	status := "ok"
	if err := p.sink.Publish(ctx, q.r); err != nil {
		status = "error"
		p.log.WarnContext(ctx, "publish receipt", "sink", p.name, "receipt", q.r.ID, "error", err)
	}
	p.count(status, q.r)
}

func (p *Publisher) count(status string, r *ledger.Receipt) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(p.name, status).Add(float64(len(r.Events)))
	}
}

// Close delivers the queued receipts, then closes the sink.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return p.sink.Close()
}
