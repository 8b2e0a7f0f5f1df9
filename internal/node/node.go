// Package node assembles a registrar node: the state backend, the ledger
// with every contract kind bound, the event publisher and the genesis
// manifest. Service exposes the contract operations by raw name.
package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gezibash/arc-registrar/internal/events"
	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/statestore"
	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	arcerrors "github.com/gezibash/arc-registrar/pkg/errors"
	"github.com/gezibash/arc-registrar/pkg/logging"
)

// Clock modes.
const (
	ClockSystem = "system"
	ClockManual = "manual"
)

// Options configures Open.
type Options struct {
	Backend       string
	BackendConfig map[string]string
	Sink          string
	SinkConfig    map[string]string
	Clock         string    // ClockSystem (default) or ClockManual
	Start         time.Time // initial manual time; zero means now
	Genesis       Genesis   // applied only to a fresh backend
	Metrics       *observability.Metrics
}

// Node is a running registrar ledger.
type Node struct {
	backend   physical.Backend
	ledger    *ledger.Ledger
	manual    *ledger.ManualClock
	publisher *events.Publisher
	manifest  Manifest
	metrics   *observability.Metrics
	log       *logging.Logger
	service   *Service

	ownedMu sync.Mutex
	owned   map[string]int

	notifyMu sync.Mutex
	notify   chan struct{}
}

// Open opens the state backend, binds the contracts and either re-attaches
// to the stored manifest or runs genesis.
func Open(ctx context.Context, opts Options) (*Node, error) {
	backend, err := statestore.Open(ctx, opts.Backend, opts.BackendConfig, opts.Metrics)
	if err != nil {
		return nil, err
	}
	n, err := New(ctx, backend, opts)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return n, nil
}

// New builds a node over an already open backend. The node owns backend
// and closes it on Close.
func New(ctx context.Context, backend physical.Backend, opts Options) (*Node, error) {
	n := &Node{
		backend: backend,
		metrics: opts.Metrics,
		log:     logging.New(nil).WithComponent("node"),
		owned:   make(map[string]int),
		notify:  make(chan struct{}),
	}

	var clock ledger.Clock = ledger.SystemClock{}
	switch opts.Clock {
	case "", ClockSystem:
	case ClockManual:
		start := opts.Start
		if saved, ok, err := loadClock(ctx, backend); err != nil {
			return nil, err
		} else if ok {
			start = saved
		}
		if start.IsZero() {
			start = time.Now()
		}
		n.manual = ledger.NewManualClock(start.UTC().Truncate(time.Second))
		clock = n.manual
	default:
		return nil, fmt.Errorf("%w: clock mode %q", arcerrors.ErrInvalidInput, opts.Clock)
	}

	sink, err := events.Open(ctx, opts.Sink, opts.SinkConfig)
	if err != nil {
		return nil, err
	}
	sinkName := opts.Sink
	if sinkName == "" {
		sinkName = "log"
	}
	n.publisher = events.NewPublisher(sinkName, sink, opts.Metrics)

	n.ledger = ledger.New(backend,
		ledger.WithClock(clock),
		ledger.WithMetrics(opts.Metrics),
		ledger.WithCommitHook(n.trackOwnership),
		ledger.WithCommitHook(n.publisher.Hook()),
		ledger.WithCommitHook(n.signal),
	)
	registerContracts(n.ledger)

	m, ok, err := LoadManifest(ctx, backend)
	if err != nil {
		_ = n.publisher.Close()
		return nil, err
	}
	if !ok {
		n.log.InfoContext(ctx, "running genesis", "tld", opts.Genesis.TLD, "domain", opts.Genesis.Domain)
		if m, err = Bootstrap(ctx, n.ledger, opts.Genesis); err != nil {
			_ = n.publisher.Close()
			return nil, err
		}
	} else if err := n.replayOwnership(ctx); err != nil {
		_ = n.publisher.Close()
		return nil, err
	}
	n.manifest = m
	n.service = newService(n)
	n.log.InfoContext(ctx, "node ready", "registry", m.Registry.Hex(), "auction", m.Auction.Hex(), "clock", n.ClockMode())
	return n, nil
}

// Ledger returns the transaction engine.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Manifest returns the genesis manifest.
func (n *Node) Manifest() Manifest { return n.manifest }

// Service returns the operation facade.
func (n *Node) Service() *Service { return n.service }

// Backend returns the state backend.
func (n *Node) Backend() physical.Backend { return n.backend }

// ClockMode reports ClockManual or ClockSystem.
func (n *Node) ClockMode() string {
	if n.manual != nil {
		return ClockManual
	}
	return ClockSystem
}

// Now returns the ledger time.
func (n *Node) Now() time.Time { return n.ledger.Clock().Now().UTC() }

// Advance moves a manual clock forward and persists the new time.
func (n *Node) Advance(ctx context.Context, d time.Duration) (time.Time, error) {
	if n.manual == nil {
		return time.Time{}, fmt.Errorf("%w: clock is not manual", arcerrors.ErrInvalidState)
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("%w: advance by %s", arcerrors.ErrInvalidValue, d)
	}
	now := n.manual.Advance(d)
	if err := saveClock(ctx, n.backend, now); err != nil {
		return now, err
	}
	n.log.InfoContext(ctx, "clock advanced", "by", d, "now", now)
	return now, nil
}

// Status summarizes the node.
type Status struct {
	Manifest  Manifest
	Clock     string
	Now       time.Time
	Backend   string
	Keys      int64
	SizeBytes int64
	Owned     map[string]int // names owned per registrar address
}

// Status reports the manifest, clock and storage usage, refreshing the
// state gauges on the way.
func (n *Node) Status(ctx context.Context) (Status, error) {
	st, err := n.backend.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("backend stats: %w", err)
	}
	if n.metrics != nil {
		n.metrics.StateKeys.WithLabelValues(st.BackendType).Set(float64(st.Keys))
	}
	n.ownedMu.Lock()
	owned := make(map[string]int, len(n.owned))
	for k, v := range n.owned {
		owned[k] = v
	}
	n.ownedMu.Unlock()
	return Status{
		Manifest:  n.manifest,
		Clock:     n.ClockMode(),
		Now:       n.Now(),
		Backend:   st.BackendType,
		Keys:      st.Keys,
		SizeBytes: st.SizeBytes,
		Owned:     owned,
	}, nil
}

// Close flushes the manual clock and closes the sink and backend.
func (n *Node) Close() error {
	var errs []error
	if n.manual != nil {
		errs = append(errs, saveClock(context.Background(), n.backend, n.manual.Now()))
	}
	if n.publisher != nil {
		errs = append(errs, n.publisher.Close())
	}
	errs = append(errs, n.backend.Close())
	return errors.Join(errs...)
}

// ownershipDelta maps auction events to changes in the names-owned count.
func ownershipDelta(e ledger.Event) int {
	switch e.Name {
	case "HashRegistered", "RegistrarTransferAccepted":
		return 1
	case "HashReleased", "RegistrarTransferred":
		return -1
	case "HashInvalidated":
		if owned, _ := strconv.ParseBool(e.Get("owned")); owned {
			return -1
		}
	}
	return 0
}

func (n *Node) applyOwnership(evs []ledger.Event) {
	n.ownedMu.Lock()
	defer n.ownedMu.Unlock()
	for _, e := range evs {
		d := ownershipDelta(e)
		if d == 0 {
			continue
		}
		n.owned[e.Contract] += d
		if n.metrics != nil {
			n.metrics.NamesOwned.WithLabelValues(e.Contract).Set(float64(n.owned[e.Contract]))
		}
	}
}

func (n *Node) trackOwnership(_ context.Context, r *ledger.Receipt) {
	n.applyOwnership(r.Events)
}

// replayOwnership rebuilds the names-owned counts from the event log.
func (n *Node) replayOwnership(ctx context.Context) error {
	var after uint64
	for {
		evs, err := n.ledger.Events(ctx, after, 1000)
		if err != nil {
			return fmt.Errorf("replay events: %w", err)
		}
		if len(evs) == 0 {
			return nil
		}
		n.applyOwnership(evs)
		after = evs[len(evs)-1].Seq
	}
}

// Changed returns a channel closed at the next commit.
func (n *Node) Changed() <-chan struct{} {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()
	return n.notify
}

func (n *Node) signal(context.Context, *ledger.Receipt) {
	n.notifyMu.Lock()
	close(n.notify)
	n.notify = make(chan struct{})
	n.notifyMu.Unlock()
}

// Kind returns the contract kind at addr.
func (n *Node) Kind(ctx context.Context, addr common.Address) (string, error) {
	return n.ledger.KindOf(ctx, addr)
}
