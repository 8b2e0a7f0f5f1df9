package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics registry and registrar meters.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	StateKeys         *prometheus.GaugeVec
	NamesOwned        *prometheus.GaugeVec
}

// NewMetrics creates a custom Prometheus registry with the registrar metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arc_registrar_operation_duration_seconds",
		Help:    "Duration of operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_registrar_operation_total",
		Help: "Total number of operations.",
	}, []string{"operation", "status"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_registrar_errors_total",
		Help: "Total number of failed operations by error kind.",
	}, []string{"operation", "kind"})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_registrar_events_published_total",
		Help: "Ledger events handed to the event sink.",
	}, []string{"sink", "status"})

	stateKeys := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arc_registrar_state_keys",
		Help: "Number of keys held by the state backend.",
	}, []string{"backend"})

	namesOwned := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arc_registrar_names_owned",
		Help: "Names finalized by a registrar and not yet released.",
	}, []string{"registrar"})

	reg.MustRegister(opDuration, opTotal, errorsTotal, eventsPublished, stateKeys, namesOwned)

	return &Metrics{
		Registry:          reg,
		OperationDuration: opDuration,
		OperationTotal:    opTotal,
		ErrorsTotal:       errorsTotal,
		EventsPublished:   eventsPublished,
		StateKeys:         stateKeys,
		NamesOwned:        namesOwned,
	}
}
