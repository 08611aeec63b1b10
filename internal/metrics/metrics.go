package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stellar_bridge"

var (
	// Payments counts saga runs by final outcome (confirmed, cancelled, rejected, ...)
	Payments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Outbound payment saga runs by outcome.",
	}, []string{"outcome"})

	// Deposits counts applied deposit deliveries by ledger outcome
	Deposits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposits_total",
		Help:      "Deposit deliveries by outcome.",
	}, []string{"outcome"})

	// RelayEvents counts relay activity: messages, records, relayed, errors
	RelayEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_events_total",
		Help:      "Relay stream activity by kind.",
	}, []string{"kind"})

	// Reconciled counts reservations resolved by the reconciliation sweep
	Reconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciled_reservations_total",
		Help:      "Stale reservations resolved by the reconciliation sweep.",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(Payments, Deposits, RelayEvents, Reconciled)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
