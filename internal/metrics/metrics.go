package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LendingTransitions counts committed lending lifecycle transitions
	LendingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "library",
		Name:      "lending_transitions_total",
		Help:      "Committed lending transitions by kind.",
	}, []string{"transition"})

	// LendingRefusals counts lending calls refused by a guard
	LendingRefusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "library",
		Name:      "lending_refusals_total",
		Help:      "Lending calls refused by a guard, by reason.",
	}, []string{"reason"})

	// SearchResults observes the size of each search result set
	SearchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "library",
		Name:      "search_results",
		Help:      "Number of books returned per catalog search.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
	})
)

// Transition records a committed lending transition
func Transition(kind string) {
	LendingTransitions.WithLabelValues(kind).Inc()
}

// Refusal records a refused lending call
func Refusal(reason string) {
	LendingRefusals.WithLabelValues(reason).Inc()
}
