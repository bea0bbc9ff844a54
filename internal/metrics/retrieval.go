package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval Prometheus metrics.
var (
	CollectionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collections_created_total",
			Help:      "Collections created by this process",
		},
		[]string{"collection"},
	)

	IngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_points_total",
			Help:      "Points appended by successful ingestion",
		},
		[]string{"collection"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries answered by the engine",
		},
		[]string{"collection"},
	)

	// QueryEmptyTotal counts genuine zero-match answers.
	QueryEmptyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_empty_total",
			Help:      "Queries that matched nothing above the similarity floor",
		},
		[]string{"collection"},
	)

	// QueryDegradedTotal counts failed queries answered with an empty list at the boundary.
	QueryDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_degraded_total",
			Help:      "Failed queries degraded to an empty response",
		},
		[]string{"transport"},
	)
)

var registerRetrieval sync.Once

// RegisterRetrievalMetrics registers Prometheus retrieval metrics. Safe to call more than once.
func RegisterRetrievalMetrics() {
	registerRetrieval.Do(func() {
		prometheus.MustRegister(
			CollectionsCreatedTotal,
			IngestedTotal,
			QueriesTotal,
			QueryEmptyTotal,
			QueryDegradedTotal,
		)
	})
}

// RetrievalObserver feeds engine outcomes into the retrieval counters.
type RetrievalObserver struct{}

// CollectionCreated counts a created collection.
func (RetrievalObserver) CollectionCreated(collection string) {
	CollectionsCreatedTotal.WithLabelValues(collection).Inc()
}

// Ingested counts an appended point.
func (RetrievalObserver) Ingested(collection string) {
	IngestedTotal.WithLabelValues(collection).Inc()
}

// Queried counts an answered query and whether it matched nothing.
func (RetrievalObserver) Queried(collection string, results int) {
	QueriesTotal.WithLabelValues(collection).Inc()
	if results == 0 {
		QueryEmptyTotal.WithLabelValues(collection).Inc()
	}
}
