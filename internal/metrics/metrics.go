// Package metrics holds the Prometheus collectors of the ingestion pipeline.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsync"

var (
	RemoteRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_requests_total",
		Help:      "Remote tree API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	ReferencesCollected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "references_collected",
		Help:      "Document references found by the last collection.",
	})

	Chunks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_total",
		Help:      "Chunk attempts by resulting status.",
	}, []string{"status"})

	DocumentsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_fetched_total",
		Help:      "Document details fetched by chunk processing.",
	})

	ProgressLockTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "progress_lock_timeouts_total",
		Help:      "Progress increments dropped because the lock was not acquired.",
	})

	Consolidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consolidations_total",
		Help:      "Consolidation checks by result.",
	}, []string{"result"})
)

func all() []prometheus.Collector {
	return []prometheus.Collector{RemoteRequests, ReferencesCollected, Chunks, DocumentsFetched, ProgressLockTimeouts, Consolidations}
}

// Register adds the pipeline collectors to reg. Collectors already present
// are left in place.
func Register(reg prometheus.Registerer) error {
	for _, c := range all() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves a dedicated registry with the pipeline and runtime collectors.
func Handler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := Register(reg); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
