// Package metrics exposes Prometheus counters for the document lifecycle
// service and a standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DocumentsCreated counts certificates minted by the document registry.
	DocumentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "institution_documents_created_total",
		Help: "Number of documents registered and certificates minted.",
	})

	// SignaturesAccepted counts signatures the ledger recorded.
	SignaturesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "institution_signatures_accepted_total",
		Help: "Number of signatures accepted by the signature ledger.",
	})

	// SignaturesRejected counts signatures refused for any reason.
	SignaturesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "institution_signatures_rejected_total",
		Help: "Number of signatures rejected, labeled by reason.",
	}, []string{"reason"})

	// WorkflowStepsCompleted counts completed workflow steps.
	WorkflowStepsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "institution_workflow_steps_completed_total",
		Help: "Number of workflow steps completed in order.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given listen address.
func New(service, listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:    listenAddr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving the metrics endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
