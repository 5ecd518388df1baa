package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteComposeTotal counts quote compositions by outcome.
	QuoteComposeTotal *prometheus.CounterVec
	// ReconcileRowsTotal counts reconciliation rows by match status.
	ReconcileRowsTotal *prometheus.CounterVec
	// ReconcileMatchDuration records batch matching latency in milliseconds.
	ReconcileMatchDuration *prometheus.HistogramVec
	// CatalogLookupTotal counts catalog resolutions by outcome.
	CatalogLookupTotal *prometheus.CounterVec
	// CatalogSnapshotProducts reports the product count of the active catalog snapshot.
	CatalogSnapshotProducts prometheus.Gauge
	// ExportRenderTotal counts spreadsheet exports by kind and outcome.
	ExportRenderTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteComposeTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_compose_total",
			Help:      "Count of quote compositions by outcome.",
		}, []string{"result"}))
		ReconcileRowsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_rows_total",
			Help:      "Count of reconciliation rows by match status.",
		}, []string{"status"}))
		ReconcileMatchDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_match_duration_ms",
			Help:      "Latency of reconciliation batch matching in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		CatalogLookupTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookup_total",
			Help:      "Count of catalog reference resolutions by outcome.",
		}, []string{"result"}))
		CatalogSnapshotProducts = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_snapshot_products",
			Help:      "Number of products in the active catalog snapshot.",
		}))
		ExportRenderTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_render_total",
			Help:      "Count of spreadsheet exports by kind and outcome.",
		}, []string{"kind", "result"}))
	})
}

// ObserveCatalogLookup increments the catalog lookup counter when registered.
func ObserveCatalogLookup(result string) {
	if CatalogLookupTotal != nil {
		CatalogLookupTotal.WithLabelValues(result).Inc()
	}
}

// ObserveQuoteCompose increments the quote composition counter when registered.
func ObserveQuoteCompose(result string) {
	if QuoteComposeTotal != nil {
		QuoteComposeTotal.WithLabelValues(result).Inc()
	}
}

// ObserveReconcileRows adds n rows with the given status when registered.
func ObserveReconcileRows(status string, n int) {
	if ReconcileRowsTotal != nil && n > 0 {
		ReconcileRowsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// ObserveReconcileMatch records a matching batch latency when registered.
func ObserveReconcileMatch(result string, ms float64) {
	if ReconcileMatchDuration != nil {
		ReconcileMatchDuration.WithLabelValues(result).Observe(ms)
	}
}

// SetCatalogSnapshotProducts updates the snapshot size gauge when registered.
func SetCatalogSnapshotProducts(n int) {
	if CatalogSnapshotProducts != nil {
		CatalogSnapshotProducts.Set(float64(n))
	}
}

// ObserveExport increments the export counter when registered.
func ObserveExport(kind, result string) {
	if ExportRenderTotal != nil {
		ExportRenderTotal.WithLabelValues(kind, result).Inc()
	}
}
