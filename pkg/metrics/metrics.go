package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VoucherResults counts per-item outcomes of batch ingestion.
	VoucherResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_voucher_results_total",
			Help: "Vouchers processed by the batch API, by result status",
		},
		[]string{"status"},
	)

	// PackageMatches counts which resolver stage assigned the package.
	PackageMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_package_matches_total",
			Help: "Package resolutions by matching stage (exact, partial, fallback)",
		},
		[]string{"match"},
	)

	BatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_voucher_batches_total",
			Help: "Batch voucher requests by HTTP status code",
		},
		[]string{"code"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hotspot_voucher_batch_size",
			Help:    "Number of vouchers per accepted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 75, 100},
		},
	)

	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotspot_audit_dropped_total",
			Help: "Audit log entries dropped because the buffer was full",
		},
	)

	AuditWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotspot_audit_write_errors_total",
			Help: "Audit log entries that failed to insert",
		},
	)
)
