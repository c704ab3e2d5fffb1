// Package metrics exposes the agent's own prometheus collectors, on a
// private registry rather than the global default one, so an embedder can
// mount /metrics (or skip it entirely) without colliding with collectors
// registered elsewhere in its process.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the private registry every collector in this package is
// registered against.
var Registry = prometheus.NewRegistry()

var (
	// BytesTransferredTotal counts payload bytes written by DownloadAction,
	// labeled by source: "http" or "p2p".
	BytesTransferredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaupdate_bytes_transferred_total",
			Help: "Total payload bytes received by DownloadAction.",
		},
		[]string{"source"},
	)

	// DownloadActive reports whether a download is currently in flight.
	DownloadActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "otaupdate_download_active",
			Help: "1 while a DownloadAction transfer is in flight, else 0.",
		},
	)

	// HashDuration records how long FilesystemVerifierAction spends hashing
	// a single partition, labeled by mode: "ComputeSourceHash" or
	// "VerifyTargetHash".
	HashDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otaupdate_hash_duration_seconds",
			Help:    "Time spent hashing one partition.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// P2PFilesActive tracks the number of P2P share files currently on
	// disk, labeled by visibility: "hidden" or "visible".
	P2PFilesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otaupdate_p2p_files_active",
			Help: "Number of P2P share files currently on disk.",
		},
		[]string{"visibility"},
	)

	// TransfersTotal counts completed downloads, labeled by the resulting
	// ErrorCode's string form.
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaupdate_transfers_total",
			Help: "Total completed downloads by outcome.",
		},
		[]string{"code"},
	)
)

func init() {
	Registry.MustRegister(BytesTransferredTotal)
	Registry.MustRegister(DownloadActive)
	Registry.MustRegister(HashDuration)
	Registry.MustRegister(P2PFilesActive)
	Registry.MustRegister(TransfersTotal)
}
