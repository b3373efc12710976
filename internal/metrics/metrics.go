package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ObjectsScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dicom_import",
		Name:      "objects_scanned_total",
		Help:      "Total objects listed under the source prefix.",
	})
	ObjectsOrganized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dicom_import",
		Name:      "objects_organized_total",
		Help:      "Total DICOM objects copied into the canonical layout.",
	})
	ObjectsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dicom_import",
		Name:      "objects_skipped_total",
		Help:      "Total objects skipped (non-DICOM or already organized).",
	})
	OrganizeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dicom_import",
		Name:      "organize_errors_total",
		Help:      "Total per-object organize failures.",
	})
	ImportPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dicom_import",
		Name:      "import_polls_total",
		Help:      "Total import job status polls.",
	})
	FramesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dicom_import",
		Name:      "frames_fetched_total",
		Help:      "Total image frames retrieved from the datastore.",
	})
)

// Init registers collectors; call once from main.
func Init() {
	prometheus.MustRegister(ObjectsScanned, ObjectsOrganized, ObjectsSkipped, OrganizeErrors, ImportPolls, FramesFetched)
}

// Serve starts a /metrics server on the given addr (e.g., ":9090"). Non-blocking when run in goroutine.
func Serve(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}

// AddrFromEnv returns listen address from METRICS_ADDR or default ":9090".
func AddrFromEnv() string {
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		return v
	}
	return ":9090"
}
