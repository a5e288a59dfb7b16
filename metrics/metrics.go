// Package metrics exposes Prometheus counters and gauges for the scan
// engine and downstream submission, served over the same /metrics
// endpoint convention the teacher wires up around promhttp.Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CellDiffsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ckb_emitter",
		Name:      "cell_diffs_submitted_total",
		Help:      "CellDiffs accepted by a submitter, by filter id.",
	}, []string{"filter"})

	HeadersSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ckb_emitter",
		Name:      "headers_submitted_total",
		Help:      "Headers accepted by submit_headers.",
	})

	SubmitFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ckb_emitter",
		Name:      "submit_failures_total",
		Help:      "submit_cells/submit_headers calls returning false or erroring.",
	}, []string{"kind"})

	CellScanTip = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ckb_emitter",
		Name:      "cell_scan_tip",
		Help:      "Current TipCell block number per filter.",
	}, []string{"filter"})

	HeaderScanTip = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ckb_emitter",
		Name:      "header_scan_tip",
		Help:      "Current header TipCell block number.",
	})

	CheckpointDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ckb_emitter",
		Name:      "checkpoint_dump_seconds",
		Help:      "Time spent in StateStore.Dump.",
	})

	ActiveScanners = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ckb_emitter",
		Name:      "active_cell_scanners",
		Help:      "Number of currently running CellScanner tasks.",
	})
)

func init() {
	prometheus.MustRegister(
		CellDiffsSubmitted,
		HeadersSubmitted,
		SubmitFailures,
		CellScanTip,
		HeaderScanTip,
		CheckpointDuration,
		ActiveScanners,
	)
}

// Handler returns the http.Handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
