// Package metrics records reconciliation outcomes for Prometheus.
//
// gtctl runs to completion and exits, so the registry is exported through
// the node_exporter textfile collector rather than scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the gtctl collectors in a private registry.
type Recorder struct {
	reg *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	groupsTotal     *prometheus.CounterVec
	scriptsSent     *prometheus.CounterVec
	estimatedRules  *prometheus.GaugeVec
	estimatedTbl8s  *prometheus.GaugeVec
	runDuration     prometheus.Histogram
	lastSuccessTime prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtctl_runs_total",
			Help: "Reconciliation runs by result.",
		}, []string{"result"}),
		groupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtctl_tables_reconciled_total",
			Help: "Tables reconciled by family and mode.",
		}, []string{"family", "mode"}),
		scriptsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtctl_scripts_sent_total",
			Help: "Scripts sent to the dataplane by family.",
		}, []string{"family"}),
		estimatedRules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gtctl_estimated_rules",
			Help: "Estimated LPM rules for the last reconciled table.",
		}, []string{"family", "kind"}),
		estimatedTbl8s: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gtctl_estimated_tbl8s",
			Help: "Estimated LPM tbl8 groups for the last reconciled table.",
		}, []string{"family", "kind"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gtctl_run_duration_seconds",
			Help:    "Duration of reconciliation runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		lastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtctl_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
	r.reg.MustRegister(
		r.runsTotal,
		r.groupsTotal,
		r.scriptsSent,
		r.estimatedRules,
		r.estimatedTbl8s,
		r.runDuration,
		r.lastSuccessTime,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// RunFinished records the outcome of one run.
func (r *Recorder) RunFinished(start time.Time, err error) {
	if r == nil {
		return
	}
	r.runDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.runsTotal.WithLabelValues("failure").Inc()
		return
	}
	r.runsTotal.WithLabelValues("success").Inc()
	r.lastSuccessTime.SetToCurrentTime()
}

// TableReconciled records the mode and estimate chosen for one table.
func (r *Recorder) TableReconciled(family, kind, mode string, rules, tbl8s int) {
	if r == nil {
		return
	}
	r.groupsTotal.WithLabelValues(family, mode).Inc()
	r.estimatedRules.WithLabelValues(family, kind).Set(float64(rules))
	r.estimatedTbl8s.WithLabelValues(family, kind).Set(float64(tbl8s))
}

// ScriptSent counts one script delivered to the dataplane.
func (r *Recorder) ScriptSent(family string) {
	if r == nil {
		return
	}
	r.scriptsSent.WithLabelValues(family).Inc()
}

// WriteTextfile writes the registry to path in the text exposition
// format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
