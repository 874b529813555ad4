package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

var ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "procure_reconcile_runs_total",
	Help: "The total number of schema reconciliations by result",
}, []string{"result"})

var ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "procure_reconcile_duration_seconds",
	Help:    "The duration of schema reconciliations",
	Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
})

var ReconcileStatements = promauto.NewCounter(prometheus.CounterOpts{
	Name: "procure_reconcile_statements_total",
	Help: "The total number of DDL statements applied by the reconciler",
})

var AdvisoryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "procure_advisory_failures_total",
	Help: "The total number of non-fatal schema failures by object kind",
}, []string{"kind"})

var OrphansRepaired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "procure_orphans_repaired_total",
	Help: "The total number of parent rows synthesized by the integrity auditor",
})

var AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "procure_audit_failures_total",
	Help: "The total number of integrity audits that failed",
})

var RepairDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "procure_repair_dropped_total",
	Help: "The total number of objects dropped by emergency trigger repair by kind",
}, []string{"kind"})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "procure_http_requests_total",
	Help: "The total number of HTTP requests by route and status code",
}, []string{"route", "code"})

var HTTPDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "procure_http_request_duration_seconds",
	Help:    "The duration of HTTP requests",
	Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
})

var InflightRequests = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "procure_http_inflight_requests",
	Help: "The number of HTTP requests currently being served",
})

// SystemStats contains the metrics and system stats
type SystemStats struct {
	Metrics struct {
		ReconcileRuns       float64 `json:"reconcileRuns"`
		ReconcileDuration   float64 `json:"reconcileDuration"`
		ReconcileStatements float64 `json:"reconcileStatements"`
		AdvisoryFailures    float64 `json:"advisoryFailures"`
		OrphansRepaired     float64 `json:"orphansRepaired"`
		AuditFailures       float64 `json:"auditFailures"`
		RepairDropped       float64 `json:"repairDropped"`
		HTTPRequests        float64 `json:"httpRequests"`
		InflightRequests    float64 `json:"inflightRequests"`
	} `json:"metrics"`
	Memory *mem.VirtualMemoryStat `json:"memory"`
	Load   *load.AvgStat          `json:"load"`
}

// collect calls the function for each metric associated with the Collector
func collect(col prometheus.Collector, do func(*dto.Metric)) {
	c := make(chan prometheus.Metric)
	go func(c chan prometheus.Metric) {
		col.Collect(c)
		close(c)
	}(c)
	for x := range c { // eg range across distinct label vector values
		m := dto.Metric{}
		_ = x.Write(&m)
		do(&m)
	}
}

// getMetricValue returns the sum of the Counter metrics associated with the Collector
// e.g. the metric for a non-vector, or the sum of the metrics for vector labels.
// If the metric is a Histogram then number of samples is used.
func getMetricValue(col prometheus.Collector) float64 {
	var total float64
	collect(col, func(m *dto.Metric) {
		if h := m.GetHistogram(); h != nil {
			total += float64(h.GetSampleCount())
		} else if g := m.GetGauge(); g != nil {
			total += g.GetValue()
		} else {
			total += m.GetCounter().GetValue()
		}
	})
	return total
}

// GetSystemStats returns a snapshot of the system stats
func GetSystemStats() (*SystemStats, error) {
	var s SystemStats
	var err error
	s.Metrics.ReconcileRuns = getMetricValue(ReconcileRuns)
	s.Metrics.ReconcileDuration = getMetricValue(ReconcileDuration)
	s.Metrics.ReconcileStatements = getMetricValue(ReconcileStatements)
	s.Metrics.AdvisoryFailures = getMetricValue(AdvisoryFailures)
	s.Metrics.OrphansRepaired = getMetricValue(OrphansRepaired)
	s.Metrics.AuditFailures = getMetricValue(AuditFailures)
	s.Metrics.RepairDropped = getMetricValue(RepairDropped)
	s.Metrics.HTTPRequests = getMetricValue(HTTPRequests)
	s.Metrics.InflightRequests = getMetricValue(InflightRequests)
	s.Memory, err = mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	s.Load, err = load.Avg()
	return &s, err
}
