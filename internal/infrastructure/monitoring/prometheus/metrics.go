package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/application/resolver"
)

var (
	SnapshotDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}
	HTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
)

// RegistryMetrics records ingest runs and the admin HTTP surface.
type RegistryMetrics struct {
	RecordsTotal       CounterVec
	SnapshotsTotal     CounterVec
	SnapshotDuration   HistogramVec
	EdgesTotal         CounterVec
	UnresolvedTotal    CounterVec
	EntitiesTotal      CounterVec
	LastSnapshotUnix   GaugeVec
	HTTPRequestsTotal  CounterVec
	HTTPRequestLatency HistogramVec
	RunsInFlight       GaugeVec
}

// NewRegistryMetrics registers every metric on c.
func NewRegistryMetrics(c MetricsCollector) *RegistryMetrics {
	return &RegistryMetrics{
		RecordsTotal: c.RegisterCounter("records_total",
			"Catalogue rows by reconciliation outcome.", "category", "outcome"),
		SnapshotsTotal: c.RegisterCounter("snapshots_total",
			"Snapshot passes by result (marked, unmarked, skipped, failed).", "category", "result"),
		SnapshotDuration: c.RegisterHistogram("snapshot_duration_seconds",
			"Wall time of one snapshot pass.", SnapshotDurationBuckets, "category", "mode"),
		EdgesTotal: c.RegisterCounter("relation_edges_total",
			"Relation edges written, by operation.", "category", "op"),
		UnresolvedTotal: c.RegisterCounter("relation_unresolved_total",
			"Entity strings that resolved to nothing.", "category"),
		EntitiesTotal: c.RegisterCounter("entities_total",
			"Entity resolutions by kind and outcome.", "kind", "outcome"),
		LastSnapshotUnix: c.RegisterGauge("last_snapshot_timestamp_seconds",
			"Unix time of the last completed snapshot pass.", "category"),
		HTTPRequestsTotal: c.RegisterCounter("http_requests_total",
			"Admin HTTP requests.", "method", "path", "status"),
		HTTPRequestLatency: c.RegisterHistogram("http_request_duration_seconds",
			"Admin HTTP request latency.", HTTPDurationBuckets, "method", "path"),
		RunsInFlight: c.RegisterGauge("runs_in_flight",
			"Ingest runs currently executing.", "trigger"),
	}
}

var _ ingest.Metrics = (*RegistryMetrics)(nil)

func (m *RegistryMetrics) ObserveSnapshot(report *ingest.SnapshotReport, elapsed time.Duration) {
	if report == nil {
		return
	}
	category := report.Category
	s := report.Stats
	for outcome, n := range map[string]int{
		"created":   s.Created,
		"updated":   s.Updated,
		"unchanged": s.Unchanged,
		"skipped":   s.Skipped - s.SkippedByStaleness,
		"stale":     s.SkippedByStaleness,
		"error":     s.Errors,
	} {
		if n > 0 {
			m.RecordsTotal.WithLabelValues(category, outcome).Add(float64(n))
		}
	}
	if report.Relations.EdgesDeleted > 0 {
		m.EdgesTotal.WithLabelValues(category, "deleted").Add(float64(report.Relations.EdgesDeleted))
	}
	if report.Relations.EdgesInserted > 0 {
		m.EdgesTotal.WithLabelValues(category, "inserted").Add(float64(report.Relations.EdgesInserted))
	}
	if report.Relations.Unresolved > 0 {
		m.UnresolvedTotal.WithLabelValues(category).Add(float64(report.Relations.Unresolved))
	}

	m.SnapshotsTotal.WithLabelValues(category, snapshotResult(report)).Inc()
	if !report.Skipped {
		mode := report.Mode
		if mode == "" {
			mode = "whole"
		}
		m.SnapshotDuration.WithLabelValues(category, mode).Observe(elapsed.Seconds())
		m.LastSnapshotUnix.WithLabelValues(category).Set(float64(time.Now().Unix()))
	}
}

func snapshotResult(r *ingest.SnapshotReport) string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Skipped:
		return "skipped"
	case r.Marked:
		return "marked"
	default:
		return "unmarked"
	}
}

func (m *RegistryMetrics) ObserveEntities(stats resolver.Stats) {
	for _, e := range []struct {
		kind, outcome string
		n             int
	}{
		{"person", "matched", stats.PersonsMatched},
		{"person", "created", stats.PersonsCreated},
		{"organization", "matched", stats.OrgsMatched},
		{"organization", "fuzzy_matched", stats.OrgsFuzzyMatched},
		{"organization", "created", stats.OrgsCreated},
		{"country", "missed", stats.CountriesMissed},
		{"any", "create_failed", stats.CreateFailures},
	} {
		if e.n > 0 {
			m.EntitiesTotal.WithLabelValues(e.kind, e.outcome).Add(float64(e.n))
		}
	}
}

// ObserveHTTP records one admin request.
func (m *RegistryMetrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestLatency.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// TrackRun marks a run in flight until the returned func is called.
func (m *RegistryMetrics) TrackRun(trigger string) func() {
	g := m.RunsInFlight.WithLabelValues(trigger)
	g.Inc()
	return g.Dec
}
