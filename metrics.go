// metrics.go implements the optional Prometheus surface. All methods are
// nil-receiver safe so the hot paths need no enabled checks.
package loamkv

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aalhour/loamkv/internal/manifest"
)

type storeMetrics struct {
	reg prometheus.Registerer

	memtableBytes   prometheus.Gauge
	levelTables     *prometheus.GaugeVec
	levelBytes      *prometheus.GaugeVec
	flushTotal      prometheus.Counter
	compactionTotal *prometheus.CounterVec
	applyQueueDepth prometheus.Gauge
	lastAppliedSeq  prometheus.Gauge
	applyLag        prometheus.Gauge
	walAppends      prometheus.Counter
	walBytes        prometheus.Counter
}

// newStoreMetrics registers the collectors with reg. A nil reg disables
// metrics by returning a nil set.
func newStoreMetrics(reg prometheus.Registerer) (*storeMetrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &storeMetrics{
		reg: reg,
		memtableBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loamkv_memtable_bytes",
			Help: "Approximate size of the live memtable in bytes.",
		}),
		levelTables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loamkv_level_tables",
			Help: "Number of live SSTables per level.",
		}, []string{"level"}),
		levelBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loamkv_level_bytes",
			Help: "Total data bytes of live SSTables per level.",
		}, []string{"level"}),
		flushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loamkv_flush_total",
			Help: "Completed memtable flushes.",
		}),
		compactionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loamkv_compaction_total",
			Help: "Finished compactions by status.",
		}, []string{"status"}),
		applyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loamkv_apply_queue_depth",
			Help: "Entries waiting in the async apply queue.",
		}),
		lastAppliedSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loamkv_last_applied_seq",
			Help: "Highest WAL sequence applied to the memtable.",
		}),
		applyLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loamkv_apply_lag",
			Help: "Last appended sequence minus last applied sequence.",
		}),
		walAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loamkv_wal_appends_total",
			Help: "Records appended to the WAL.",
		}),
		walBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loamkv_wal_bytes_total",
			Help: "Bytes appended to the WAL.",
		}),
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *storeMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.memtableBytes, m.levelTables, m.levelBytes, m.flushTotal,
		m.compactionTotal, m.applyQueueDepth, m.lastAppliedSeq, m.applyLag,
		m.walAppends, m.walBytes,
	}
}

func (m *storeMetrics) unregister() {
	if m == nil {
		return
	}
	for _, c := range m.collectors() {
		m.reg.Unregister(c)
	}
}

func (m *storeMetrics) observeAppend(frameBytes int) {
	if m == nil {
		return
	}
	m.walAppends.Inc()
	m.walBytes.Add(float64(frameBytes))
}

func (m *storeMetrics) observeMemtable(bytes uint64) {
	if m == nil {
		return
	}
	m.memtableBytes.Set(float64(bytes))
}

func (m *storeMetrics) observeFlush() {
	if m == nil {
		return
	}
	m.flushTotal.Inc()
}

func (m *storeMetrics) observeCompaction(status string) {
	if m == nil {
		return
	}
	m.compactionTotal.WithLabelValues(status).Inc()
}

func (m *storeMetrics) observeApply(queueDepth int, lastApplied, lastAppended uint64) {
	if m == nil {
		return
	}
	m.applyQueueDepth.Set(float64(queueDepth))
	m.lastAppliedSeq.Set(float64(lastApplied))
	lag := float64(0)
	if lastAppended > lastApplied {
		lag = float64(lastAppended - lastApplied)
	}
	m.applyLag.Set(lag)
}

// observeLevels refreshes the per-level gauges from the catalog.
func (m *storeMetrics) observeLevels(catalog *manifest.Catalog) {
	if m == nil {
		return
	}
	m.levelTables.Reset()
	m.levelBytes.Reset()
	for _, level := range catalog.Levels() {
		tables := catalog.Level(level)
		var bytes uint64
		for _, t := range tables {
			bytes += t.DataSize
		}
		label := strconv.Itoa(level)
		m.levelTables.WithLabelValues(label).Set(float64(len(tables)))
		m.levelBytes.WithLabelValues(label).Set(float64(bytes))
	}
}
