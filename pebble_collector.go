package klypt

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// PebbleCollector surfaces the health of the underlying pebble instance
// (compaction pressure, memtable and WAL growth) so a long-lived device
// install can be inspected without attaching a debugger.
type PebbleCollector struct {
	db *pebble.DB

	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
	diskUsage       *prometheus.Desc
	readAmp         *prometheus.Desc
}

func NewPebbleCollector(db *pebble.DB) *PebbleCollector {
	return &PebbleCollector{
		db: db,
		compactionCount: prometheus.NewDesc(
			"klypt_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"klypt_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes pending compaction",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"klypt_pebble_memtable_size_bytes",
			"Current size of the memtables",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"klypt_pebble_memtable_count",
			"Number of memtables",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"klypt_pebble_wal_size_bytes",
			"Current size of the write-ahead log",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"klypt_pebble_wal_bytes_written_total",
			"Total bytes written to the write-ahead log",
			nil, nil,
		),
		diskUsage: prometheus.NewDesc(
			"klypt_pebble_disk_usage_bytes",
			"Total disk space used by the store",
			nil, nil,
		),
		readAmp: prometheus.NewDesc(
			"klypt_pebble_read_amplification",
			"Current read amplification across all levels",
			nil, nil,
		),
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionDebt
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walSize
	ch <- pc.walBytesWritten
	ch <- pc.diskUsage
	ch <- pc.readAmp
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	m := pc.db.Metrics()
	readAmp := 0
	for _, level := range m.Levels {
		readAmp += int(level.Sublevels)
	}
	ch <- prometheus.MustNewConstMetric(pc.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(pc.compactionDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(pc.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(pc.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(pc.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(pc.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
	ch <- prometheus.MustNewConstMetric(pc.diskUsage, prometheus.GaugeValue, float64(m.DiskSpaceUsage()))
	ch <- prometheus.MustNewConstMetric(pc.readAmp, prometheus.GaugeValue, float64(readAmp))
}

// Collector returns a prometheus collector over this store's pebble
// metrics, suitable for RegisterStoreMetrics or direct registration.
func (s *Store) Collector() prometheus.Collector {
	return NewPebbleCollector(s.db)
}
