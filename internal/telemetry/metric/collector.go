package metric

import "github.com/prometheus/client_golang/prometheus"

// SizeFunc reports the on-disk size of a badger database.
type SizeFunc func() (lsm, vlog int64)

// StorageCollector exports KV engine sizes, read at scrape time.
type StorageCollector struct {
	size SizeFunc

	lsmDesc   *prometheus.Desc
	vlogDesc  *prometheus.Desc
	totalDesc *prometheus.Desc
}

// NewStorageCollector creates a collector for the database named by role
// ("queue" on the client, "docstore" on the server).
func NewStorageCollector(role string, size SizeFunc) *StorageCollector {
	labels := prometheus.Labels{"db": role}
	return &StorageCollector{
		size: size,
		lsmDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "badger", "lsm_size_bytes"),
			"Badger LSM tree size in bytes.", nil, labels),
		vlogDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "badger", "value_log_size_bytes"),
			"Badger value log size in bytes.", nil, labels),
		totalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "badger", "total_size_bytes"),
			"Badger LSM plus value log size in bytes.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *StorageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lsmDesc
	ch <- c.vlogDesc
	ch <- c.totalDesc
}

// Collect implements prometheus.Collector.
func (c *StorageCollector) Collect(ch chan<- prometheus.Metric) {
	lsm, vlog := c.size()
	ch <- prometheus.MustNewConstMetric(c.lsmDesc, prometheus.GaugeValue, float64(lsm))
	ch <- prometheus.MustNewConstMetric(c.vlogDesc, prometheus.GaugeValue, float64(vlog))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(lsm+vlog))
}
