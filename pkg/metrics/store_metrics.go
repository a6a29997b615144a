package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const storeMetricSubsystem = "store"

var (
	StoreSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: simsaveNamespace,
			Subsystem: storeMetricSubsystem,
			Name:      "saves_total",
			Help:      "存档写入次数，按结果区分",
		}, []string{statusLabelName})

	StoreLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: simsaveNamespace,
			Subsystem: storeMetricSubsystem,
			Name:      "loads_total",
			Help:      "存档读取次数，按结果区分",
		}, []string{statusLabelName})

	StoreSaveLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: simsaveNamespace,
			Subsystem: storeMetricSubsystem,
			Name:      "save_latency_ms",
			Help:      "单个存档写入耗时（毫秒）",
			Buckets:   buckets,
		})

	StoreLoadLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: simsaveNamespace,
			Subsystem: storeMetricSubsystem,
			Name:      "load_latency_ms",
			Help:      "单个存档读取耗时（毫秒）",
			Buckets:   buckets,
		})

	StoreStreamBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: simsaveNamespace,
			Subsystem: storeMetricSubsystem,
			Name:      "stream_bytes",
			Help:      "对象流落盘前（写）或解压后（读）的字节数",
			Buckets:   sizeBuckets,
		}, []string{directionLabelName})

	StoreCommitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: simsaveNamespace,
			Subsystem: storeMetricSubsystem,
			Name:      "commit_retries_total",
			Help:      "提交存档目录时发生的重试次数",
		})
)

func registerStoreMetrics(r prometheus.Registerer) {
	r.MustRegister(StoreSaves)
	r.MustRegister(StoreLoads)
	r.MustRegister(StoreSaveLatency)
	r.MustRegister(StoreLoadLatency)
	r.MustRegister(StoreStreamBytes)
	r.MustRegister(StoreCommitRetries)
}
