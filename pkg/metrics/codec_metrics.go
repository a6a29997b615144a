package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

const codecMetricSubsystem = "codec"

var (
	CodecObjectsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: simsaveNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "objects_written_total",
			Help:      "写出的对象体数量",
		})

	CodecBackrefsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: simsaveNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "backrefs_written_total",
			Help:      "写出的回引数量",
		})

	CodecObjectsRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: simsaveNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "objects_read_total",
			Help:      "读入并实例化的对象数量",
		})

	CodecErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: simsaveNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "errors_total",
			Help:      "编解码错误次数，按错误码区分",
		}, []string{directionLabelName, errorCodeLabelName})
)

// ObserveCodecError 按错误码累加一次编解码错误，err 为 nil 时忽略。
func ObserveCodecError(direction string, err error) {
	if err == nil {
		return
	}
	CodecErrors.WithLabelValues(direction, merr.CodeName(err)).Inc()
}

func registerCodecMetrics(r prometheus.Registerer) {
	r.MustRegister(CodecObjectsWritten)
	r.MustRegister(CodecBackrefsWritten)
	r.MustRegister(CodecObjectsRead)
	r.MustRegister(CodecErrors)
}
