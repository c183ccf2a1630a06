package diag

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标使用进程内独立 Registry，避免与宿主程序的默认注册表冲突。
// - snaptrace_op_total{comp,stage,result}
// - snaptrace_error_total{comp,code}
// - snaptrace_op_duration_ms{comp,stage}
// - snaptrace_records_skipped_total
const metricsNamespace = "snaptrace"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	opTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "op_total",
		Help:      "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "error_total",
		Help:      "Errors by component and classified code.",
	}, []string{"comp", "code"})

	opDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "op_duration_ms",
		Help:      "Stage duration in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"comp", "stage"})

	skippedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "records_skipped_total",
		Help:      "Log lines skipped because they could not be decoded.",
	})
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddSkipped 累加被跳过的坏行数。
func AddSkipped(n int) {
	if n <= 0 {
		return
	}
	skippedTotal.Add(float64(n))
}

// Registry 返回指标注册表（测试与自定义导出用）。
func Registry() *prometheus.Registry { return registry }

// MetricsHandler 返回 /metrics 的 HTTP 处理器。
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
