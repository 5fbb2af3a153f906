// Package observe 暴露 Prometheus 指标
package observe

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clickflow_http_request_duration_seconds",
		Help:    "HTTP 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "code"})

	IngestedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clickflow_ingested_records_total",
		Help: "按来源统计的已摄取记录数",
	}, []string{"source"})

	IngestionJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clickflow_ingestion_jobs_total",
		Help: "按类型与结果统计的摄取任务数",
	}, []string{"kind", "status"})

	ClickHouseUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clickflow_clickhouse_up",
		Help: "最近一次 ClickHouse 连通性检查结果 (1=成功)",
	})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(httpRequestDuration, IngestedRecords, IngestionJobs, ClickHouseUp)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }

// PrometheusMiddleware 以路由模板为 path 标签记录请求耗时
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// ObserveJob 记录一次摄取任务的结果
func ObserveJob(kind, source string, count int64, err error) {
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	IngestionJobs.WithLabelValues(kind, status).Inc()
	if count > 0 {
		IngestedRecords.WithLabelValues(source).Add(float64(count))
	}
}
