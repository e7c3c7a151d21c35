package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace は全メトリクス共通のネームスペース。
const namespace = "biblioteca"

// Collector はサービス1つ分のPrometheusメトリクスを保持する。
type Collector struct {
	// registry はこのサービス専用のレジストリ。
	registry *prometheus.Registry

	// requestsTotal は処理したHTTPリクエストの総数。
	requestsTotal *prometheus.CounterVec
	// requestDuration はHTTPリクエストの処理時間ヒストグラム。
	requestDuration *prometheus.HistogramVec
	// cacheEvents はキャッシュ操作の結果（hit/miss/error）の総数。
	cacheEvents *prometheus.CounterVec
	// rateLimitRejections はレート制限で拒否したリクエストの総数。
	rateLimitRejections prometheus.Counter
	// upstreamRetries は下流サービスへのリトライの総数。
	upstreamRetries *prometheus.CounterVec
	// upstreamFailures はリトライ枯渇で失敗した下流呼び出しの総数。
	upstreamFailures *prometheus.CounterVec
}

// New は指定サービス名（subsystem）のCollectorを生成する。
func New(service string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled",
		}, []string{"method", "path", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 1.5},
		}, []string{"method", "path"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "cache_events_total",
			Help:      "Total number of response cache lookups by result",
		}, []string{"result"}),
		rateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "upstream_retries_total",
			Help:      "Total number of retries against downstream services",
		}, []string{"service"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "upstream_failures_total",
			Help:      "Total number of downstream calls that exhausted all retries",
		}, []string{"service"}),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.cacheEvents,
		c.rateLimitRejections,
		c.upstreamRetries,
		c.upstreamFailures,
	)

	return c
}

// Middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
// パスラベルにはルート定義のパターン（例: /api/books/:id）を使用し、
// ラベルの組み合わせ爆発を避ける。
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.requestsTotal.WithLabelValues(
			ctx.Request.Method, path, strconv.Itoa(ctx.Writer.Status()),
		).Inc()
		c.requestDuration.WithLabelValues(
			ctx.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler は/metricsエンドポイント用のHTTPハンドラを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// CacheHit はキャッシュヒットを1件記録する。
func (c *Collector) CacheHit() {
	c.cacheEvents.WithLabelValues("hit").Inc()
}

// CacheMiss はキャッシュミスを1件記録する。
func (c *Collector) CacheMiss() {
	c.cacheEvents.WithLabelValues("miss").Inc()
}

// CacheError はキャッシュバックエンドのエラーを1件記録する。
func (c *Collector) CacheError() {
	c.cacheEvents.WithLabelValues("error").Inc()
}

// RateLimited はレート制限による拒否を1件記録する。
func (c *Collector) RateLimited() {
	c.rateLimitRejections.Inc()
}

// UpstreamRetry は下流サービスへのリトライを1件記録する。
func (c *Collector) UpstreamRetry(service string) {
	c.upstreamRetries.WithLabelValues(service).Inc()
}

// UpstreamFailure はリトライ枯渇による下流呼び出しの失敗を1件記録する。
func (c *Collector) UpstreamFailure(service string) {
	c.upstreamFailures.WithLabelValues(service).Inc()
}
