package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GeoCollector HTTP・取り込み・変換のPrometheusメトリクス
type GeoCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests     *prometheus.CounterVec
	HTTPDurations    *prometheus.HistogramVec
	Uploads          *prometheus.CounterVec
	FeaturesIngested prometheus.Counter
	FeaturesSkipped  prometheus.Counter
	CRSTransforms    *prometheus.CounterVec
	Conversions      *prometheus.CounterVec
}

// NewGeoCollector reg にメトリクスを登録する。nil の場合はデフォルトレジストリを使う
func NewGeoCollector(reg prometheus.Registerer) (*GeoCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &GeoCollector{gatherer: gatherer}
	var err error

	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodata_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "geodata_http_requests_total"); err != nil {
		return nil, err
	}

	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geodata_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "route"}), "geodata_http_request_duration_seconds"); err != nil {
		return nil, err
	}

	if c.Uploads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodata_uploads_total",
		Help: "Uploaded files, labeled by detected file type and result.",
	}, []string{"file_type", "result"}), "geodata_uploads_total"); err != nil {
		return nil, err
	}

	if c.FeaturesIngested, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodata_features_ingested_total",
		Help: "Features stored after coordinate normalization.",
	}), "geodata_features_ingested_total"); err != nil {
		return nil, err
	}

	if c.FeaturesSkipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodata_features_skipped_total",
		Help: "Features dropped because their geometry could not be normalized.",
	}), "geodata_features_skipped_total"); err != nil {
		return nil, err
	}

	if c.CRSTransforms, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodata_crs_transforms_total",
		Help: "Features reprojected to WGS84, labeled by detected source EPSG code.",
	}, []string{"epsg"}), "geodata_crs_transforms_total"); err != nil {
		return nil, err
	}

	if c.Conversions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodata_conversions_total",
		Help: "Export conversions, labeled by output format and result.",
	}, []string{"format", "result"}), "geodata_conversions_total"); err != nil {
		return nil, err
	}

	return c, nil
}

// Middleware gin のルートパターン単位でリクエスト数と処理時間を記録する
func (c *GeoCollector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler /metrics 用のハンドラー
func (c *GeoCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordUpload アップロード1件の結果を記録する。transformed は EPSG ごとの変換件数
func (c *GeoCollector) RecordUpload(fileType, result string, stored, skipped int, transformed map[string]int) {
	if c == nil {
		return
	}
	if fileType == "" {
		fileType = "unknown"
	}
	c.Uploads.WithLabelValues(fileType, result).Inc()
	c.FeaturesIngested.Add(float64(stored))
	c.FeaturesSkipped.Add(float64(skipped))
	for epsg, n := range transformed {
		c.CRSTransforms.WithLabelValues(epsg).Add(float64(n))
	}
}

// RecordConversion エクスポート1件の結果を記録する
func (c *GeoCollector) RecordConversion(format, result string) {
	if c == nil {
		return
	}
	c.Conversions.WithLabelValues(format, result).Inc()
}

// register 既に同名のコレクターが登録済みであればそれを返す
func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
