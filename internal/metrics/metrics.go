// Package metrics 提供 morningbrief 的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "morningbrief"

var (
	// FeedFetches 订阅源抓取次数。
	FeedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Total number of feed fetches",
		},
		[]string{"status"},
	)

	// ArticlesProcessed 新闻加工次数，outcome 为 ok 或 degraded。
	ArticlesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_processed_total",
			Help:      "Total number of processed articles by outcome",
		},
		[]string{"outcome"},
	)

	// Syntheses 语音合成次数。
	Syntheses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syntheses_total",
			Help:      "Total number of speech syntheses",
		},
		[]string{"engine", "status"},
	)

	// SynthesisDuration 语音合成耗时。
	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of speech synthesis in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"engine"},
	)

	// Notifications 推送次数。
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of notifications sent",
		},
		[]string{"channel", "status"},
	)

	// HTTPRequests HTTP 请求数。
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)
)

// RecordFetch 记录一次订阅源抓取。
func RecordFetch(err error) {
	FeedFetches.WithLabelValues(status(err)).Inc()
}

// RecordArticle 记录一条新闻的加工结果。
func RecordArticle(degraded bool) {
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	ArticlesProcessed.WithLabelValues(outcome).Inc()
}

// RecordSynthesis 记录一次语音合成（cache 命中时 engine 为 cache）。
func RecordSynthesis(engine string, err error, seconds float64) {
	Syntheses.WithLabelValues(engine, status(err)).Inc()
	SynthesisDuration.WithLabelValues(engine).Observe(seconds)
}

// RecordNotification 记录一次推送。
func RecordNotification(channel string, err error) {
	Notifications.WithLabelValues(channel, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
