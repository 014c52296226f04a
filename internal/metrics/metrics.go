// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordPostCreated()
	RecordLikeToggled(liked bool)
	RecordFollowToggled(followed bool)
	RecordFeedRequest(view string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	postsCreated   prometheus.Counter
	likesToggled   *prometheus.CounterVec
	followsToggled *prometheus.CounterVec
	feedRequests   *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		postsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialnet_posts_created_total",
			Help: "作成された投稿の合計数",
		}),
		likesToggled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialnet_likes_toggled_total",
			Help: "いいねトグルの合計数（結果別）",
		}, []string{"result"}),
		followsToggled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialnet_follows_toggled_total",
			Help: "フォロートグルの合計数（結果別）",
		}, []string{"result"}),
		feedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialnet_feed_requests_total",
			Help: "フィード取得リクエストの合計数（ビュー別）",
		}, []string{"view"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialnet_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialnet_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialnet_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.postsCreated,
		c.likesToggled,
		c.followsToggled,
		c.feedRequests,
		c.httpStatus,
		c.requestLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordPostCreated は投稿作成を記録する。
func (c *Collector) RecordPostCreated() {
	c.postsCreated.Inc()
}

// RecordLikeToggled はいいねトグルの結果を記録する。
func (c *Collector) RecordLikeToggled(liked bool) {
	c.likesToggled.WithLabelValues(toggleResult(liked, "liked", "unliked")).Inc()
}

// RecordFollowToggled はフォロートグルの結果を記録する。
func (c *Collector) RecordFollowToggled(followed bool) {
	c.followsToggled.WithLabelValues(toggleResult(followed, "followed", "unfollowed")).Inc()
}

// RecordFeedRequest はフィード取得をビュー（global, following, profile）別に記録する。
func (c *Collector) RecordFeedRequest(view string) {
	c.feedRequests.WithLabelValues(view).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

func toggleResult(on bool, onLabel, offLabel string) string {
	if on {
		return onLabel
	}
	return offLabel
}

// Nop は何も記録しないMetricsCollector。メトリクス無効時とテストで使用する。
type Nop struct{}

func (Nop) RecordPostCreated()                 {}
func (Nop) RecordLikeToggled(bool)             {}
func (Nop) RecordFollowToggled(bool)           {}
func (Nop) RecordFeedRequest(string)           {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordSessionsPurged(int64)         {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
