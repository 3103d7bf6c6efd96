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
// カタログクライアント、サービス層、ジョブから利用する。
type MetricsCollector interface {
	RecordCatalogRequest(endpoint string, statusCode int, duration time.Duration)
	RecordCatalogRetry(endpoint string)
	RecordSetAdded(cardCount int)
	RecordSetRemoved()
	RecordCardToggled(collected bool)
	RecordCardsUpserted(count int)
	RecordCountersRepaired(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	catalogRequests *prometheus.CounterVec
	catalogRetries  *prometheus.CounterVec
	catalogLatency  *prometheus.HistogramVec
	setsAdded       prometheus.Counter
	setsRemoved     prometheus.Counter
	cardsSeeded     prometheus.Counter
	cardToggles     *prometheus.CounterVec
	cardsUpserted   prometheus.Counter
	countersFixed   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		catalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardbinder_catalog_requests_total",
			Help: "カタログAPIへのリクエスト数（エンドポイント、ステータス別）",
		}, []string{"endpoint", "status_code"}),
		catalogRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardbinder_catalog_retries_total",
			Help: "カタログAPI呼び出しのリトライ数",
		}, []string{"endpoint"}),
		catalogLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardbinder_catalog_latency_seconds",
			Help:    "カタログAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		setsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardbinder_sets_added_total",
			Help: "登録されたセットの合計数",
		}),
		setsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardbinder_sets_removed_total",
			Help: "削除されたセットの合計数",
		}),
		cardsSeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardbinder_cards_seeded_total",
			Help: "セット登録時に作成されたカードの合計数",
		}),
		cardToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardbinder_card_toggles_total",
			Help: "カード収集状態の変更数",
		}, []string{"collected"}),
		cardsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardbinder_cards_upserted_total",
			Help: "一括初期化でアップサートされたカードの合計数",
		}),
		countersFixed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardbinder_progress_counters_repaired_total",
			Help: "再集計ジョブで修復された収集カウンタの合計数",
		}),
	}

	reg.MustRegister(
		c.catalogRequests,
		c.catalogRetries,
		c.catalogLatency,
		c.setsAdded,
		c.setsRemoved,
		c.cardsSeeded,
		c.cardToggles,
		c.cardsUpserted,
		c.countersFixed,
	)

	return c
}

// RecordCatalogRequest はカタログAPIの呼び出し結果を記録する。
// 通信エラーでステータスが得られない場合はstatusCodeに0を渡す。
func (c *Collector) RecordCatalogRequest(endpoint string, statusCode int, duration time.Duration) {
	c.catalogRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.catalogLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCatalogRetry はカタログAPI呼び出しのリトライを記録する。
func (c *Collector) RecordCatalogRetry(endpoint string) {
	c.catalogRetries.WithLabelValues(endpoint).Inc()
}

// RecordSetAdded はセット登録と初期投入したカード数を記録する。
func (c *Collector) RecordSetAdded(cardCount int) {
	c.setsAdded.Inc()
	c.cardsSeeded.Add(float64(cardCount))
}

// RecordSetRemoved はセット削除を記録する。
func (c *Collector) RecordSetRemoved() {
	c.setsRemoved.Inc()
}

// RecordCardToggled はカード収集状態の変更を記録する。
func (c *Collector) RecordCardToggled(collected bool) {
	c.cardToggles.WithLabelValues(strconv.FormatBool(collected)).Inc()
}

// RecordCardsUpserted は一括初期化でアップサートされたカード数を記録する。
func (c *Collector) RecordCardsUpserted(count int) {
	c.cardsUpserted.Add(float64(count))
}

// RecordCountersRepaired は再集計ジョブで修復した行数を記録する。
func (c *Collector) RecordCountersRepaired(count int64) {
	c.countersFixed.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordCatalogRequest(string, int, time.Duration) {}
func (NopCollector) RecordCatalogRetry(string)                       {}
func (NopCollector) RecordSetAdded(int)                              {}
func (NopCollector) RecordSetRemoved()                               {}
func (NopCollector) RecordCardToggled(bool)                          {}
func (NopCollector) RecordCardsUpserted(int)                         {}
func (NopCollector) RecordCountersRepaired(int64)                    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
