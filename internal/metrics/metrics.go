// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証・イベントのサービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordLoginSuccess(method string)
	RecordLoginFailure(method string)
	RecordTokenValidationFailure()
	RecordAuthorizationDenied()
	RecordEventCreated()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess     *prometheus.CounterVec
	loginFailure     *prometheus.CounterVec
	tokenFailure     prometheus.Counter
	authzDenied      prometheus.Counter
	eventsCreated    prometheus.Counter
	contactsReceived prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventmaster_login_success_total",
			Help: "ログイン成功の合計数（認証方式別）",
		}, []string{"method"}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventmaster_login_failure_total",
			Help: "ログイン失敗の合計数（認証方式別）",
		}, []string{"method"}),
		tokenFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventmaster_token_validation_failure_total",
			Help: "セッショントークン検証失敗の合計数",
		}),
		authzDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventmaster_authorization_denied_total",
			Help: "所有者不一致によるイベント書き込み拒否の合計数",
		}),
		eventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventmaster_events_created_total",
			Help: "作成されたイベントの合計数",
		}),
		contactsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventmaster_contact_messages_total",
			Help: "受信した問い合わせメッセージの合計数",
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.tokenFailure,
		c.authzDenied,
		c.eventsCreated,
		c.contactsReceived,
	)

	return c
}

// RecordLoginSuccess はログイン成功を認証方式別に記録する。
func (c *Collector) RecordLoginSuccess(method string) {
	c.loginSuccess.WithLabelValues(method).Inc()
}

// RecordLoginFailure はログイン失敗を認証方式別に記録する。
func (c *Collector) RecordLoginFailure(method string) {
	c.loginFailure.WithLabelValues(method).Inc()
}

// RecordTokenValidationFailure はセッショントークン検証失敗を記録する。
func (c *Collector) RecordTokenValidationFailure() {
	c.tokenFailure.Inc()
}

// RecordAuthorizationDenied は所有者不一致による書き込み拒否を記録する。
func (c *Collector) RecordAuthorizationDenied() {
	c.authzDenied.Inc()
}

// RecordEventCreated はイベント作成を記録する。
func (c *Collector) RecordEventCreated() {
	c.eventsCreated.Inc()
}

// RecordContactMessage は問い合わせメッセージの受信を記録する。
func (c *Collector) RecordContactMessage() {
	c.contactsReceived.Inc()
}

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
