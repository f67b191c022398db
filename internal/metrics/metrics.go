// Package metrics Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal 评分周期执行次数
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfc_ticks_total",
		Help: "Total number of arena ticks executed",
	})

	// TickDuration 单次评分周期耗时
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tfc_tick_duration_seconds",
		Help:    "Arena tick duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// LiveFights 进行中的对战数
	LiveFights = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tfc_live_fights",
		Help: "Number of live fights seen by the last tick",
	})

	// FillsRecorded 记录的成交数，按匹配方式区分
	FillsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfc_fills_recorded_total",
		Help: "Fills forwarded to the trade recorder",
	}, []string{"match"})

	// FillsSkipped 被去重或忽略的成交数
	FillsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfc_fills_skipped_total",
		Help: "Fills skipped by the detector",
	}, []string{"reason"})

	// DetectionErrors 成交检测失败次数
	DetectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfc_fill_detection_errors_total",
		Help: "Failed (user, fight) detection groups",
	})

	// FightsFinalized 结算的对战数
	FightsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfc_fights_finalized_total",
		Help: "Fights moved to a terminal state",
	}, []string{"outcome"})

	// FightErrors 单场对战处理失败次数
	FightErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfc_fight_errors_total",
		Help: "Per-fight processing failures inside a tick",
	})

	// WebSocketClients 当前 websocket 连接数
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tfc_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// BroadcastErrors 广播失败次数
	BroadcastErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfc_broadcast_errors_total",
		Help: "Failed broadcast publishes",
	}, []string{"publisher"})
)

// Handler Prometheus 指标接口
func Handler() http.Handler {
	return promhttp.Handler()
}
