package notification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 投递结果标签
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Metrics 通道投递指标
type Metrics struct {
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewMetrics 在 reg 上注册投递指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gymdesk",
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gymdesk",
			Subsystem: "notification",
			Name:      "delivery_seconds",
			Help:      "Time spent in a single channel send.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
	}
}

func (m *Metrics) observe(channel string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeFailed
	if ok {
		outcome = OutcomeSent
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
	m.latency.WithLabelValues(channel).Observe(elapsed.Seconds())
}
