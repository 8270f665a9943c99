package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(publishTotal, publishPollAttempts, tokenRefreshTotal, notifyTotal)
}

var publishTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instagram_publish_total",
		Help: "Instagram publish attempts, labeled by outcome.",
	},
	[]string{"outcome"}, // 'published', 'token_expired', 'error'
)

var publishPollAttempts = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "instagram_container_poll_attempts",
		Help:    "Container status polls before a publish could proceed.",
		Buckets: []float64{1, 2, 3, 5, 10, 15, 20, 30},
	},
)

var tokenRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instagram_token_refresh_total",
		Help: "Token refresh sweep results, labeled by outcome.",
	},
	[]string{"outcome"}, // 'refreshed', 'skipped_expired', 'failed'
)

var notifyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_send_total",
		Help: "Notification deliveries, labeled by channel and outcome.",
	},
	[]string{"channel", "outcome"}, // channel: 'push'|'email', outcome: 'sent'|'failed'
)

func IncPublish(outcome string)      { publishTotal.WithLabelValues(outcome).Inc() }
func ObservePollAttempts(n int)      { publishPollAttempts.Observe(float64(n)) }
func IncTokenRefresh(outcome string) { tokenRefreshTotal.WithLabelValues(outcome).Inc() }

func IncNotify(channel string, ok bool) {
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	notifyTotal.WithLabelValues(channel, outcome).Inc()
}
