package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobStartsTotal, jobResultsTotal, jobThrottledTotal, queueDepth)
}

var jobStartsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "scheduler_job_starts_total",
		Help: "Total number of job executions started (post rate limiter).",
	},
)

var jobResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scheduler_job_results_total",
		Help: "Job execution outcomes, labeled by result.",
	},
	[]string{"result"}, // 'completed', 'failed'
)

var jobThrottledTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "scheduler_job_throttled_total",
		Help: "Dispatch attempts deferred by the global rate limiter.",
	},
)

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "scheduler_queue_entries",
		Help: "Current queue entries by status.",
	},
	[]string{"status"},
)

func IncJobStart()              { jobStartsTotal.Inc() }
func IncJobResult(result string) { jobResultsTotal.WithLabelValues(result).Inc() }
func IncJobThrottled()          { jobThrottledTotal.Inc() }

func SetQueueDepth(status string, n float64) {
	queueDepth.WithLabelValues(status).Set(n)
}
