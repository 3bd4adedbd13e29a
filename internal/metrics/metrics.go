package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tutoring"

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "Processed API requests",
	}, []string{"method", "route", "status"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "handler_errors_total", Help: "API handler errors (5xx)",
	})
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "notifications_total", Help: "Outgoing notifications by channel and outcome",
	}, []string{"channel", "outcome"})
	LedgerEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ledger_events_total", Help: "Ledger writes by event type and outcome (inserted|duplicate)",
	}, []string{"type", "outcome"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})

	// Периодические задачи процесса (сейчас это проход напоминаний и добора списаний).
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "job_runs_total",
		Help: "In-process scheduled runs (reminder and consumption backfill pass) by outcome: ok|failed|panic",
	}, []string{"job", "outcome"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "job_duration_seconds",
		Help: "Duration of one scheduled pass; a pass sends reminders and backfills a week of lessons",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"job"})
	JobLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "job_last_success_timestamp_seconds",
		Help: "Unix time of the last clean pass; alert when reminders stop going out",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HandlerErrors, Notifications, LedgerEvents, DBPing,
		JobRuns, JobDuration, JobLastSuccess)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// Notification — channel: sms|email|telegram; outcome: sent|failed|skipped.
func Notification(channel, outcome string) {
	Notifications.WithLabelValues(channel, outcome).Inc()
}

func LedgerEvent(eventType string, inserted bool) {
	outcome := "inserted"
	if !inserted {
		outcome = "duplicate"
	}
	LedgerEvents.WithLabelValues(eventType, outcome).Inc()
}

// JobRun — итог одного запуска задачи; outcome: ok|failed|panic.
func JobRun(job, outcome string, d time.Duration, at time.Time) {
	JobRuns.WithLabelValues(job, outcome).Inc()
	JobDuration.WithLabelValues(job).Observe(d.Seconds())
	if outcome == "ok" {
		JobLastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
	}
}
