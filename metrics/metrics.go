package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service collectors plus Go runtime and process metrics.
var Registry = prometheus.NewRegistry()

var (
	PostsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "microblog_posts_created_total",
		Help: "Total posts created",
	})
	Engagements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "microblog_engagements_total",
		Help: "Engagement toggles by kind and resulting action",
	}, []string{"kind", "action"})
	NotificationsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "microblog_notifications_emitted_total",
		Help: "Notifications emitted by kind",
	}, []string{"kind"})
	FanoutTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "microblog_fanout_tasks_total",
		Help: "Timeline tasks processed by the worker",
	}, []string{"task", "result"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "microblog_http_request_duration_seconds",
		Help:    "HTTP request duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		PostsCreated, Engagements, NotificationsEmitted, FanoutTasks, HTTPDuration,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// IncEngagement records a toggle. added is the membership after the toggle.
func IncEngagement(kind string, added bool) {
	action := "removed"
	if added {
		action = "added"
	}
	Engagements.WithLabelValues(kind, action).Inc()
}

func IncNotification(kind string) { NotificationsEmitted.WithLabelValues(kind).Inc() }

func IncFanout(task string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	FanoutTasks.WithLabelValues(task, result).Inc()
}

func ObserveHTTP(route, method string, status int, start time.Time) {
	HTTPDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
