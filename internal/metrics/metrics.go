// Package metrics registers the Prometheus collectors for the service.
// A nil *Collectors is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lighthouse"

// Collectors groups every metric the service exports.
type Collectors struct {
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	httpInflight  prometheus.Gauge
	feedFetches   *prometheus.CounterVec
	translations  *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	notifications prometheus.Counter
	activeViews   prometheus.Gauge
}

// New builds the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Collectors, error) {
	collectors := &Collectors{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		feedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed synchronizer reads by part and outcome.",
		}, []string{"part", "outcome"}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Translation attempts by outcome.",
		}, []string{"outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Write actions by kind and outcome.",
		}, []string{"action", "outcome"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications raised by realtime events.",
		}),
		activeViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_views",
			Help:      "Live per-session view controllers.",
		}),
	}
	if registerer != nil {
		for _, collector := range []prometheus.Collector{
			collectors.httpRequests,
			collectors.httpLatency,
			collectors.httpInflight,
			collectors.feedFetches,
			collectors.translations,
			collectors.mutations,
			collectors.notifications,
			collectors.activeViews,
		} {
			if err := registerer.Register(collector); err != nil {
				return nil, err
			}
		}
	}
	return collectors, nil
}

// ObserveFetch counts a synchronizer read of part ("signals", "question", ...).
func (c *Collectors) ObserveFetch(part string, err error) {
	if c == nil {
		return
	}
	c.feedFetches.WithLabelValues(part, outcomeLabel(err)).Inc()
}

// ObserveTranslation counts a translation attempt.
func (c *Collectors) ObserveTranslation(outcome string) {
	if c == nil {
		return
	}
	c.translations.WithLabelValues(outcome).Inc()
}

// ObserveMutation counts a write action.
func (c *Collectors) ObserveMutation(action string, err error) {
	if c == nil {
		return
	}
	c.mutations.WithLabelValues(action, outcomeLabel(err)).Inc()
}

// ObserveNotification counts a raised notification.
func (c *Collectors) ObserveNotification() {
	if c == nil {
		return
	}
	c.notifications.Inc()
}

// SetActiveViews reports the number of live view controllers.
func (c *Collectors) SetActiveViews(count int) {
	if c == nil {
		return
	}
	c.activeViews.Set(float64(count))
}

// Middleware instruments gin requests. The path label is the registered route.
func (c *Collectors) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if c == nil {
			ctx.Next()
			return
		}
		start := time.Now()
		c.httpInflight.Inc()
		defer c.httpInflight.Dec()

		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request.Method
		c.httpRequests.WithLabelValues(method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpLatency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
