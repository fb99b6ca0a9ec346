package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of provider calls by chain, provider and outcome",
		},
		[]string{"chain", "provider", "outcome"},
	)
	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Provider call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"chain", "provider"},
	)

	KeyPoolRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypool_rotations_total",
			Help: "Credential rotations after transient capacity errors",
		},
		[]string{"pool"},
	)
	KeyPoolExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypool_exhausted_total",
			Help: "Calls that failed on every credential of a pool",
		},
		[]string{"pool"},
	)

	LifecycleAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_acquire_total",
			Help: "Per-chat lock acquisition attempts by outcome",
		},
		[]string{"outcome"},
	)
	LifecycleCancelTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_cancel_total",
			Help: "Force cancellations that cleared an active job",
		},
	)
	LifecycleStaleDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_stale_drops_total",
			Help: "Side effects skipped because the job was no longer current",
		},
	)
	LifecycleJobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecycle_jobs_active",
			Help: "Chats currently holding the processing lock",
		},
	)

	RateLimitDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_denied_total",
			Help: "Requests denied by the per-user feature limiter",
		},
		[]string{"feature"},
	)

	RemindersFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_fired_total",
			Help: "Reminders delivered by the scheduler by type",
		},
		[]string{"type"},
	)
	ReminderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_errors_total",
			Help: "Reminder scheduler failures by stage",
		},
		[]string{"stage"},
	)

	MemorySweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_contexts_swept_total",
			Help: "Idle conversation contexts removed by the sweeper",
		},
	)

	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Inbound updates by classified command",
		},
		[]string{"command"},
	)
)

var initOnce sync.Once

// InitMetrics registers collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(ProviderRequestsTotal)
		prometheus.MustRegister(ProviderRequestDuration)
		prometheus.MustRegister(KeyPoolRotationsTotal)
		prometheus.MustRegister(KeyPoolExhaustedTotal)
		prometheus.MustRegister(LifecycleAcquireTotal)
		prometheus.MustRegister(LifecycleCancelTotal)
		prometheus.MustRegister(LifecycleStaleDropsTotal)
		prometheus.MustRegister(LifecycleJobsActive)
		prometheus.MustRegister(RateLimitDeniedTotal)
		prometheus.MustRegister(RemindersFiredTotal)
		prometheus.MustRegister(ReminderErrorsTotal)
		prometheus.MustRegister(MemorySweptTotal)
		prometheus.MustRegister(UpdatesTotal)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveProviderCall records one provider attempt.
func ObserveProviderCall(chain, provider string, ok bool, dur time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	ProviderRequestsTotal.WithLabelValues(chain, provider, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(chain, provider).Observe(dur.Seconds())
}

// ObserveAcquire records a lifecycle lock attempt.
func ObserveAcquire(acquired bool) {
	if acquired {
		LifecycleAcquireTotal.WithLabelValues("acquired").Inc()
		LifecycleJobsActive.Inc()
		return
	}
	LifecycleAcquireTotal.WithLabelValues("denied").Inc()
}

// ObserveRelease records a lock leaving the table, by release or cancel.
func ObserveRelease(cancelled bool) {
	LifecycleJobsActive.Dec()
	if cancelled {
		LifecycleCancelTotal.Inc()
	}
}
