package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "truckdispatch"

// Registry holds every collector of the client and the stub API.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	GatewayRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Total number of dispatch API calls by operation and outcome.",
	},
		[]string{"operation", "outcome"},
	)

	GatewayRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Duration of dispatch API calls.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 13), // 5ms to ~20s
	},
		[]string{"operation"},
	)

	OrdersCreatedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Total number of truck requests accepted by the dispatch API.",
	})

	WorkflowOutcomesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "outcomes_total",
		Help:      "Outcomes of the order workflows.",
	},
		[]string{"workflow", "outcome"},
	)

	SessionTransitionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session lifecycle transitions by target state and reason.",
	},
		[]string{"to", "reason"},
	)

	AuditEventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "events_total",
		Help:      "Audit events handed to the producer.",
	},
		[]string{"result"},
	)

	OperationErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Total number of failed operator commands.",
	},
		[]string{"operation"},
	)

	StubOrdersStored = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stubapi",
		Name:      "orders_stored",
		Help:      "Current number of orders held by the stub API.",
	})

	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stubapi",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests handled by the stub API.",
	},
		[]string{"method", "path", "status"},
	)

	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "stubapi",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of stub API HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveGatewayCall records one dispatch API call.
func ObserveGatewayCall(operation, outcome string, duration time.Duration) {
	GatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// InstrumentRoutes is a mux middleware counting requests per route template.
func InstrumentRoutes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
