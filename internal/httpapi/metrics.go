package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emotiond",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emotiond",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "emotiond",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emotiond",
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (503)",
		},
		[]string{"reason"},
	)

	realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "emotiond",
		Name:      "realtime_connections",
		Help:      "Live realtime sessions",
	})

	realtimeProcessingFPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "emotiond",
		Name:      "realtime_processing_fps",
		Help:      "Processing rate of the most recently completed cycle",
	})

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emotiond",
			Subsystem: "realtime",
			Name:      "frames_total",
			Help:      "Frames by outcome: received, dropped, processed",
		},
		[]string{"outcome"},
	)

	frameErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emotiond",
			Subsystem: "realtime",
			Name:      "frame_errors_total",
			Help:      "Frames rejected or failed, by kind",
		},
		[]string{"kind"},
	)

	rejectedConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emotiond",
			Subsystem: "realtime",
			Name:      "rejected_connections_total",
			Help:      "Connect attempts refused, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal,
		realtimeConnections, realtimeProcessingFPS, framesTotal, frameErrorsTotal, rejectedConnectionsTotal,
	)
}

// PromMetrics exports realtime session counters to Prometheus. It
// implements stream.Metrics.
type PromMetrics struct{}

func (PromMetrics) SetActiveConnections(n int)  { realtimeConnections.Set(float64(n)) }
func (PromMetrics) SetProcessingFPS(fps float64) { realtimeProcessingFPS.Set(fps) }
func (PromMetrics) IncFramesReceived()           { framesTotal.WithLabelValues("received").Inc() }
func (PromMetrics) IncFramesDropped()            { framesTotal.WithLabelValues("dropped").Inc() }
func (PromMetrics) IncFramesProcessed()          { framesTotal.WithLabelValues("processed").Inc() }

func (PromMetrics) IncFrameErrors(kind string) {
	if kind == "" {
		kind = "unspecified"
	}
	frameErrorsTotal.WithLabelValues(kind).Inc()
}

func (PromMetrics) IncRejectedConnections(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	rejectedConnectionsTotal.WithLabelValues(reason).Inc()
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	sr.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Flush forwards to the underlying writer when it supports flushing.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		method := r.Method
		path := r.URL.Path
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		next.ServeHTTP(sr, r)
		// The chi route pattern is only known after routing.
		path = routePatternOrPath(r)
		statusLabel := itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure is called when a client is turned away for capacity.
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
