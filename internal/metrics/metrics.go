package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	roomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhall",
		Name:      "rooms_created_total",
		Help:      "Total number of study rooms created",
	})

	roomsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhall",
		Name:      "rooms_deleted_total",
		Help:      "Total number of study rooms deleted after the last participant left",
	})

	chatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhall",
		Name:      "chat_messages_total",
		Help:      "Total number of chat messages appended",
	})

	noteBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhall",
		Name:      "note_blocks_total",
		Help:      "Total number of shared note blocks appended",
	})

	quizzesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhall",
		Name:      "quizzes_started_total",
		Help:      "Total number of quizzes started",
	})

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyhall",
		Name:      "active_subscriptions",
		Help:      "Current number of live session change feeds",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyhall",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studyhall",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func RoomCreated()         { roomsCreated.Inc() }
func RoomDeleted()         { roomsDeleted.Inc() }
func ChatMessageAppended() { chatMessages.Inc() }
func NoteBlockAppended()   { noteBlocks.Inc() }
func QuizStarted()         { quizzesStarted.Inc() }
func SubscriptionOpened()  { activeSubscriptions.Inc() }
func SubscriptionClosed()  { activeSubscriptions.Dec() }

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working through the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request counts and latency per route. The path label is
// the chi route pattern, not the raw URL, so room codes do not mint an
// unbounded number of label sets.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := strconv.Itoa(rec.status)
		httpRequests.WithLabelValues(r.Method, path, status).Inc()
		httpLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
