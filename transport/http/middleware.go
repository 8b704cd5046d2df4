package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kng-mtd/kvproxy"
)

// Middleware constructor.
type Middleware func(http.Handler) http.Handler

// SetCORS adds permissive cross-origin headers to every response and answers
// preflight requests with 204 before authentication.
func SetCORS(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
		h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+PlatformErrorCodeHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// Authenticate rejects any request whose bearer credential does not match
// secret. Paths in public skip the check.
func Authenticate(secret string, errh ErrorHandler, public ...string) Middleware {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			for _, p := range public {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			got, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="kvproxy"`)
				errh.HandleHTTPError(r.Context(), &kvproxy.Error{
					Code: kvproxy.EUnauthorized,
					Msg:  "missing or invalid bearer token",
				}, w)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequestIDHeader carries the per-request id back to the caller.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// RequestID assigns each request an id, taken from the X-Request-Id header
// when the caller sent a valid uuid. Completed requests are logged at debug.
func RequestID(log kvproxy.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			statusW := NewStatusResponseWriter(w)
			start := time.Now()
			next.ServeHTTP(statusW, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

			log.Debug("request", kvproxy.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     statusW.Code(),
				"bytes":      statusW.ResponseBytes(),
				"took":       time.Since(start),
			})
		}
		return http.HandlerFunc(fn)
	}
}

// RequestIDFromContext returns the id set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestMetrics are the collectors used by Metrics.
type RequestMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

var requestLabels = []string{"handler", "method", "path", "status", "response_code"}

// NewRequestMetrics creates the HTTP collectors and registers them with reg
// when reg is not nil.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvproxy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of HTTP requests received",
		}, requestLabels),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvproxy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time taken to respond to HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, requestLabels),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}
	return m
}

// Metrics records request count and latency per route pattern.
func Metrics(name string, m *RequestMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			statusW := NewStatusResponseWriter(w)

			defer func(start time.Time) {
				statusCode := statusW.Code()
				// only record 2XX or 5XX requests
				if !reportFromCode(statusCode) {
					return
				}

				label := prometheus.Labels{
					"handler":       name,
					"method":        r.Method,
					"path":          routePattern(r),
					"status":        statusW.StatusCodeClass(),
					"response_code": fmt.Sprintf("%d", statusCode),
				}
				m.Duration.With(label).Observe(time.Since(start).Seconds())
				m.Requests.With(label).Inc()
			}(time.Now())

			next.ServeHTTP(statusW, r)
		}
		return http.HandlerFunc(fn)
	}
}

// routePattern keeps tenant and key out of metric labels.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.RoutePatterns) == 0 {
		return "unmatched"
	}
	p := strings.Join(rctx.RoutePatterns, "")
	for strings.Contains(p, "/*/") {
		p = strings.ReplaceAll(p, "/*/", "/")
	}
	return p
}

// reportFromCode is a helper function to determine if telemetry data should be
// reported for this response.
func reportFromCode(c int) bool {
	return (c >= 200 && c <= 299) || (c >= 500 && c <= 599)
}

// StatusResponseWriter records the status code and body size written.
type StatusResponseWriter struct {
	statusCode    int
	responseBytes int
	http.ResponseWriter
}

func NewStatusResponseWriter(w http.ResponseWriter) *StatusResponseWriter {
	return &StatusResponseWriter{ResponseWriter: w}
}

func (w *StatusResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.responseBytes += n
	return n, err
}

func (w *StatusResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Code returns the status written, 200 if only a body was written.
func (w *StatusResponseWriter) Code() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *StatusResponseWriter) ResponseBytes() int { return w.responseBytes }

// StatusCodeClass returns "1XX" through "5XX".
func (w *StatusResponseWriter) StatusCodeClass() string {
	class := "XXX"
	switch code := w.Code(); {
	case code >= 100 && code < 200:
		class = "1XX"
	case code >= 200 && code < 300:
		class = "2XX"
	case code >= 300 && code < 400:
		class = "3XX"
	case code >= 400 && code < 500:
		class = "4XX"
	case code >= 500 && code < 600:
		class = "5XX"
	}
	return class
}

func (w *StatusResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
