package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	applogger "KPISentinel/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

var (
	httpOnce sync.Once
	httpInst *httpMetrics
)

func instruments() *httpMetrics {
	httpOnce.Do(func() {
		labels := []string{"route", "method", "class"}
		httpInst = &httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route template and status",
			}, []string{"route", "method", "status"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, labels),
			inFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "http_in_flight_requests",
				Help: "HTTP requests currently being served",
			}, []string{"route", "method"}),
			size: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response body size",
				Buckets: prometheus.ExponentialBuckets(128, 4, 8),
			}, labels),
		}
	})
	return httpInst
}

// Metrics instruments every request by route template and logs 5xx responses
// at error and requests slower than slowThreshold at warn.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	m := instruments()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route, method := c.Path(), c.Request().Method
			if route == "" {
				route = "unmatched"
			}
			inFlight := m.inFlight.WithLabelValues(route, method)
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			if err := next(c); err != nil {
				// Render now so the recorded status is the one the client sees.
				c.Error(err)
			}
			took := time.Since(start)

			code := c.Response().Status
			class := strconv.Itoa(code/100) + "xx"
			m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			m.duration.WithLabelValues(route, method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, method, class).Observe(float64(c.Response().Size))

			if l == nil {
				return nil
			}
			slow := slowThreshold > 0 && took >= slowThreshold
			if code < http.StatusInternalServerError && !slow {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", code),
				applogger.Duration("duration_ms", took),
				applogger.Int64("bytes", c.Response().Size),
			}
			if code >= http.StatusInternalServerError {
				l.Error("http request failed", fields...)
			} else {
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}
