// internal/infra/metrics/prometheus.go
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"partner_report_engine/internal/app"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var SweepItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sweep_items_total",
		Help: "Items handled by sweeps, by outcome",
	},
	[]string{"sweep", "outcome"},
)

var SweepDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of completed sweeps in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"sweep"},
)

var SweepLastSuccess = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "sweep_last_completed_timestamp_seconds",
		Help: "Unix time of the last completed sweep",
	},
	[]string{"sweep"},
)

var HttpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "method"},
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SweepItemsTotal)
		prometheus.MustRegister(SweepDuration)
		prometheus.MustRegister(SweepLastSuccess)
		prometheus.MustRegister(HttpRequestsTotal)
		prometheus.MustRegister(HttpRequestDuration)
	})
}

// SweepObserver records every SweepResult.
type SweepObserver struct{}

func (SweepObserver) ObserveSweep(_ context.Context, res app.SweepResult) {
	SweepItemsTotal.WithLabelValues(res.Name, "succeeded").Add(float64(res.Succeeded))
	SweepItemsTotal.WithLabelValues(res.Name, "skipped").Add(float64(res.Skipped))
	SweepItemsTotal.WithLabelValues(res.Name, "failed").Add(float64(res.Failed))
	SweepDuration.WithLabelValues(res.Name).Observe(res.Finished.Sub(res.Started).Seconds())
	SweepLastSuccess.WithLabelValues(res.Name).Set(float64(res.Finished.Unix()))
}

func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())
		HttpRequestsTotal.WithLabelValues(endpoint, status, method).Inc()
		HttpRequestDuration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
	}
}
