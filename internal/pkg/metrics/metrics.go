// Package metrics exposes the process's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests received.",
		},
		[]string{"method", "path", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)

	webhooksHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhooks_handled_total",
			Help: "Webhook deliveries that passed signature verification, by event and outcome.",
		},
		[]string{"event", "status"},
	)

	webhooksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhooks_rejected_total",
			Help: "Webhook deliveries rejected before processing.",
		},
		[]string{"reason"},
	)

	checkoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkouts_total",
			Help: "Checkout creation attempts by provider and result.",
		},
		[]string{"provider", "result"},
	)
)

// WebhookHandled counts a delivery that got past the signature gate.
func WebhookHandled(event, status string) {
	webhooksHandled.WithLabelValues(event, status).Inc()
}

// WebhookRejected counts a delivery refused before any state was touched.
func WebhookRejected(reason string) {
	webhooksRejected.WithLabelValues(reason).Inc()
}

// CheckoutAttempt counts a checkout request outcome.
func CheckoutAttempt(provider, result string) {
	checkoutsTotal.WithLabelValues(provider, result).Inc()
}

// Middleware records request counts and latency per route pattern.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			} else {
				code = fiber.StatusInternalServerError
			}
		}
		path := c.Route().Path
		status := strconv.Itoa(code)
		httpRequestsTotal.WithLabelValues(c.Method(), path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), path, status).Observe(time.Since(start).Seconds())
		return err
	}
}
