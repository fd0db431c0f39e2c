// Package metrics holds the Prometheus collectors of the checkout service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "museum"

// Checkout groups the collectors the services report into.  A nil
// *Checkout is valid and records nothing.
type Checkout struct {
	Checkouts    *prometheus.CounterVec
	Reservations *prometheus.CounterVec
	Notified     prometheus.Counter
	Requests     *prometheus.CounterVec
	LatencyMS    *prometheus.HistogramVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Checkout {
	m := &Checkout{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "orders_total",
			Help:      "Checkout attempts by variant and outcome.",
		}, []string{"variant", "outcome"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reservations_total",
			Help:      "Conditional reservations by resource and outcome.",
		}, []string{"resource", "outcome"}),
		Notified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "low_stock_notifications_total",
			Help:      "Low-stock notifications created.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	reg.MustRegister(m.Checkouts, m.Reservations, m.Notified, m.Requests, m.LatencyMS)
	return m
}

// CheckoutOutcome counts one finished checkout.
func (m *Checkout) CheckoutOutcome(variant, outcome string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(variant, outcome).Inc()
}

// ReservationOutcome counts one conditional reservation.
func (m *Checkout) ReservationOutcome(resource, outcome string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(resource, outcome).Inc()
}

// NotificationCreated counts one new low-stock notification.
func (m *Checkout) NotificationCreated() {
	if m == nil {
		return
	}
	m.Notified.Inc()
}

// Middleware records request counts and latency per route template.
func (m *Checkout) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
			return err
		}
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
