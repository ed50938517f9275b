// Package metrics records topicroute dispatch outcomes as Prometheus metrics.
//
// The collector plugs into a router through its hooks:
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.New(reg, "broker")
//	if err != nil {
//	    return err
//	}
//	r := topicroute.New(m.Options()...)
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/topicroute"
)

// Outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Collector holds the router metrics.
type Collector struct {
	dispatches *prometheus.CounterVec   // By route and outcome
	failures   *prometheus.CounterVec   // By route and reason
	duration   *prometheus.HistogramVec // By route
	unmatched  *prometheus.CounterVec   // By decision
	skipped    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "dispatches_total",
			Help:      "Total number of messages dispatched to a route",
		}, []string{"route", "outcome"}), // outcome: accepted, rejected, failed

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "failures_total",
			Help:      "Total number of dispatch failures",
		}, []string{"route", "reason"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from activation to handler completion in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"route"}),

		unmatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "unmatched_total",
			Help:      "Total number of messages whose topic matched no route",
		}, []string{"decision"}),

		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "skipped_total",
			Help:      "Total number of server-originated messages that were not dispatched",
		}),
	}

	for _, col := range []prometheus.Collector{c.dispatches, c.failures, c.duration, c.unmatched, c.skipped} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Options returns the router hooks that feed the collector.
func (c *Collector) Options() []topicroute.Option {
	return []topicroute.Option{
		topicroute.WithOnSuccess(c.onSuccess),
		topicroute.WithOnFailure(c.onFailure),
		topicroute.WithOnNoRoute(c.onNoRoute),
		topicroute.WithOnSkip(c.onSkip),
	}
}

func (c *Collector) onSuccess(_ context.Context, cc *topicroute.ControllerContext, accepted bool, d time.Duration) {
	route := cc.Route.Template.String()
	outcome := OutcomeRejected
	if accepted {
		outcome = OutcomeAccepted
	}
	c.dispatches.WithLabelValues(route, outcome).Inc()
	c.duration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) onFailure(_ context.Context, rc *topicroute.RouteContext, err error, d time.Duration) {
	route := rc.Template.String()
	c.dispatches.WithLabelValues(route, OutcomeFailed).Inc()
	c.failures.WithLabelValues(route, Reason(err)).Inc()
	c.duration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) onNoRoute(_ context.Context, _ *topicroute.Message, accepted bool) {
	decision := OutcomeRejected
	if accepted {
		decision = OutcomeAccepted
	}
	c.unmatched.WithLabelValues(decision).Inc()
}

func (c *Collector) onSkip(context.Context, *topicroute.Message) {
	c.skipped.Inc()
}

// Reason classifies a dispatch failure for the reason label.
func Reason(err error) string {
	switch {
	case errors.Is(err, topicroute.ErrGuardRejected):
		return "guard"
	case errors.Is(err, topicroute.ErrUnresolvedParameter):
		return "unresolved_parameter"
	case errors.Is(err, topicroute.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, topicroute.ErrActivation):
		return "activation"
	case errors.Is(err, topicroute.ErrHandlerInvocation):
		return "invocation"
	default:
		return "other"
	}
}
