package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/topicroute"
)

func newRouter(t *testing.T, policy topicroute.UnmatchedRoutePolicy) (*topicroute.Router, *Collector, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	c, err := New(reg, "test")
	require.NoError(t, err)

	opts := append(c.Options(),
		topicroute.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		topicroute.WithUnmatchedRoutePolicy(policy),
	)
	r := topicroute.New(opts...)

	require.NoError(t, r.Handle("zone/{zoneId}/reading", func(_ context.Context, cc *topicroute.ControllerContext, args topicroute.Args) error {
		if topicroute.Arg[int](args, "zoneId") == 0 {
			cc.Reject()
		}
		return nil
	}, topicroute.Route("zoneId", topicroute.KindInt)))

	require.NoError(t, r.Handle("fail/{n}", func(context.Context, *topicroute.ControllerContext, topicroute.Args) error {
		return errors.New("boom")
	}))

	return r, c, reg
}

func dispatch(r *topicroute.Router, topic, clientID string) {
	r.Dispatch(context.Background(), &topicroute.Message{Topic: topic, ClientID: clientID, Accept: true})
}

func TestCollector_Dispatches(t *testing.T) {
	r, c, _ := newRouter(t, topicroute.AcceptUnmatched)

	dispatch(r, "zone/1/reading", "c")
	dispatch(r, "zone/2/reading", "c")
	dispatch(r, "zone/0/reading", "c")
	dispatch(r, "zone/abc/reading", "c")
	dispatch(r, "fail/1", "c")

	const route = "zone/{zoneId}/reading"
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatches.WithLabelValues(route, OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatches.WithLabelValues(route, OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatches.WithLabelValues(route, OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues(route, "type_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("fail/{n}", "invocation")))
}

func TestCollector_UnmatchedAndSkipped(t *testing.T) {
	for _, policy := range []topicroute.UnmatchedRoutePolicy{topicroute.AcceptUnmatched, topicroute.RejectUnmatched} {
		t.Run(string(policy), func(t *testing.T) {
			r, c, _ := newRouter(t, policy)

			dispatch(r, "nowhere", "c")
			dispatch(r, "zone/1/reading", "")
			dispatch(r, "zone/2/reading", "")

			decision := OutcomeAccepted
			if policy == topicroute.RejectUnmatched {
				decision = OutcomeRejected
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(c.unmatched.WithLabelValues(decision)))
			assert.Equal(t, 2.0, testutil.ToFloat64(c.skipped))
		})
	}
}

func TestCollector_Gather(t *testing.T) {
	r, _, reg := newRouter(t, topicroute.AcceptUnmatched)

	for i := 1; i <= 3; i++ {
		dispatch(r, fmt.Sprintf("zone/%d/reading", i), "c")
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	hist := byName["test_router_dispatch_duration_seconds"]
	require.NotNil(t, hist, "duration histogram should exist")
	require.Len(t, hist.GetMetric(), 1)
	assert.Equal(t, uint64(3), hist.GetMetric()[0].GetHistogram().GetSampleCount())

	assert.Contains(t, byName, "test_router_dispatches_total")
	assert.Contains(t, byName, "test_router_skipped_total")
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "dup")
	require.NoError(t, err)

	_, err = New(reg, "dup")
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestReason(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"guard":        {topicroute.ErrGuardRejected, "guard"},
		"unresolved":   {fmt.Errorf("wrap: %w", topicroute.ErrUnresolvedParameter), "unresolved_parameter"},
		"mismatch":     {&topicroute.BindError{Kind: topicroute.ErrTypeMismatch, Param: "p"}, "type_mismatch"},
		"activation":   {topicroute.ErrActivation, "activation"},
		"invocation":   {&topicroute.InvocationError{Handler: "h", Err: errors.New("x")}, "invocation"},
		"unrecognized": {errors.New("x"), "other"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}
