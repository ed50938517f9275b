package natsbridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/topicroute"
)

// recordingPublisher captures forwarded messages.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (p *recordingPublisher) PublishMsg(m *nats.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBridge(t *testing.T) (*Bridge, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	b, err := newBridge(pub, Config{Subject: "publish", Forward: "deliver", Logger: quietLogger()})
	require.NoError(t, err)
	return b, pub
}

func inbound(subject, clientID, payload string) *nats.Msg {
	m := nats.NewMsg(subject)
	m.Data = []byte(payload)
	if clientID != "" {
		m.Header.Set(DefaultClientIDHeader, clientID)
	}
	return m
}

func TestSubjectTopicConversion(t *testing.T) {
	assert.Equal(t, "weather/90210/temperature", SubjectToTopic("weather.90210.temperature"))
	assert.Equal(t, "single", SubjectToTopic("single"))

	subject, err := TopicToSubject("weather/90210/temperature")
	require.NoError(t, err)
	assert.Equal(t, "weather.90210.temperature", subject)

	for _, topic := range []string{"", "a//b", "/a", "a/*", "a/>", "a.b/c", "a b/c"} {
		_, err := TopicToSubject(topic)
		assert.ErrorIs(t, err, ErrInvalidTopic, topic)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]struct {
		cfg   Config
		valid bool
	}{
		"valid":           {Config{Subject: "publish", Forward: "deliver"}, true},
		"nested prefixes": {Config{Subject: "mqtt.in", Forward: "mqtt.out"}, true},
		"shared stem":     {Config{Subject: "pub", Forward: "publish"}, true},
		"missing subject": {Config{Forward: "deliver"}, false},
		"missing forward": {Config{Subject: "publish"}, false},
		"same prefix":     {Config{Subject: "mqtt", Forward: "mqtt"}, false},
		"forward inside":  {Config{Subject: "mqtt", Forward: "mqtt.out"}, false},
		"subject inside":  {Config{Subject: "mqtt.in", Forward: "mqtt"}, false},
		"wildcard":        {Config{Subject: "publish.*", Forward: "deliver"}, false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, topicroute.ErrInvalidConfig)
			}
		})
	}
}

func TestBridge_Handle(t *testing.T) {
	var (
		zip     string
		tenant  string
		handled int
	)
	r := topicroute.New(topicroute.WithLogger(quietLogger()), topicroute.WithUnmatchedRoutePolicy(topicroute.RejectUnmatched))
	require.NoError(t, r.Handle("weather/{zipCode}/temperature", func(_ context.Context, cc *topicroute.ControllerContext, args topicroute.Args) error {
		handled++
		zip = topicroute.Arg[string](args, "zipCode")
		tenant, _ = topicroute.SessionItem[string](cc, "Tenant")
		if string(cc.Message.Payload) == "bad" {
			cc.Reject()
		}
		return nil
	}, topicroute.Route("zipCode", topicroute.KindString)))

	t.Run("accepted messages are forwarded", func(t *testing.T) {
		b, pub := testBridge(t)
		m := inbound("publish.weather.90210.temperature", "station-7", "21.5")
		m.Header.Set(SessionHeaderPrefix+"Tenant", "acme")

		b.handle(context.Background(), r, m)

		assert.Equal(t, "90210", zip)
		assert.Equal(t, "acme", tenant)
		require.Len(t, pub.msgs, 1)
		assert.Equal(t, "deliver.weather.90210.temperature", pub.msgs[0].Subject)
		assert.Equal(t, "21.5", string(pub.msgs[0].Data))
		assert.Equal(t, "station-7", pub.msgs[0].Header.Get(DefaultClientIDHeader))
	})

	t.Run("rejected messages are dropped", func(t *testing.T) {
		b, pub := testBridge(t)

		b.handle(context.Background(), r, inbound("publish.weather.90210.temperature", "station-7", "bad"))
		b.handle(context.Background(), r, inbound("publish.unrouted.topic", "station-7", "x"))

		assert.Empty(t, pub.msgs)
	})

	t.Run("server-originated messages pass through unrouted", func(t *testing.T) {
		b, pub := testBridge(t)
		before := handled

		b.handle(context.Background(), r, inbound("publish.unrouted.topic", "", "x"))

		assert.Equal(t, before, handled)
		require.Len(t, pub.msgs, 1)
		assert.Equal(t, "deliver.unrouted.topic", pub.msgs[0].Subject)
	})

	t.Run("subjects outside the prefix are ignored", func(t *testing.T) {
		b, pub := testBridge(t)

		b.handle(context.Background(), r, inbound("other.weather.1.temperature", "c", "x"))

		assert.Empty(t, pub.msgs)
	})

	t.Run("forward errors are logged, not returned", func(t *testing.T) {
		b, pub := testBridge(t)
		pub.err = errors.New("connection closed")

		assert.NotPanics(t, func() {
			b.handle(context.Background(), r, inbound("publish.weather.1.temperature", "c", "x"))
		})
		assert.Len(t, pub.msgs, 1)
	})
}

func TestBridge_Publish(t *testing.T) {
	b, pub := testBridge(t)

	require.NoError(t, b.Publish(context.Background(), "weather/90210/alerts", []byte("storm")))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "deliver.weather.90210.alerts", pub.msgs[0].Subject)
	assert.Empty(t, pub.msgs[0].Header.Get(DefaultClientIDHeader))

	assert.ErrorIs(t, b.Publish(context.Background(), "weather/*", nil), ErrInvalidTopic)

	var _ topicroute.Server = b
}

// chanSubscriber hands the bridge's inbound channel to the test.
type chanSubscriber struct {
	subject string
	queue   string
	ch      chan *nats.Msg
	ready   chan struct{}
	err     error
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{ready: make(chan struct{})}
}

func (s *chanSubscriber) ChanSubscribe(subj string, ch chan *nats.Msg) (*nats.Subscription, error) {
	return s.ChanQueueSubscribe(subj, "", ch)
}

func (s *chanSubscriber) ChanQueueSubscribe(subj, queue string, ch chan *nats.Msg) (*nats.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.subject, s.queue, s.ch = subj, queue, ch
	close(s.ready)
	return new(nats.Subscription), nil
}

func TestBridge_Run(t *testing.T) {
	zoneRouter := func(t *testing.T) *topicroute.Router {
		t.Helper()
		r := topicroute.New(topicroute.WithLogger(quietLogger()))
		require.NoError(t, r.Handle("zone/{zoneId}/reading", func(_ context.Context, cc *topicroute.ControllerContext, args topicroute.Args) error {
			if topicroute.Arg[int](args, "zoneId") < 0 {
				cc.Reject()
			}
			return nil
		}, topicroute.Route("zoneId", topicroute.KindInt)))
		return r
	}

	t.Run("dispatches until canceled", func(t *testing.T) {
		b, pub := testBridge(t)
		subs := newChanSubscriber()
		b.sub = subs

		r := zoneRouter(t)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- b.Run(ctx, r) }()

		<-subs.ready
		assert.Equal(t, "publish.>", subs.subject)
		assert.Empty(t, subs.queue)

		subs.ch <- inbound("publish.zone.-1.reading", "c", "")
		subs.ch <- inbound("publish.zone.7.reading", "c", "")

		assert.Eventually(t, func() bool {
			pub.mu.Lock()
			defer pub.mu.Unlock()
			return len(pub.msgs) == 1
		}, 2*time.Second, 5*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		pub.mu.Lock()
		defer pub.mu.Unlock()
		require.Len(t, pub.msgs, 1)
		assert.Equal(t, "deliver.zone.7.reading", pub.msgs[0].Subject)
	})

	t.Run("joins the queue group", func(t *testing.T) {
		subs := newChanSubscriber()
		b, err := newBridge(&recordingPublisher{}, Config{Subject: "publish", Forward: "deliver", Queue: "routers", Logger: quietLogger()})
		require.NoError(t, err)
		b.sub = subs

		r := zoneRouter(t)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- b.Run(ctx, r) }()

		<-subs.ready
		assert.Equal(t, "routers", subs.queue)

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("subscribe failure", func(t *testing.T) {
		b, _ := testBridge(t)
		subs := newChanSubscriber()
		subs.err = nats.ErrConnectionClosed
		b.sub = subs

		err := b.Run(context.Background(), zoneRouter(t))

		assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	})

	t.Run("without a connection", func(t *testing.T) {
		b, _ := testBridge(t)

		assert.Error(t, b.Run(context.Background(), zoneRouter(t)))
	})
}

func TestNew_NilConnection(t *testing.T) {
	_, err := New(nil, Config{Subject: "publish", Forward: "deliver"})
	assert.Error(t, err)
}

// TestBridge_Integration needs a NATS server at $NATS_URL.
func TestBridge_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("Skipping integration test: NATS_URL is not set")
	}
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()

	b, err := New(conn, Config{Subject: "it.publish", Forward: "it.deliver", Logger: quietLogger()})
	require.NoError(t, err)

	r := topicroute.New(topicroute.WithLogger(quietLogger()), topicroute.WithServer(b))
	require.NoError(t, r.Handle("zone/{zoneId}/reading", func(_ context.Context, cc *topicroute.ControllerContext, args topicroute.Args) error {
		if topicroute.Arg[int](args, "zoneId") < 0 {
			cc.Reject()
		}
		return nil
	}, topicroute.Route("zoneId", topicroute.KindInt)))

	delivered, err := conn.SubscribeSync("it.deliver.>")
	require.NoError(t, err)
	defer delivered.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, r) }()

	// Give the subscription time to register before publishing.
	require.NoError(t, conn.Flush())
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, conn.PublishMsg(inbound("it.publish.zone.-1.reading", "c", "")))
	require.NoError(t, conn.PublishMsg(inbound("it.publish.zone.7.reading", "c", "")))

	got, err := delivered.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "it.deliver.zone.7.reading", got.Subject)

	cancel()
	require.NoError(t, <-done)
}
