// Package natsbridge feeds a topicroute router from NATS subjects.
//
// Clients publish to subjects under an inbound prefix. The bridge turns each
// subject into a topic ("publish.weather.90210.temperature" becomes
// "weather/90210/temperature"), dispatches it, and republishes accepted
// messages under the forward prefix for subscribers:
//
//	conn, err := nats.Connect(nats.DefaultURL)
//	if err != nil {
//	    return err
//	}
//	b, err := natsbridge.New(conn, natsbridge.Config{Subject: "publish", Forward: "deliver"})
//	if err != nil {
//	    return err
//	}
//	r := topicroute.New(topicroute.WithServer(b))
//	// register routes ...
//	return b.Run(ctx, r)
//
// The publishing client identifies itself with the Client-Id header. A
// message without it is treated as server-originated and is forwarded
// without being routed.
package natsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/bjaus/topicroute"
)

// DefaultClientIDHeader carries the publisher's client id.
const DefaultClientIDHeader = "Client-Id"

// SessionHeaderPrefix marks headers that are copied into the message's
// session items, keyed by the remainder of the header name.
const SessionHeaderPrefix = "Session-"

// ErrInvalidTopic is returned when a topic cannot be expressed as a NATS
// subject.
var ErrInvalidTopic = errors.New("topic cannot be mapped to a subject")

// Dispatcher routes one message. *topicroute.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *topicroute.Message)
}

// publisher is the part of *nats.Conn the bridge publishes through.
type publisher interface {
	PublishMsg(m *nats.Msg) error
}

// subscriber is the part of *nats.Conn the bridge receives through.
type subscriber interface {
	ChanSubscribe(subj string, ch chan *nats.Msg) (*nats.Subscription, error)
	ChanQueueSubscribe(subj, queue string, ch chan *nats.Msg) (*nats.Subscription, error)
}

var (
	_ publisher  = (*nats.Conn)(nil)
	_ subscriber = (*nats.Conn)(nil)
)

// Config configures the bridge.
type Config struct {
	// Subject is the inbound prefix. The bridge subscribes to Subject + ".>".
	Subject string

	// Forward is the outbound prefix accepted messages are republished under.
	// It must not overlap Subject.
	Forward string

	// Queue is the optional queue group for load balancing across bridges.
	Queue string

	// ClientIDHeader names the header carrying the publisher id.
	// Default is DefaultClientIDHeader.
	ClientIDHeader string

	// Workers is the number of messages dispatched concurrently.
	// Default is 1, which preserves per-subject ordering.
	Workers int

	// BufferSize is the inbound channel buffer size. Default is 256.
	BufferSize int

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c Config) applyDefaults() Config {
	if c.ClientIDHeader == "" {
		c.ClientIDHeader = DefaultClientIDHeader
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate checks the subject prefixes.
func (c Config) Validate() error {
	if c.Subject == "" || c.Forward == "" {
		return fmt.Errorf("%w: subject and forward prefixes are required", topicroute.ErrInvalidConfig)
	}
	if strings.ContainsAny(c.Subject+c.Forward, "*> \t") {
		return fmt.Errorf("%w: subject prefixes cannot contain wildcards or whitespace", topicroute.ErrInvalidConfig)
	}
	in, out := c.Subject+".", c.Forward+"."
	if strings.HasPrefix(in, out) || strings.HasPrefix(out, in) {
		return fmt.Errorf("%w: forward prefix %q overlaps subject prefix %q", topicroute.ErrInvalidConfig, c.Forward, c.Subject)
	}
	return nil
}

// Bridge connects a NATS connection to a Dispatcher. It also implements
// topicroute.Server so controllers can publish through it.
type Bridge struct {
	config Config
	pub    publisher
	sub    subscriber
}

// New creates a bridge over an established connection.
func New(conn *nats.Conn, config Config) (*Bridge, error) {
	if conn == nil {
		return nil, errors.New("natsbridge: nil connection")
	}
	b, err := newBridge(conn, config)
	if err != nil {
		return nil, err
	}
	b.sub = conn
	return b, nil
}

func newBridge(pub publisher, config Config) (*Bridge, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Bridge{config: config.applyDefaults(), pub: pub}, nil
}

// Run subscribes to the inbound prefix and dispatches messages until ctx is
// canceled. In-flight dispatches finish before Run returns.
func (b *Bridge) Run(ctx context.Context, d Dispatcher) error {
	if b.sub == nil {
		return errors.New("natsbridge: bridge has no connection to subscribe on")
	}

	msgCh := make(chan *nats.Msg, b.config.BufferSize)
	subject := b.config.Subject + ".>"

	var (
		sub *nats.Subscription
		err error
	)
	if b.config.Queue != "" {
		sub, err = b.sub.ChanQueueSubscribe(subject, b.config.Queue, msgCh)
	} else {
		sub, err = b.sub.ChanSubscribe(subject, msgCh)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			b.config.Logger.Warn("NATS unsubscribe failed", "subject", subject, "error", err)
		}
	}()

	b.config.Logger.Info("NATS bridge started",
		"subject", subject,
		"forward", b.config.Forward,
		"queue", b.config.Queue,
		"workers", b.config.Workers,
	)

	var wg sync.WaitGroup
	for range b.config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-msgCh:
					b.handle(ctx, d, m)
				}
			}
		}()
	}
	wg.Wait()

	b.config.Logger.Debug("NATS bridge stopped", "subject", subject)
	return nil
}

// handle dispatches one inbound message and forwards it when accepted.
func (b *Bridge) handle(ctx context.Context, d Dispatcher, m *nats.Msg) {
	rel, ok := strings.CutPrefix(m.Subject, b.config.Subject+".")
	if !ok {
		b.config.Logger.Debug("ignoring subject outside prefix", "subject", m.Subject)
		return
	}

	msg := &topicroute.Message{
		Topic:        SubjectToTopic(rel),
		Payload:      m.Data,
		ClientID:     m.Header.Get(b.config.ClientIDHeader),
		Accept:       true,
		SessionItems: sessionItems(m.Header),
	}
	d.Dispatch(ctx, msg)

	if !msg.Accept {
		b.config.Logger.Debug("dropping rejected publish", "topic", msg.Topic, "client_id", msg.ClientID)
		return
	}

	out := nats.NewMsg(b.config.Forward + "." + rel)
	out.Data = m.Data
	out.Header = m.Header
	if err := b.pub.PublishMsg(out); err != nil {
		b.config.Logger.Error("forward failed", "subject", out.Subject, "topic", msg.Topic, "error", err)
	}
}

// Publish implements topicroute.Server. Messages published this way carry
// no client id and go straight to subscribers.
func (b *Bridge) Publish(_ context.Context, topic string, payload []byte) error {
	subject, err := TopicToSubject(topic)
	if err != nil {
		return err
	}
	out := nats.NewMsg(b.config.Forward + "." + subject)
	out.Data = payload
	return b.pub.PublishMsg(out)
}

// SubjectToTopic converts a subject relative to the inbound prefix into a
// topic.
func SubjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", topicroute.Separator)
}

// TopicToSubject converts a topic into a relative subject. Topics with empty
// segments, dots, whitespace or NATS wildcards have no subject form.
func TopicToSubject(topic string) (string, error) {
	segments := strings.Split(topic, topicroute.Separator)
	for _, s := range segments {
		if s == "" || s == "*" || s == ">" || strings.ContainsAny(s, ". \t\r\n") {
			return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
	}
	return strings.Join(segments, "."), nil
}

func sessionItems(h nats.Header) map[string]any {
	var items map[string]any
	for k, v := range h {
		key, ok := strings.CutPrefix(k, SessionHeaderPrefix)
		if !ok || key == "" || len(v) == 0 {
			continue
		}
		if items == nil {
			items = make(map[string]any)
		}
		items[key] = v[0]
	}
	return items
}
