package topicroute

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Message is one inbound publish as delivered by the transport.
type Message struct {
	Topic   string
	Payload []byte

	// ClientID identifies the publisher. An empty ClientID marks a message
	// published by the server itself; such messages are never dispatched.
	ClientID string

	// Accept is the forwarding decision. The transport sets its current
	// value before calling Dispatch and relays the message to other
	// subscribers only if it is still true afterwards.
	Accept bool

	// SessionItems carries the publisher's session state, if the transport
	// keeps any.
	SessionItems map[string]any
}

// Server is the messaging-server handle handed to controllers.
type Server interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ClientStatus describes a connected client.
type ClientStatus struct {
	ID      string
	Session SessionStatus
}

// SessionStatus describes a client session.
type SessionStatus struct {
	ID    string
	Items map[string]any
}

// ClientLister is implemented by servers that can report connected clients.
type ClientLister interface {
	Clients(ctx context.Context) ([]ClientStatus, error)
}

// RouteContext is the result of matching one topic against the route table.
// It is created per message and never shared.
type RouteContext struct {
	Topic string

	// Handler is nil when no route matched.
	Handler *Handler

	// Template is the matched template. Zero when Handler is nil.
	Template Template

	// Params maps parameter names to captured segment values. A catch-all
	// capture is stored under its name, or CatchAllParam when unnamed.
	Params map[string]string

	// Tail is the remainder captured by a catch-all.
	Tail string

	// AllowUnmatched is the configured policy for topics without a route.
	AllowUnmatched bool
}

// Matched reports whether a handler was found.
func (rc *RouteContext) Matched() bool { return rc.Handler != nil }

// ControllerContext is handed to a controller instance for one message.
type ControllerContext struct {
	// DispatchID correlates log records of one dispatch.
	DispatchID string

	Message *Message
	Server  Server
	Route   *RouteContext

	// Items is a session-item map scoped to this invocation. It starts as a
	// copy of the message's session items.
	Items map[string]any

	viewOnce sync.Once
	view     View
	viewErr  error

	mu       sync.Mutex
	detached bool
}

func newControllerContext(msg *Message, server Server, rc *RouteContext) *ControllerContext {
	items := make(map[string]any, len(msg.SessionItems))
	for k, v := range msg.SessionItems {
		items[k] = v
	}
	return &ControllerContext{
		DispatchID: uuid.NewString(),
		Message:    msg,
		Server:     server,
		Route:      rc,
		Items:      items,
	}
}

// View returns a view over the route parameters and JSON payload, validated
// once on first use.
func (cc *ControllerContext) View() (View, error) {
	cc.viewOnce.Do(func() {
		var params map[string]string
		if cc.Route != nil {
			params = cc.Route.Params
		}
		cc.view, cc.viewErr = NewView(params, cc.Message.Payload)
	})
	return cc.view, cc.viewErr
}

// Accept marks the message for forwarding. It has no effect once the
// router has stopped waiting for an awaitable handler.
func (cc *ControllerContext) Accept() { cc.decide(true) }

// Reject prevents the message from being forwarded. It has no effect once
// the router has stopped waiting for an awaitable handler.
func (cc *ControllerContext) Reject() { cc.decide(false) }

func (cc *ControllerContext) decide(accept bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.detached {
		return
	}
	cc.Message.Accept = accept
}

// detach stops Accept and Reject from touching the message. The router
// owns the decision from then on.
func (cc *ControllerContext) detach() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.detached = true
}
