package topicroute

import (
	"context"
	"fmt"
	"reflect"
)

// BaseController gives controllers access to the message being handled.
// Embed it and set it from the constructor:
//
//	type WeatherController struct {
//	    topicroute.BaseController
//	    store Store
//	}
//
//	func newWeatherController(ctx context.Context, cc *topicroute.ControllerContext, s topicroute.ServiceResolver) (any, error) {
//	    store, err := topicroute.Resolve[Store](ctx, s)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &WeatherController{BaseController: topicroute.NewBaseController(cc), store: store}, nil
//	}
type BaseController struct {
	cc *ControllerContext
}

// NewBaseController binds a controller to its context.
func NewBaseController(cc *ControllerContext) BaseController {
	return BaseController{cc: cc}
}

// Context returns the controller context.
func (b BaseController) Context() *ControllerContext { return b.cc }

// Message returns the message being handled.
func (b BaseController) Message() *Message { return b.cc.Message }

// Server returns the messaging-server handle. It is nil when the router was
// created without WithServer.
func (b BaseController) Server() Server { return b.cc.Server }

// ClientID returns the publisher's client id.
func (b BaseController) ClientID() string { return b.cc.Message.ClientID }

// Ok accepts the message and publishes it to all subscribers on the topic.
func (b BaseController) Ok() error {
	b.cc.Accept()
	return nil
}

// Accepted is an alias for Ok.
func (b BaseController) Accepted() error { return b.Ok() }

// BadMessage rejects the message and prevents publishing it to any
// subscriber.
func (b BaseController) BadMessage() error {
	b.cc.Reject()
	return nil
}

// ClientStatus looks up the publishing client on the server. It returns
// nil when the client is not connected.
func (b BaseController) ClientStatus(ctx context.Context) (*ClientStatus, error) {
	lister, ok := b.cc.Server.(ClientLister)
	if !ok {
		return nil, fmt.Errorf("server %T cannot list clients", b.cc.Server)
	}
	clients, err := lister.Clients(ctx)
	if err != nil {
		return nil, err
	}
	for i := range clients {
		if clients[i].ID == b.cc.Message.ClientID {
			return &clients[i], nil
		}
	}
	return nil, nil
}

// Session returns the publishing client's session, or nil when the client
// is not connected.
func (b BaseController) Session(ctx context.Context) (*SessionStatus, error) {
	client, err := b.ClientStatus(ctx)
	if err != nil || client == nil {
		return nil, err
	}
	return &client.Session, nil
}

// SessionItem returns the session item stored under key as T.
func SessionItem[T any](cc *ControllerContext, key string) (T, bool) {
	v, ok := cc.Items[key]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// SessionItemOf returns the session item keyed by the name of type T.
func SessionItemOf[T any](cc *ControllerContext) (T, bool) {
	return SessionItem[T](cc, reflect.TypeFor[T]().Name())
}
