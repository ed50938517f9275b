package topicroute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Router dispatches published messages to the handler whose topic template
// matches the message topic.
//
// Usage:
//  1. Create a router with New
//  2. Register controllers and handlers with Register or Handle
//  3. Call Dispatch from the transport for every published message
//
// Router is safe for concurrent use once registration is complete. The
// first call to Dispatch seals the route table; registering afterwards
// returns ErrSealed.
type Router struct {
	table          *Table
	activator      Activator
	codec          Codec
	server         Server
	logger         *slog.Logger
	allowUnmatched bool
	hooks          hooks

	mu     sync.Mutex
	sealed atomic.Bool
}

// Option configures a Router.
type Option func(*Router)

// New creates a Router with the given options.
//
// By default the router accepts messages on unmatched topics, decodes
// payload parameters as JSON, resolves services from an empty Container and
// logs to slog.Default().
//
// Example:
//
//	r := topicroute.New(
//	    topicroute.WithUnmatchedRoutePolicy(topicroute.RejectUnmatched),
//	    topicroute.WithActivator(container),
//	    topicroute.WithLogger(logger),
//	)
func New(opts ...Option) *Router {
	r := &Router{
		table:          NewTable(),
		activator:      NewContainer(),
		codec:          JSONCodec{},
		logger:         slog.Default(),
		allowUnmatched: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithActivator sets the collaborator that creates controller instances and
// resolves services.
func WithActivator(a Activator) Option {
	return func(r *Router) {
		r.activator = a
	}
}

// WithCodec sets the codec used for FromPayload parameters.
func WithCodec(c Codec) Option {
	return func(r *Router) {
		r.codec = c
	}
}

// WithServer sets the server handle exposed to controllers.
func WithServer(s Server) Option {
	return func(r *Router) {
		r.server = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithUnmatchedRoutePolicy decides what happens to messages whose topic
// matches no route.
func WithUnmatchedRoutePolicy(p UnmatchedRoutePolicy) Option {
	return func(r *Router) {
		r.allowUnmatched = p != RejectUnmatched
	}
}

// Table returns the route table.
func (r *Router) Table() *Table { return r.table }

// Register adds the handlers declared by a controller. A nil controller
// registers free-standing handlers whose instance is the controller context.
//
// Registration stops at the first invalid handler. Handlers registered
// before it stay registered.
//
// Example:
//
//	err := r.Register(&topicroute.Controller{
//	    Name:   "WeatherController",
//	    Prefix: "weather/{zipCode}",
//	    New:    newWeatherController,
//	}, &topicroute.Handler{
//	    Template: "temperature",
//	    Params:   []topicroute.Param{topicroute.Payload[float64]("reading")},
//	    Action:   (*WeatherController).temperature,
//	})
func (r *Router) Register(ctrl *Controller, handlers ...*Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrSealed
	}

	if ctrl == nil {
		ctrl = &Controller{Name: "func"}
	}
	if err := ctrl.validate(); err != nil {
		return err
	}

	for _, h := range handlers {
		if h == nil {
			return fmt.Errorf("%w: nil handler on controller %s", ErrInvalidHandler, ctrl.Name)
		}
		if h.Name == "" {
			h.Name = ctrl.Name + ":" + h.Template
		}
		if err := h.validate(); err != nil {
			return err
		}

		tmpl, err := JoinTemplates(ctrl.Prefix, h.Template)
		if err != nil {
			return err
		}

		h.controller = ctrl
		h.template = tmpl
		if err := r.table.Register(tmpl, h); err != nil {
			return err
		}

		r.logger.Info("registered route",
			slog.String("route", tmpl.String()),
			slog.String("handler", h.Name),
			slog.String("controller", ctrl.Name),
		)
	}
	return nil
}

// HandlerFunc is a free-standing handler body.
type HandlerFunc func(ctx context.Context, cc *ControllerContext, args Args) error

// Handle is a convenience for registering a single free-standing handler.
//
// Example:
//
//	r.Handle("zone/{zoneId}/reading", func(ctx context.Context, cc *topicroute.ControllerContext, args topicroute.Args) error {
//	    zone := topicroute.Arg[int](args, "zoneId")
//	    return store.Record(ctx, zone, cc.Message.Payload)
//	}, topicroute.Route("zoneId", topicroute.KindInt))
func (r *Router) Handle(template string, fn HandlerFunc, params ...Param) error {
	return r.Register(nil, &Handler{
		Name:     template,
		Template: template,
		Params:   params,
		Action: func(ctx context.Context, instance any, args Args) error {
			return fn(ctx, instance.(*ControllerContext), args)
		},
	})
}

func (r *Router) seal() {
	if r.sealed.Load() {
		return
	}
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Dispatch routes one published message and records the forwarding
// decision in msg.Accept.
//
// The dispatch flow:
//  1. Skip messages without a ClientID (published by the server itself)
//  2. Match the topic against the route table
//  3. Apply the unmatched-route policy when nothing matches
//  4. Check the handler's guard against the payload
//  5. Create a controller instance through the activator
//  6. Bind controller members and handler parameters
//  7. Accept the message, then invoke the handler, which may reject it
//
// Any failure in steps 4 to 7 rejects the message. Failures are logged and
// passed to the OnFailure hooks; Dispatch itself never fails or panics. A
// panicking hook rejects the message too.
func (r *Router) Dispatch(ctx context.Context, msg *Message) {
	defer func() {
		if p := recover(); p != nil {
			if msg.ClientID != "" {
				msg.Accept = false
			}
			r.logger.ErrorContext(ctx, "rejecting publish: dispatch panicked",
				slog.String("topic", msg.Topic),
				slog.String("client_id", msg.ClientID),
				slog.Any("panic", p),
			)
		}
	}()

	if msg.ClientID == "" {
		for _, fn := range r.hooks.onSkip {
			fn(ctx, msg)
		}
		return
	}

	r.seal()

	rc := r.table.Match(msg.Topic)
	rc.AllowUnmatched = r.allowUnmatched

	if !rc.Matched() {
		r.handleNoRoute(ctx, msg, rc)
		return
	}

	cc := newControllerContext(msg, r.server, rc)

	ctx, err := r.runMatchHooks(ctx, rc)
	if err != nil {
		msg.Accept = false
		r.handleFailure(ctx, cc, nil, err, 0)
		return
	}

	start := time.Now()
	instance, err := r.dispatch(ctx, cc)
	duration := time.Since(start)

	if err != nil {
		msg.Accept = false
		r.handleFailure(ctx, cc, instance, err, duration)
		return
	}

	for _, fn := range r.hooks.onSuccess {
		fn(ctx, cc, msg.Accept, duration)
	}
}

// dispatch runs the matched handler. The returned instance is nil when
// activation did not get that far.
func (r *Router) dispatch(ctx context.Context, cc *ControllerContext) (any, error) {
	h := cc.Route.Handler
	ctrl := h.controller

	if err := checkGuard(h, cc); err != nil {
		return nil, err
	}

	instance, err := r.activate(ctx, ctrl, cc)
	if err != nil {
		return nil, err
	}

	for _, m := range ctrl.Members {
		if err := setMember(m, instance, cc.Route.Params[m.Param]); err != nil {
			return instance, &BindError{
				Kind:   ErrTypeMismatch,
				Param:  m.Param,
				From:   "string",
				Member: ctrl.Name + "." + m.Name,
				Err:    err,
			}
		}
	}

	var args Args
	if len(h.Params) > 0 {
		args, err = bindArgs(ctx, h, cc, r.activator, r.codec)
		if err != nil {
			return instance, err
		}
	}

	if err := r.runDispatchHooks(ctx, h, cc, instance); err != nil {
		return instance, err
	}

	cc.Accept()
	return instance, r.invoke(ctx, h, cc, instance, args)
}

func checkGuard(h *Handler, cc *ControllerContext) (err error) {
	if h.Guard == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrGuardRejected, p)
		}
	}()

	view, err := cc.View()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGuardRejected, err)
	}
	if !h.Guard.Match(view) {
		return ErrGuardRejected
	}
	return nil
}

func setMember(m Member, instance any, value string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return m.Set(instance, value)
}

// runDispatchHooks runs the global and instance OnDispatch hooks. A
// panicking hook fails the invocation.
func (r *Router) runDispatchHooks(ctx context.Context, h *Handler, cc *ControllerContext, instance any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &InvocationError{Handler: h.Name, Err: fmt.Errorf("dispatch hook panic: %v", p)}
		}
	}()

	for _, fn := range r.hooks.onDispatch {
		fn(ctx, cc)
	}
	if hook, ok := instance.(OnDispatchHook); ok {
		hook.OnDispatch(ctx, cc)
	}
	return nil
}

// runMatchHooks chains the OnMatch hooks. On panic the incoming ctx is
// returned with the error.
func (r *Router) runMatchHooks(ctx context.Context, rc *RouteContext) (out context.Context, err error) {
	out = ctx
	defer func() {
		if p := recover(); p != nil {
			out = ctx
			err = &InvocationError{Handler: rc.Handler.Name, Err: fmt.Errorf("match hook panic: %v", p)}
		}
	}()

	for _, fn := range r.hooks.onMatch {
		out = fn(out, rc.Topic, rc)
	}
	return out, nil
}

// activate creates the controller instance for one message. Controllers
// without a constructor get the controller context itself.
func (r *Router) activate(ctx context.Context, ctrl *Controller, cc *ControllerContext) (instance any, err error) {
	if ctrl.New == nil {
		return cc, nil
	}

	defer func() {
		if p := recover(); p != nil {
			instance = nil
			err = &activationError{what: "create " + ctrl.Name, err: fmt.Errorf("panic: %v", p)}
		}
	}()

	instance, err = r.activator.CreateInstance(ctx, ctrl, cc)
	if err != nil {
		return nil, &activationError{what: "create " + ctrl.Name, err: err}
	}
	return instance, nil
}

// invoke calls the handler body and waits for completion.
func (r *Router) invoke(ctx context.Context, h *Handler, cc *ControllerContext, instance any, args Args) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &InvocationError{Handler: h.Name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if h.Returns == ReturnsNothing {
		if err := h.Action(ctx, instance, args); err != nil {
			return &InvocationError{Handler: h.Name, Err: err}
		}
		return nil
	}

	done := h.Async(ctx, instance, args)
	if done == nil {
		return &InvocationError{Handler: h.Name, Err: fmt.Errorf("returned a nil completion")}
	}

	select {
	case err := <-done:
		if err != nil {
			return &InvocationError{Handler: h.Name, Err: err}
		}
		return nil
	case <-ctx.Done():
		cc.detach()
		return &InvocationError{Handler: h.Name, Err: ctx.Err()}
	}
}

// handleNoRoute applies the unmatched-route policy.
func (r *Router) handleNoRoute(ctx context.Context, msg *Message, rc *RouteContext) {
	msg.Accept = rc.AllowUnmatched
	if !rc.AllowUnmatched {
		r.logger.DebugContext(ctx, "rejecting publish: topic matched no route",
			slog.String("topic", msg.Topic),
			slog.String("client_id", msg.ClientID),
		)
	}
	for _, fn := range r.hooks.onNoRoute {
		fn(ctx, msg, msg.Accept)
	}
}

// handleFailure reports a rejected message.
func (r *Router) handleFailure(ctx context.Context, cc *ControllerContext, instance any, err error, duration time.Duration) {
	r.logger.ErrorContext(ctx, "rejecting publish: dispatch failed",
		slog.String("topic", cc.Message.Topic),
		slog.String("client_id", cc.Message.ClientID),
		slog.String("route", cc.Route.Template.String()),
		slog.String("handler", cc.Route.Handler.Name),
		slog.String("dispatch_id", cc.DispatchID),
		slog.Any("error", err),
	)

	for _, fn := range r.hooks.onFailure {
		fn(ctx, cc.Route, err, duration)
	}
	if hook, ok := instance.(OnFailureHook); ok {
		hook.OnFailure(ctx, cc, err)
	}
}
