package topicroute

import (
	"context"
	"time"
)

// OnMatchFunc is called after a topic matches a route.
// Use this to enrich the context with logging fields or trace spans.
// The returned context is used for the rest of the dispatch.
type OnMatchFunc func(ctx context.Context, topic string, rc *RouteContext) context.Context

// OnDispatchFunc is called just before the handler executes.
type OnDispatchFunc func(ctx context.Context, cc *ControllerContext)

// OnSuccessFunc is called after the handler completes successfully.
// accepted is the final forwarding decision.
type OnSuccessFunc func(ctx context.Context, cc *ControllerContext, accepted bool, duration time.Duration)

// OnFailureFunc is called when a matched message is rejected because of an
// error: activation, binding, guard or handler failure. rc is never nil.
type OnFailureFunc func(ctx context.Context, rc *RouteContext, err error, duration time.Duration)

// OnNoRouteFunc is called when no route matches the topic. accepted is the
// decision taken by the unmatched-route policy.
type OnNoRouteFunc func(ctx context.Context, msg *Message, accepted bool)

// OnSkipFunc is called for messages that are not dispatched because they
// were published by the server itself.
type OnSkipFunc func(ctx context.Context, msg *Message)

// hooks holds all configured hook functions.
type hooks struct {
	onMatch    []OnMatchFunc
	onDispatch []OnDispatchFunc
	onSuccess  []OnSuccessFunc
	onFailure  []OnFailureFunc
	onNoRoute  []OnNoRouteFunc
	onSkip     []OnSkipFunc
}

// WithOnMatch adds a hook called after a topic matches a route.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	topicroute.WithOnMatch(func(ctx context.Context, topic string, rc *topicroute.RouteContext) context.Context {
//	    return trace.WithSpan(ctx, rc.Template.String())
//	})
func WithOnMatch(fn OnMatchFunc) Option {
	return func(r *Router) {
		r.hooks.onMatch = append(r.hooks.onMatch, fn)
	}
}

// WithOnDispatch adds a hook called just before the handler executes.
// Multiple hooks are called in order.
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(r *Router) {
		r.hooks.onDispatch = append(r.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after the handler completes successfully.
// Multiple hooks are called in order.
//
// Example:
//
//	topicroute.WithOnSuccess(func(ctx context.Context, cc *topicroute.ControllerContext, accepted bool, d time.Duration) {
//	    metrics.Timing("dispatch.success", d, "route:"+cc.Route.Template.String())
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(r *Router) {
		r.hooks.onSuccess = append(r.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called when a matched message is rejected
// because of an error. Use errors.Is with the package sentinels to tell
// binding, activation and invocation failures apart.
// Multiple hooks are called in order.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(r *Router) {
		r.hooks.onFailure = append(r.hooks.onFailure, fn)
	}
}

// WithOnNoRoute adds a hook called when no route matches.
// Multiple hooks are called in order.
func WithOnNoRoute(fn OnNoRouteFunc) Option {
	return func(r *Router) {
		r.hooks.onNoRoute = append(r.hooks.onNoRoute, fn)
	}
}

// WithOnSkip adds a hook called for server-originated messages.
// Multiple hooks are called in order.
func WithOnSkip(fn OnSkipFunc) Option {
	return func(r *Router) {
		r.hooks.onSkip = append(r.hooks.onSkip, fn)
	}
}

// OnDispatchHook is an optional interface that controller instances can
// implement to run code before their handler. Called after global
// OnDispatch hooks.
type OnDispatchHook interface {
	OnDispatch(ctx context.Context, cc *ControllerContext)
}

// OnFailureHook is an optional interface that controller instances can
// implement to observe their own handler failures. Called after global
// OnFailure hooks.
type OnFailureHook interface {
	OnFailure(ctx context.Context, cc *ControllerContext, err error)
}
