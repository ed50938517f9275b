// Package topicroute routes published messages to handlers by topic, the way
// an HTTP router routes requests by path.
//
// A message carries a hierarchical topic ("zone/90210/reading"), a binary
// payload and the id of the client that published it. The router matches
// the topic against registered templates, binds route parameters, payload
// and services to the handler's declared parameters, invokes the handler
// and records whether the message should be forwarded to other
// subscribers.
//
// # Quick Start
//
// Register a handler and call Dispatch from your broker's publish
// interceptor:
//
//	r := topicroute.New(topicroute.WithUnmatchedRoutePolicy(topicroute.RejectUnmatched))
//
//	err := r.Handle("zone/{zoneId}/reading", func(ctx context.Context, cc *topicroute.ControllerContext, args topicroute.Args) error {
//	    zone := topicroute.Arg[int](args, "zoneId")
//	    reading := topicroute.Arg[Reading](args, "reading")
//	    return store.Save(ctx, zone, reading)
//	}, topicroute.Route("zoneId", topicroute.KindInt), topicroute.Payload[Reading]("reading"))
//
//	// In the broker's publish interceptor
//	msg := &topicroute.Message{Topic: topic, Payload: payload, ClientID: clientID, Accept: true}
//	r.Dispatch(ctx, msg)
//	if !msg.Accept {
//	    // drop the publish
//	}
//
// # Topic Templates
//
// Templates are split on "/". Each segment is one of:
//
//   - a literal, matched exactly and case-sensitively
//   - {name}, matching any single segment and capturing it as name
//   - a trailing catch-all ("*", "**", "#" or {*name}), matching zero or
//     more remaining segments and capturing them joined with "/"
//
// When several templates match, the most specific wins: more literal
// segments first, then fewer capturing segments, then templates without a
// catch-all, then registration order. For the topic "a/b" the template
// "a/b" beats "a/{p}", which beats "a/*". Two templates with the same shape
// ("a/{x}" and "a/{y}") cannot both be registered; Register returns
// ErrAmbiguousRoute.
//
// # Controllers
//
// Handlers are grouped under a Controller, which names the declaring type,
// an optional template prefix and a constructor. The router asks its
// Activator for a fresh instance per message, passing the ControllerContext
// to the constructor so the instance is complete when it is returned:
//
//	weather := &topicroute.Controller{
//	    Name:   "WeatherController",
//	    Prefix: "weather/{zipCode}",
//	    New:    newWeatherController,
//	    Members: []topicroute.Member{{
//	        Name:  "ZipCode",
//	        Param: "zipCode",
//	        Set: func(c any, v string) error {
//	            c.(*WeatherController).ZipCode = v
//	            return nil
//	        },
//	    }},
//	}
//
//	err := r.Register(weather, &topicroute.Handler{
//	    Template: "temperature",
//	    Params:   []topicroute.Param{topicroute.Payload[Reading]("reading")},
//	    Action:   topicroute.Method((*WeatherController).Temperature),
//	})
//
// Members bind prefix parameters onto the instance. They are checked
// against the prefix at registration, so a typo fails at startup rather
// than on the first message.
//
// # Parameters
//
// Each Param declares a name, a semantic Kind and a Source:
//
//   - Route (or an unannotated Param): looked up by name in the captured
//     route values and converted to Kind
//   - Payload[T]: the payload decoded into T by the router's Codec
//   - Field: one field of a JSON payload, read with a gjson path
//   - Service[T]: resolved by type from the Activator
//
// A missing required value fails with ErrUnresolvedParameter; a value that
// cannot be converted fails with ErrTypeMismatch. Either way the handler is
// not invoked and the message is rejected.
//
// # Guards
//
// A Handler's Guard is checked against a View of the message before any
// controller is created. A View exposes the captured route values and the
// JSON payload:
//
//	&topicroute.Handler{
//	    Template: "sensors/{zone}/reading",
//	    Guard: topicroute.And(
//	        topicroute.FieldIn("unit", "celsius", "kelvin"),
//	        topicroute.Not(topicroute.ParamEquals("zone", "test")),
//	    ),
//	    Action: topicroute.Method((*SensorController).Reading),
//	}
//
// A guard that does not match, or a payload that is not JSON, rejects the
// message with ErrGuardRejected.
//
// # Forwarding Decision
//
// Dispatch never fails. It writes its decision to Message.Accept:
//
//   - messages without a ClientID were published by the server itself and
//     are left untouched
//   - unmatched topics follow the UnmatchedRoutePolicy (accept by default)
//   - matched messages are accepted before the handler runs; the handler
//     may reject them with ControllerContext.Reject or BaseController.BadMessage
//   - activation, binding, guard and handler failures reject the message
//     and are reported through the logger and the OnFailure hooks
//
// # Hooks
//
// Hooks provide observability without coupling to a metrics system:
//
//	r := topicroute.New(
//	    topicroute.WithOnSuccess(func(ctx context.Context, cc *topicroute.ControllerContext, accepted bool, d time.Duration) {
//	        metrics.Timing("dispatch.success", d)
//	    }),
//	    topicroute.WithOnFailure(func(ctx context.Context, rc *topicroute.RouteContext, err error, d time.Duration) {
//	        metrics.Incr("dispatch.failure")
//	    }),
//	)
//
// The metrics sub-package provides Prometheus collectors built on these
// hooks, and natsbridge feeds a router from NATS subjects.
//
// # Thread Safety
//
// Router is safe for concurrent use once registration is complete. The
// first Dispatch seals the route table; later calls to Register return
// ErrSealed.
package topicroute
