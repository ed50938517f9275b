package topicroute

import (
	"context"
	"fmt"
	"reflect"
)

// Kind is the semantic type of a formal parameter.
type Kind int

const (
	// KindAny accepts the raw value without conversion.
	KindAny Kind = iota
	KindString
	KindInt
	KindInt64
	KindUint
	KindFloat64
	KindBool
	KindBytes
	KindDuration

	// KindCustom converts route values with Param.Convert.
	KindCustom
)

var kindNames = [...]string{
	KindAny:      "any",
	KindString:   "string",
	KindInt:      "int",
	KindInt64:    "int64",
	KindUint:     "uint",
	KindFloat64:  "float64",
	KindBool:     "bool",
	KindBytes:    "[]byte",
	KindDuration: "time.Duration",
	KindCustom:   "custom",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Source tells the binder where a parameter's value comes from.
type Source int

const (
	// Unannotated parameters are looked up in the route parameters by name.
	Unannotated Source = iota

	// FromRoute parameters are looked up in the route parameters by name.
	FromRoute

	// FromPayload parameters are decoded from the whole payload.
	FromPayload

	// FromPayloadField parameters are read from one field of a JSON payload.
	FromPayloadField

	// FromService parameters are resolved from the activator by type.
	FromService
)

func (s Source) String() string {
	switch s {
	case FromRoute:
		return "route"
	case FromPayload:
		return "payload"
	case FromPayloadField:
		return "payload-field"
	case FromService:
		return "service"
	default:
		return "unannotated"
	}
}

// Param describes one formal parameter of a handler. Params are declared
// once at registration; the binder dispatches on Source and Kind instead of
// inspecting the handler at runtime.
type Param struct {
	Name   string
	Kind   Kind
	Source Source

	// Optional parameters bind Default (nil unless set) when no value exists.
	Optional bool
	Default  any

	// Path is the gjson path for FromPayloadField parameters.
	Path string

	// Type is the declared Go type for FromPayload and FromService parameters.
	Type reflect.Type

	// Convert turns a route value into the parameter's type for KindCustom.
	Convert func(string) (any, error)

	decode func(codec Codec, data []byte) (any, error)
}

// Route declares a required route parameter.
func Route(name string, kind Kind) Param {
	return Param{Name: name, Kind: kind, Source: FromRoute}
}

// OptionalRoute declares a route parameter that binds def when the matched
// template does not capture it.
func OptionalRoute(name string, kind Kind, def any) Param {
	return Param{Name: name, Kind: kind, Source: FromRoute, Optional: true, Default: def}
}

// Converted declares a route parameter converted by fn.
func Converted(name string, fn func(string) (any, error)) Param {
	return Param{Name: name, Kind: KindCustom, Source: FromRoute, Convert: fn}
}

// Field declares a parameter read from a field of a JSON payload using a
// gjson path.
func Field(name, path string, kind Kind) Param {
	return Param{Name: name, Kind: kind, Source: FromPayloadField, Path: path}
}

// Payload declares a parameter decoded from the message payload into T
// using the router's codec. If T (or *T) implements Validate() error, the
// decoded value is validated.
func Payload[T any](name string) Param {
	return Param{
		Name:   name,
		Kind:   KindAny,
		Source: FromPayload,
		Type:   reflect.TypeFor[T](),
		decode: func(codec Codec, data []byte) (any, error) {
			var v T
			if err := codec.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			if err := validate(&v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Service declares a parameter resolved from the activator by type T.
func Service[T any](name string) Param {
	return Param{Name: name, Kind: KindAny, Source: FromService, Type: reflect.TypeFor[T]()}
}

// validatable is the interface for payload validation.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

func validate[T any](v *T) error {
	if x, ok := any(*v).(validatable); ok {
		return x.Validate()
	}
	if x, ok := any(v).(validatable); ok {
		return x.Validate()
	}
	return nil
}

// Args holds the bound arguments of one invocation in declaration order.
type Args struct {
	names  map[string]int
	values []any
}

func newArgs(params []Param) Args {
	a := Args{names: make(map[string]int, len(params)), values: make([]any, len(params))}
	for i, p := range params {
		a.names[p.Name] = i
	}
	return a
}

// Len returns the number of bound arguments.
func (a Args) Len() int { return len(a.values) }

// Index returns the i-th argument.
func (a Args) Index(i int) any { return a.values[i] }

// Get returns the argument bound to the named parameter.
func (a Args) Get(name string) (any, bool) {
	i, ok := a.names[name]
	if !ok {
		return nil, false
	}
	return a.values[i], true
}

// Arg returns the named argument as T. It returns the zero value when the
// parameter is unknown, bound to nil, or of a different type.
func Arg[T any](a Args, name string) T {
	v, _ := a.Get(name)
	t, _ := v.(T)
	return t
}

// Returns is the completion shape of a handler.
type Returns int

const (
	// ReturnsNothing handlers complete when Action returns.
	ReturnsNothing Returns = iota

	// ReturnsCompletion handlers complete when the channel returned by
	// AsyncAction yields or is closed.
	ReturnsCompletion
)

// Action is a fire-and-forget handler body. The instance is the value
// returned by the activator for the handler's controller.
type Action func(ctx context.Context, instance any, args Args) error

// AsyncAction is an awaitable handler body. The router waits for the
// returned channel to deliver an error or close, or for ctx to be done.
// Once ctx is done the message is rejected and later Accept or Reject
// calls on the ControllerContext are ignored. Handlers must not write
// Message.Accept directly.
type AsyncAction func(ctx context.Context, instance any, args Args) <-chan error

// Handler describes a registered callable.
type Handler struct {
	// Name identifies the handler in logs and metrics. Defaults to the
	// route template.
	Name string

	// Template is the topic template, relative to the controller prefix.
	Template string

	Params  []Param
	Returns Returns
	Action  Action
	Async   AsyncAction

	// Guard, when set, must match the payload view for the handler to run.
	Guard Discriminator

	controller *Controller
	template   Template
}

// Controller returns the declaring controller.
func (h *Handler) Controller() *Controller { return h.controller }

// Route returns the full parsed template, including the controller prefix.
func (h *Handler) Route() Template { return h.template }

func (h *Handler) validate() error {
	switch h.Returns {
	case ReturnsNothing:
		if h.Action == nil || h.Async != nil {
			return fmt.Errorf("%w: %s: fire-and-forget handlers set Action only", ErrInvalidHandler, h.Name)
		}
	case ReturnsCompletion:
		if h.Async == nil || h.Action != nil {
			return fmt.Errorf("%w: %s: awaitable handlers set Async only", ErrInvalidHandler, h.Name)
		}
	default:
		return fmt.Errorf("%w: %s: unsupported return shape %d", ErrInvalidHandler, h.Name, h.Returns)
	}

	seen := make(map[string]struct{}, len(h.Params))
	for _, p := range h.Params {
		if p.Name == "" {
			return fmt.Errorf("%w: %s: parameter without a name", ErrInvalidHandler, h.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate parameter %q", ErrInvalidHandler, h.Name, p.Name)
		}
		seen[p.Name] = struct{}{}

		switch {
		case p.Source == FromPayload && p.decode == nil:
			return fmt.Errorf("%w: %s: payload parameter %q must be declared with Payload[T]", ErrInvalidHandler, h.Name, p.Name)
		case p.Source == FromService && p.Type == nil:
			return fmt.Errorf("%w: %s: service parameter %q has no type", ErrInvalidHandler, h.Name, p.Name)
		case p.Source == FromPayloadField && p.Path == "":
			return fmt.Errorf("%w: %s: payload field parameter %q has no path", ErrInvalidHandler, h.Name, p.Name)
		case p.Kind == KindCustom && p.Convert == nil:
			return fmt.Errorf("%w: %s: custom parameter %q has no converter", ErrInvalidHandler, h.Name, p.Name)
		}
	}
	return nil
}

// Member binds a controller-level route parameter onto an instance. Set
// receives the instance created by the activator and the captured value.
type Member struct {
	Name  string
	Param string
	Set   func(instance any, value string) error
}

// Constructor creates a controller instance for one message. The controller
// context is passed in so the instance is fully initialized on return.
type Constructor func(ctx context.Context, cc *ControllerContext, services ServiceResolver) (any, error)

// Controller groups handlers under a declaring type with an optional
// template prefix.
type Controller struct {
	// Name is the declaring type name used in logs.
	Name string

	// Prefix is prepended to every handler template. It may contain
	// parameters that Members bind onto the instance.
	Prefix string

	New     Constructor
	Members []Member

	prefix Template
}

func (c *Controller) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: controller without a name", ErrInvalidHandler)
	}
	if c.Prefix == "" {
		if len(c.Members) > 0 {
			return fmt.Errorf("%w: controller %s binds members without a template prefix", ErrInvalidHandler, c.Name)
		}
		return nil
	}

	prefix, err := ParseTemplate(c.Prefix)
	if err != nil {
		return err
	}
	if prefix.HasCatchAll() {
		return malformed(c.Prefix, "controller prefix cannot end in a catch-all")
	}

	params := make(map[string]struct{})
	for _, name := range prefix.Params() {
		params[name] = struct{}{}
	}
	for _, m := range c.Members {
		if m.Set == nil {
			return fmt.Errorf("%w: controller %s member %q has no setter", ErrInvalidHandler, c.Name, m.Name)
		}
		if _, ok := params[m.Param]; !ok {
			return fmt.Errorf("%w: controller %s member %q binds unknown prefix parameter %q", ErrInvalidHandler, c.Name, m.Name, m.Param)
		}
	}

	c.prefix = prefix
	return nil
}

// HasParameters reports whether the controller prefix captures values.
func (c *Controller) HasParameters() bool { return len(c.prefix.Params()) > 0 }

// Method adapts a method expression on controller type T to an Action:
//
//	Action: topicroute.Method((*WeatherController).Temperature)
func Method[T any](fn func(c T, ctx context.Context, args Args) error) Action {
	return func(ctx context.Context, instance any, args Args) error {
		c, ok := instance.(T)
		if !ok {
			return fmt.Errorf("instance is %T, want %v", instance, reflect.TypeFor[T]())
		}
		return fn(c, ctx, args)
	}
}

// AsyncMethod adapts a method expression on controller type T to an
// AsyncAction.
func AsyncMethod[T any](fn func(c T, ctx context.Context, args Args) <-chan error) AsyncAction {
	return func(ctx context.Context, instance any, args Args) <-chan error {
		c, ok := instance.(T)
		if !ok {
			done := make(chan error, 1)
			done <- fmt.Errorf("instance is %T, want %v", instance, reflect.TypeFor[T]())
			return done
		}
		return fn(c, ctx, args)
	}
}

// Go runs fn on a new goroutine and returns its completion channel. Use it
// to build AsyncAction bodies. A panic in fn is delivered as an error.
func Go(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- fn()
	}()
	return done
}
