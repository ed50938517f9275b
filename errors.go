package topicroute

import (
	"errors"
	"fmt"
)

// Startup errors. These are returned from registration and configuration and
// prevent the router from becoming ready.
var (
	// ErrMalformedTemplate is returned when a topic template cannot be parsed.
	ErrMalformedTemplate = errors.New("malformed topic template")

	// ErrAmbiguousRoute is returned when a template is structurally identical
	// to one that is already registered.
	ErrAmbiguousRoute = errors.New("ambiguous route")

	// ErrInvalidHandler is returned when a handler descriptor is incomplete or
	// declares a return shape that does not match its callable.
	ErrInvalidHandler = errors.New("invalid handler")

	// ErrSealed is returned when registering after the first dispatch.
	ErrSealed = errors.New("router sealed")

	// ErrInvalidConfig is returned when configuration fails validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// Per-message errors. Dispatch converts every one of these into a reject
// decision and reports it through the logger and the OnFailure hooks.
var (
	// ErrUnresolvedParameter is returned when a required parameter has no value.
	ErrUnresolvedParameter = errors.New("unresolved parameter")

	// ErrTypeMismatch is returned when a value cannot be converted to the
	// parameter's declared type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrHandlerInvocation is returned when the handler body fails or panics.
	ErrHandlerInvocation = errors.New("handler invocation failed")

	// ErrActivation is returned when a controller instance or a service
	// cannot be created.
	ErrActivation = errors.New("activation failed")

	// ErrGuardRejected is returned when a route guard does not accept the
	// payload.
	ErrGuardRejected = errors.New("guard rejected payload")
)

// TemplateError describes why a template failed to parse.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformedTemplate, e.Template, e.Reason)
}

func (e *TemplateError) Unwrap() error { return ErrMalformedTemplate }

func malformed(template, format string, args ...any) error {
	return &TemplateError{Template: template, Reason: fmt.Sprintf(format, args...)}
}

// BindError reports a parameter that could not be bound. Kind is
// ErrUnresolvedParameter or ErrTypeMismatch.
type BindError struct {
	Kind  error
	Param string

	// From and To name the source and target types of a failed conversion.
	From string
	To   string

	// Member is set instead of To when a controller member could not be
	// set from a template parameter, as in "WeatherController.ZipCode".
	Member string

	Err error
}

func (e *BindError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrUnresolvedParameter):
		return fmt.Sprintf("%s: no value for parameter %q", e.Kind, e.Param)
	case e.Member != "":
		return fmt.Sprintf("%s: cannot set member %s from parameter %q: %v", e.Kind, e.Member, e.Param, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: cannot assign %s to parameter %q of type %s: %v", e.Kind, e.From, e.Param, e.To, e.Err)
	default:
		return fmt.Sprintf("%s: cannot assign %s to parameter %q of type %s", e.Kind, e.From, e.Param, e.To)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *BindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unresolved(param string) error {
	return &BindError{Kind: ErrUnresolvedParameter, Param: param}
}

func mismatch(param, from, to string, err error) error {
	return &BindError{Kind: ErrTypeMismatch, Param: param, From: from, To: to, Err: err}
}

// InvocationError wraps a failure raised by a handler body.
type InvocationError struct {
	Handler string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrHandlerInvocation, e.Handler, e.Err)
}

func (e *InvocationError) Unwrap() []error { return []error{ErrHandlerInvocation, e.Err} }

// activationError wraps instance and service creation failures.
type activationError struct {
	what string
	err  error
}

func (e *activationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrActivation, e.what, e.err)
}

func (e *activationError) Unwrap() []error { return []error{ErrActivation, e.err} }
