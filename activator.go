package topicroute

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrServiceNotFound is returned by Container when no service is
// registered for a type.
var ErrServiceNotFound = errors.New("service not found")

// ServiceResolver resolves services by type.
type ServiceResolver interface {
	ResolveService(ctx context.Context, t reflect.Type) (any, error)
}

// Activator creates controller instances and resolves services. It is
// usually backed by the application's dependency-injection container.
// Both methods may fail; the router reports failures as ErrActivation.
type Activator interface {
	ServiceResolver

	// CreateInstance returns a new instance of the controller for one
	// message. Instances are never reused across messages.
	CreateInstance(ctx context.Context, c *Controller, cc *ControllerContext) (any, error)
}

// Container is a minimal Activator. Services are registered by type and
// controllers are built with their Constructor.
type Container struct {
	mu       sync.RWMutex
	services map[reflect.Type]func(ctx context.Context) (any, error)
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{services: make(map[reflect.Type]func(ctx context.Context) (any, error))}
}

// Provide registers a singleton service under type T.
func Provide[T any](c *Container, service T) {
	c.set(reflect.TypeFor[T](), func(context.Context) (any, error) { return service, nil })
}

// ProvideFunc registers a factory under type T. The factory runs on every
// resolution, so each message gets its own value.
func ProvideFunc[T any](c *Container, factory func(ctx context.Context) (T, error)) {
	c.set(reflect.TypeFor[T](), func(ctx context.Context) (any, error) {
		return factory(ctx)
	})
}

func (c *Container) set(t reflect.Type, fn func(ctx context.Context) (any, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[t] = fn
}

// Has reports whether a service is registered for t.
func (c *Container) Has(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[t]
	return ok
}

// ResolveService implements ServiceResolver.
func (c *Container) ResolveService(ctx context.Context, t reflect.Type) (any, error) {
	c.mu.RLock()
	fn, ok := c.services[t]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, t)
	}
	return fn(ctx)
}

// CreateInstance implements Activator.
func (c *Container) CreateInstance(ctx context.Context, ctrl *Controller, cc *ControllerContext) (any, error) {
	if ctrl.New == nil {
		return nil, fmt.Errorf("controller %s has no constructor", ctrl.Name)
	}
	inst, err := ctrl.New(ctx, cc, c)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("controller %s constructor returned nil", ctrl.Name)
	}
	return inst, nil
}

// Resolve is a typed helper over ServiceResolver.
func Resolve[T any](ctx context.Context, r ServiceResolver) (T, error) {
	var zero T
	v, err := r.ResolveService(ctx, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("service for %v has type %T", reflect.TypeFor[T](), v)
	}
	return t, nil
}
