// Package di provides a small typed-token dependency injection container.
// Services are registered either eagerly by name or lazily via a factory
// bound to a typed token; factories run once on first resolution.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns a service registered under name, or nil.
	Get(name string) any
}

// Container is the full read/write container handed to modules.
type Container interface {
	ServiceRegistry
	// Register registers a ready-made service under name.
	Register(name string, service any)
	// RegisterFactory registers a lazy factory under name.
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

// Token is a typed handle to a registered service.
type Token[T any] struct {
	name string
}

// NewToken creates a typed token. The name must be unique per container.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the token's registration name.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a typed factory for the token.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service. It panics if the service is missing or
// of the wrong type - both indicate a wiring bug, not a runtime condition.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	svc := sr.Get(token.name)
	if svc == nil {
		panic(fmt.Sprintf("di: service %q not registered", token.name))
	}
	typed, ok := svc.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type %T", token.name, svc))
	}
	return typed
}

type container struct {
	mu        sync.Mutex
	services  map[string]any
	factories map[string]func(ServiceRegistry) any
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		services:  make(map[string]any),
		factories: make(map[string]func(ServiceRegistry) any),
	}
}

func (c *container) Register(name string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

func (c *container) Get(name string) any {
	c.mu.Lock()
	if svc, ok := c.services[name]; ok {
		c.mu.Unlock()
		return svc
	}
	factory, ok := c.factories[name]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	// Build outside the lock: factories may resolve other services.
	svc := factory(c)

	c.mu.Lock()
	c.services[name] = svc
	c.mu.Unlock()
	return svc
}
