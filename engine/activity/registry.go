package activity

import (
	"context"
	"fmt"
	"sync"

	"github.com/opsai/opsflow/engine/core"
)

// ErrUnknownActivity is returned when a step references an activity that was
// never registered.
var ErrUnknownActivity = fmt.Errorf("unknown activity")

// Handler performs a step's actual side effect. config is the step config
// after template resolution; execContext is a read-only snapshot of the
// execution context. Handlers signal retryability through Transient and
// Permanent error wrappers.
type Handler func(ctx context.Context, config map[string]any, execContext map[string]any) (core.Output, error)

// Registry maps activity names to handlers. It is populated once at startup
// by the hosting application and only read afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("activity name is required")
	}
	if handler == nil {
		return fmt.Errorf("activity %q: handler is required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("activity %q already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, name)
	}
	return handler, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
