package queue

import (
	"context"
	"sync"

	apperrors "streamq/pkg/errors"
	"streamq/pkg/models"
)

// HandlerFunc processes one envelope. Returning an error marks the delivery
// as failed and subjects the message to retry and poison routing.
type HandlerFunc func(ctx context.Context, env *models.Envelope) error

// Registry maps (queue, operation) pairs to handlers. A queue may also
// register a fallback that receives every operation without an exact match.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]map[string]HandlerFunc
	fallbacks map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		handlers:  make(map[string]map[string]HandlerFunc),
		fallbacks: make(map[string]HandlerFunc),
	}
}

func (r *Registry) Register(queue, operation string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops, ok := r.handlers[queue]
	if !ok {
		ops = make(map[string]HandlerFunc)
		r.handlers[queue] = ops
	}
	ops[operation] = handler
}

// RegisterFallback installs a handler that catches any operation on the
// queue without a dedicated handler.
func (r *Registry) RegisterFallback(queue string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[queue] = handler
}

// Resolve looks up the handler for an envelope's queue and operation.
func (r *Registry) Resolve(queue, operation string) (HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ops, ok := r.handlers[queue]; ok {
		if handler, ok := ops[operation]; ok {
			return handler, nil
		}
	}
	if handler, ok := r.fallbacks[queue]; ok {
		return handler, nil
	}
	return nil, apperrors.ErrUnknownDestination.
		WithDetail("queue", queue).
		WithDetail("operation", operation)
}

// Queues lists every queue with at least one registered handler.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for queue := range r.handlers {
		seen[queue] = struct{}{}
	}
	for queue := range r.fallbacks {
		seen[queue] = struct{}{}
	}

	queues := make([]string, 0, len(seen))
	for queue := range seen {
		queues = append(queues, queue)
	}
	return queues
}
