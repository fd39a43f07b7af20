package tcp

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// HandlerFunc turns one request into one response.
// A nil response means nothing is written back to the client.
// ctx is cancelled when the session closes.
type HandlerFunc func(ctx context.Context, s *Session, msg *Message) (*Message, error)

// HandlerRegistry maps message types to handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func NewHandlerRegistry(logger *slog.Logger) *HandlerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerRegistry{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register installs fn for msgType, replacing any previous handler.
// Registering a nil handler removes the entry.
func (r *HandlerRegistry) Register(msgType string, fn HandlerFunc) {
	if fn == nil {
		r.Unregister(msgType)
		return
	}
	r.mu.Lock()
	_, replaced := r.handlers[msgType]
	r.handlers[msgType] = fn
	r.mu.Unlock()
	r.logger.Info("handler_registered",
		"message_type", msgType,
		"replaced", replaced,
	)
}

func (r *HandlerRegistry) Unregister(msgType string) {
	r.mu.Lock()
	_, ok := r.handlers[msgType]
	delete(r.handlers, msgType)
	r.mu.Unlock()
	if ok {
		r.logger.Info("handler_unregistered",
			"message_type", msgType,
		)
	}
}

// Resolve returns the handler for msgType. The lock is released before returning,
// so running the handler never blocks registration.
func (r *HandlerRegistry) Resolve(msgType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[msgType]
	return fn, ok
}

func (r *HandlerRegistry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	r.mu.RUnlock()
	slices.Sort(types)
	return types
}
