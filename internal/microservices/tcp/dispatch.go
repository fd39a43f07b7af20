package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Dispatcher routes a message to its registered handler and isolates handler faults.
type Dispatcher struct {
	handlers *HandlerRegistry
	logger   *slog.Logger
	metrics  *Metrics
}

func NewDispatcher(handlers *HandlerRegistry, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: handlers,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch resolves msg.Type and runs the handler.
// Unknown types and failing handlers produce an ERROR response carrying the request type.
// The result is nil only when the handler chose not to answer.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, msg *Message) *Message {
	handler, ok := d.handlers.Resolve(msg.Type)
	if !ok {
		d.logger.Warn("unsupported_message_type",
			"client_id", s.ID(),
			"message_type", msg.Type,
		)
		d.metrics.unsupported()
		return NewErrorMessage(msg.Type, "unsupported message type: "+msg.Type)
	}

	start := time.Now()
	resp, err := d.invoke(ctx, handler, s, msg)
	took := time.Since(start)

	if err != nil {
		d.logger.Error("handler_failed",
			"client_id", s.ID(),
			"message_type", msg.Type,
			"error", err.Error(),
		)
		resp = NewErrorMessage(msg.Type, "error processing request: "+err.Error())
	}
	if resp == nil {
		d.metrics.observeDispatch(msg.Type, "", took)
		return nil
	}

	// responses always carry a type and a status
	if resp.Type == "" {
		resp.Type = msg.Type
	}
	if resp.Status == "" {
		resp.Status = StatusSuccess
	}
	d.metrics.observeDispatch(msg.Type, resp.Status, took)
	return resp
}

// invoke runs the handler and turns a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, handler HandlerFunc, s *Session, msg *Message) (resp *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("handler_panic_stack", "stack", string(debug.Stack()))
			resp = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, s, msg)
}
