package tcp

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *HandlerRegistry, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	handlers := NewHandlerRegistry(quietLogger())
	return NewDispatcher(handlers, quietLogger(), metrics), handlers, metrics
}

func TestDispatch_UnsupportedType(t *testing.T) {
	d, _, metrics := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), newTestSession(1), NewMessage("PING"))
	require.NotNil(t, resp)
	assert.Equal(t, "PING", resp.Type)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "unsupported message type: PING", resp.Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.messagesTotal.WithLabelValues(unsupportedLabel, "ERROR")))
}

func TestDispatch_ReturnsHandlerResponse(t *testing.T) {
	d, handlers, metrics := newTestDispatcher(t)
	handlers.Register("PING", func(ctx context.Context, s *Session, msg *Message) (*Message, error) {
		return NewSuccessMessage("PING", "pong").With("client", s.ID()), nil
	})

	resp := d.Dispatch(context.Background(), newTestSession(9), NewMessage("PING"))
	require.NotNil(t, resp)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, int64(9), resp.Payload["client"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.messagesTotal.WithLabelValues("PING", "SUCCESS")))
}

func TestDispatch_HandlerErrorBecomesErrorMessage(t *testing.T) {
	d, handlers, _ := newTestDispatcher(t)
	handlers.Register("CREATE_TRANSACTION", func(ctx context.Context, s *Session, msg *Message) (*Message, error) {
		return nil, errors.New("database unavailable")
	})

	resp := d.Dispatch(context.Background(), newTestSession(1), NewMessage("CREATE_TRANSACTION"))
	require.NotNil(t, resp)
	assert.Equal(t, "CREATE_TRANSACTION", resp.Type)
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Content, "database unavailable")
}

func TestDispatch_HandlerPanicIsIsolated(t *testing.T) {
	d, handlers, _ := newTestDispatcher(t)
	handlers.Register("BOOM", func(ctx context.Context, s *Session, msg *Message) (*Message, error) {
		var m map[string]int
		m["x"] = 1 // nil map write
		return nil, nil
	})

	resp := d.Dispatch(context.Background(), newTestSession(1), NewMessage("BOOM"))
	require.NotNil(t, resp)
	assert.Equal(t, "BOOM", resp.Type)
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Content, "handler panic")
}

func TestDispatch_NilResponseIsNotification(t *testing.T) {
	d, handlers, _ := newTestDispatcher(t)
	called := false
	handlers.Register("NOTIFY", func(ctx context.Context, s *Session, msg *Message) (*Message, error) {
		called = true
		return nil, nil
	})

	resp := d.Dispatch(context.Background(), newTestSession(1), NewMessage("NOTIFY"))
	assert.Nil(t, resp)
	assert.True(t, called)
}

func TestDispatch_FillsTypeAndStatus(t *testing.T) {
	d, handlers, _ := newTestDispatcher(t)
	handlers.Register("ECHO", func(ctx context.Context, s *Session, msg *Message) (*Message, error) {
		return &Message{Content: "echo"}, nil
	})

	resp := d.Dispatch(context.Background(), newTestSession(1), NewMessage("ECHO"))
	require.NotNil(t, resp)
	assert.Equal(t, "ECHO", resp.Type)
	assert.Equal(t, StatusSuccess, resp.Status)
}

func TestDispatch_NilMetricsIsNoop(t *testing.T) {
	handlers := NewHandlerRegistry(quietLogger())
	d := NewDispatcher(handlers, nil, nil)

	resp := d.Dispatch(context.Background(), newTestSession(1), NewMessage("ANY"))
	require.NotNil(t, resp)
	assert.True(t, resp.IsError())
}
