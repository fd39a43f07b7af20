package router_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Giozar/distributed-systems/internal/microservices/http-api/router"
	"github.com/Giozar/distributed-systems/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The router drives a real TCP server end to end.
func TestRouter_ControlsRealServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	srv, err := tcp.NewServer(tcp.Options{
		Host:    "127.0.0.1",
		Logger:  logger,
		Metrics: tcp.NewMetrics(reg),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })

	r := router.New(srv, reg, logger)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "/check-conn", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "STOPPED")

	w = do(http.MethodPost, "/api/server/stop", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(http.MethodPost, "/api/server/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, srv.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := tcp.Dial(ctx, srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	w = do(http.MethodPost, "/api/server/broadcast", `{"type":"NOTICE","content":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, float64(1), out["delivered"])

	push, err := client.Receive()
	require.NoError(t, err)
	assert.Equal(t, "NOTICE", push.Type)
	assert.Equal(t, "hi", push.Content)

	w = do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "txserver_connected_clients 1")

	w = do(http.MethodPost, "/api/server/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, srv.IsRunning())
}
