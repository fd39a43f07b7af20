package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/Giozar/distributed-systems/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
)

// ServerController is the part of *tcp.Server the admin API drives.
type ServerController interface {
	Start() error
	Stop() error
	Restart() error
	IsRunning() bool
	State() tcp.ServerState
	Addr() net.Addr
	ClientCount() int
	ClientInfos() []tcp.ClientInfo
	SendTo(id int64, msg *tcp.Message) error
	Broadcast(msg *tcp.Message) int
	HandlerTypes() []string
}

type ServerHandler struct {
	srv    ServerController
	logger *slog.Logger
}

func NewServerHandler(srv ServerController, logger *slog.Logger) *ServerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerHandler{srv: srv, logger: logger}
}

func (h *ServerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
	rg.POST("/start", h.Start)
	rg.POST("/stop", h.Stop)
	rg.POST("/restart", h.Restart)
	rg.GET("/clients", h.ListClients)
	rg.POST("/clients/:client_id/messages", h.SendToClient)
	rg.POST("/broadcast", h.Broadcast)
	rg.GET("/handlers", h.ListHandlers)
}

func (h *ServerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":  h.srv.IsRunning(),
		"state":    h.srv.State().String(),
		"addr":     h.addr(),
		"clients":  h.srv.ClientCount(),
		"handlers": h.srv.HandlerTypes(),
	})
}

func (h *ServerHandler) Start(c *gin.Context) {
	if err := h.srv.Start(); err != nil {
		h.fail(c, "admin_start_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "server started", "addr": h.addr()})
}

func (h *ServerHandler) Stop(c *gin.Context) {
	if err := h.srv.Stop(); err != nil {
		h.fail(c, "admin_stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "server stopped"})
}

func (h *ServerHandler) Restart(c *gin.Context) {
	if err := h.srv.Restart(); err != nil {
		h.fail(c, "admin_restart_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "server restarted", "addr": h.addr()})
}

// addr is empty when the server stopped again before the response was built.
func (h *ServerHandler) addr() string {
	if a := h.srv.Addr(); a != nil {
		return a.String()
	}
	return ""
}

func (h *ServerHandler) ListClients(c *gin.Context) {
	clients := h.srv.ClientInfos()
	c.JSON(http.StatusOK, gin.H{
		"data":  clients,
		"count": len(clients),
	})
}

// SendToClient pushes the message in the request body to one client.
// The body uses the wire format: {"type": ..., "content": ..., "payload": {...}}.
func (h *ServerHandler) SendToClient(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("client_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return
	}
	msg, ok := h.bindMessage(c)
	if !ok {
		return
	}
	if err := h.srv.SendTo(id, msg); err != nil {
		h.fail(c, "admin_send_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sent", "client_id": id})
}

func (h *ServerHandler) Broadcast(c *gin.Context) {
	msg, ok := h.bindMessage(c)
	if !ok {
		return
	}
	delivered := h.srv.Broadcast(msg)
	c.JSON(http.StatusOK, gin.H{"message": "broadcast sent", "delivered": delivered})
}

func (h *ServerHandler) ListHandlers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.srv.HandlerTypes()})
}

// bindMessage parses the body with the same rules the TCP decoder applies.
func (h *ServerHandler) bindMessage(c *gin.Context) (*tcp.Message, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, false
	}
	msg, err := tcp.ParseMessage(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return msg, true
}

func (h *ServerHandler) fail(c *gin.Context, event string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tcp.ErrClientNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tcp.ErrServerRunning), errors.Is(err, tcp.ErrServerStopped):
		status = http.StatusConflict
	case errors.Is(err, tcp.ErrSessionClosed):
		status = http.StatusGone
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(event, "error", err.Error())
	} else {
		h.logger.Info(event, "error", err.Error(), "status", status)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
