package tcp

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const DefaultShutdownTimeout = 5 * time.Second

// ServerState is the lifecycle position of the acceptor.
type ServerState int32

const (
	ServerStopped ServerState = iota
	ServerStarting
	ServerRunning
	ServerStopping
)

func (st ServerState) String() string {
	switch st {
	case ServerStopped:
		return "STOPPED"
	case ServerStarting:
		return "STARTING"
	case ServerRunning:
		return "RUNNING"
	case ServerStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("ServerState(%d)", int32(st))
	}
}

// Options configures a Server. Zero values select defaults.
type Options struct {
	Host string // defaults to localhost
	Port int    // 0 binds an ephemeral port that is kept for later restarts

	ShutdownTimeout time.Duration // bound on waiting for session workers in Stop
	MaxConnections  int64         // concurrent sessions, 0 means unbounded

	MaxMessageSize int
	IdleTimeout    time.Duration // opt-in read deadline, zero or negative disables it
	WriteTimeout   time.Duration // negative disables the write deadline

	RateLimit float64 // messages per second per session, 0 disables
	RateBurst int

	Logger  *slog.Logger
	Metrics *Metrics
}

// run holds everything owned by one Start..Stop cycle, so a restart never
// shares a wait group or a listener with the previous cycle.
type run struct {
	listener       net.Listener
	running        atomic.Bool // single source of truth for accept more / keep sessions alive
	listenerClosed atomic.Bool
	workers        sync.WaitGroup // one per session goroutine
	acceptDone     chan struct{}
	slots          *semaphore.Weighted // nil when unbounded
	ctx            context.Context
	cancel         context.CancelFunc
}

func (r *run) active() bool {
	return r.running.Load()
}

// Server accepts TCP connections and serves each on its own goroutine.
type Server struct {
	host string
	port int
	opts Options

	clients    *ClientRegistry
	handlers   *HandlerRegistry
	dispatcher *Dispatcher
	metrics    *Metrics
	logger     *slog.Logger

	nextID atomic.Int64 // monotonic client id, first id is 1

	mu      sync.Mutex // serialises Start/Stop/Restart
	state   atomic.Int32
	current atomic.Pointer[run]
}

// constructor for Server
func NewServer(opts Options) (*Server, error) {
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, opts.Port)
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "tcp_server")
	handlers := NewHandlerRegistry(logger)

	return &Server{
		host:       opts.Host,
		port:       opts.Port,
		opts:       opts,
		clients:    NewClientRegistry(logger),
		handlers:   handlers,
		dispatcher: NewDispatcher(handlers, logger, opts.Metrics),
		metrics:    opts.Metrics,
		logger:     logger,
	}, nil
}

// RegisterHandler installs fn for msgType; it takes effect on the next message of that type.
func (s *Server) RegisterHandler(msgType string, fn HandlerFunc) *Server {
	s.handlers.Register(msgType, fn)
	return s
}

func (s *Server) UnregisterHandler(msgType string) *Server {
	s.handlers.Unregister(msgType)
	return s
}

func (s *Server) HandlerTypes() []string {
	return s.handlers.Types()
}

// Start binds the listener and begins accepting connections in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Load() != nil {
		s.logger.Info("server_already_running", "addr", s.address())
		return ErrServerRunning
	}
	s.state.Store(int32(ServerStarting))

	listener, err := net.Listen("tcp", s.address())
	if err != nil {
		s.state.Store(int32(ServerStopped))
		return fmt.Errorf("failed to start TCP server on %s: %w", s.address(), err)
	}
	if s.port == 0 {
		// keep the ephemeral port so a restart comes back on the same address
		if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
			s.port = tcpAddr.Port
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		listener:   listener,
		acceptDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	if s.opts.MaxConnections > 0 {
		r.slots = semaphore.NewWeighted(s.opts.MaxConnections)
	}
	r.running.Store(true)
	s.current.Store(r)
	s.state.Store(int32(ServerRunning))

	go s.acceptLoop(r)

	s.logger.Info("tcp_server_started",
		"addr", listener.Addr().String(),
		"max_connections", s.opts.MaxConnections,
	)
	return nil
}

// Stop closes every session and the listener, then waits up to the shutdown
// timeout for session workers. Workers still running after that are abandoned.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current.Load()
	if r == nil {
		s.logger.Info("server_already_stopped")
		return ErrServerStopped
	}
	s.state.Store(int32(ServerStopping))
	s.logger.Info("tcp_server_stopping",
		"clients", s.clients.Count(),
	)

	// 1. accept loop and session loops observe termination
	r.running.Store(false)
	r.cancel()

	// 2. force blocked reads to fail
	for _, sess := range s.clients.Snapshot() {
		if err := sess.Close(); err != nil {
			s.logger.Warn("client_close_failed",
				"client_id", sess.ID(),
				"error", err.Error(),
			)
		}
	}

	// 3. no new connections
	r.listenerClosed.Store(true)
	if err := r.listener.Close(); err != nil && !isClosedConnError(err) {
		s.logger.Warn("listener_close_failed", "error", err.Error())
	}

	// 4. the registry never outlives the run
	if removed := s.clients.Clear(); len(removed) > 0 {
		s.logger.Info("registry_cleared", "clients", len(removed))
	}
	s.metrics.resetClients()

	// 5. bounded wait for workers
	done := make(chan struct{})
	go func() {
		<-r.acceptDone
		r.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.ShutdownTimeout):
		s.logger.Warn("shutdown_timeout_abandoning_workers",
			"timeout", s.opts.ShutdownTimeout.String(),
		)
	}

	s.current.Store(nil)
	s.state.Store(int32(ServerStopped))
	s.logger.Info("tcp_server_stopped")
	return nil
}

// Restart stops the server if it is running and starts it again.
// Connections attempted between the two steps are refused.
func (s *Server) Restart() error {
	s.logger.Info("tcp_server_restarting")
	if err := s.Stop(); err != nil && !errors.Is(err, ErrServerStopped) {
		return err
	}
	return s.Start()
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	r := s.current.Load()
	return r != nil && r.running.Load() && !r.listenerClosed.Load()
}

func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// Addr returns the bound listener address, or nil while stopped.
func (s *Server) Addr() net.Addr {
	r := s.current.Load()
	if r == nil {
		return nil
	}
	return r.listener.Addr()
}

func (s *Server) ClientCount() int {
	return s.clients.Count()
}

func (s *Server) ClientIDs() []int64 {
	return s.clients.IDs()
}

// Clients exposes the registry for read-only inspection by handlers.
func (s *Server) Clients() *ClientRegistry {
	return s.clients
}

// ClientInfo describes one connected session for operational listings.
type ClientInfo struct {
	ID          int64     `json:"id"`
	Session     string    `json:"session"`
	RemoteAddr  string    `json:"remote_addr"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ClientInfos lists the connected sessions ordered by id.
func (s *Server) ClientInfos() []ClientInfo {
	sessions := s.clients.Snapshot()
	infos := make([]ClientInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, ClientInfo{
			ID:          sess.ID(),
			Session:     sess.Tag(),
			RemoteAddr:  sess.RemoteAddr(),
			State:       sess.State().String(),
			ConnectedAt: sess.ConnectedAt(),
		})
	}
	slices.SortFunc(infos, func(a, b ClientInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// SendTo pushes msg to one client outside of any request/response exchange.
func (s *Server) SendTo(id int64, msg *Message) error {
	sess, ok := s.clients.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrClientNotFound, id)
	}
	if err := sess.Send(msg); err != nil {
		s.logger.Error("send_to_client_failed",
			"client_id", id,
			"message_type", msg.Type,
			"error", err.Error(),
		)
		return err
	}
	s.logger.Info("message_sent_to_client",
		"client_id", id,
		"message_type", msg.Type,
	)
	return nil
}

// Broadcast writes msg to every client connected at call time and returns how
// many writes succeeded. A failing client does not stop delivery to the others.
func (s *Server) Broadcast(msg *Message) int {
	return s.broadcast(msg, 0)
}

// BroadcastExcept is Broadcast without the client identified by skip.
func (s *Server) BroadcastExcept(skip int64, msg *Message) int {
	return s.broadcast(msg, skip)
}

func (s *Server) broadcast(msg *Message, skip int64) int {
	delivered := 0
	recipients := 0
	s.clients.ForEach(func(sess *Session) {
		if sess.ID() == skip {
			return
		}
		recipients++
		if err := sess.Send(msg); err != nil {
			s.metrics.broadcastFailed()
			s.logger.Warn("failed_to_send_broadcast",
				"client_id", sess.ID(),
				"error", err.Error(),
			)
			return
		}
		delivered++
	})
	s.logger.Info("broadcast_sent",
		"message_type", msg.Type,
		"recipients", recipients,
		"delivered", delivered,
	)
	return delivered
}

func (s *Server) address() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// acceptLoop runs until the run is stopped or its listener is gone.
func (s *Server) acceptLoop(r *run) {
	defer close(r.acceptDone)

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		if r.slots != nil {
			if err := r.slots.Acquire(r.ctx, 1); err != nil {
				return // stopped while waiting for a free slot
			}
		}

		conn, err := r.listener.Accept()
		if err != nil {
			if r.slots != nil {
				r.slots.Release(1)
			}
			if !r.active() {
				return // listener closed by Stop
			}
			if errors.Is(err, net.ErrClosed) {
				s.logger.Error("listener_closed_unexpectedly", "error", err.Error())
				r.listenerClosed.Store(true)
				return
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.logger.Error("failed_to_accept_connection",
				"error", err.Error(),
				"retry_in", tempDelay.String(),
			)
			select {
			case <-time.After(tempDelay):
			case <-r.ctx.Done():
				return
			}
			continue
		}
		tempDelay = 0

		if !r.active() {
			conn.Close()
			if r.slots != nil {
				r.slots.Release(1)
			}
			return
		}

		id := s.nextID.Add(1)
		sess := NewSession(id, conn, s.sessionOptions(), s.logger)

		// add +1 to wait group for the new connection handler goroutine
		r.workers.Add(1)
		go func() {
			defer r.workers.Done()
			if r.slots != nil {
				defer r.slots.Release(1)
			}
			s.handleConnection(r, sess)
		}()
	}
}

// handleConnection drives one session from registration to teardown.
func (s *Server) handleConnection(r *run, sess *Session) {
	// pushes that see the session in the registry wait for the WELCOME
	sess.holdWriter()
	s.clients.Add(sess)
	s.metrics.clientConnected()

	defer func() {
		sess.setState(StateClosing)
		if s.clients.Remove(sess.ID()) {
			s.metrics.clientDisconnected()
		}
		if err := sess.Close(); err != nil {
			s.logger.Warn("client_close_failed",
				"client_id", sess.ID(),
				"error", err.Error(),
			)
		}
	}()

	if !r.active() {
		sess.releaseWriter()
		return // stopped between accept and registration
	}
	if err := sess.welcome(); err != nil {
		s.logger.Warn("welcome_failed",
			"client_id", sess.ID(),
			"error", err.Error(),
		)
		return
	}
	sess.Listen(r.active, s.dispatcher)
}

func (s *Server) sessionOptions() SessionOptions {
	opts := SessionOptions{
		MaxMessageSize: s.opts.MaxMessageSize,
		IdleTimeout:    s.opts.IdleTimeout,
		WriteTimeout:   s.opts.WriteTimeout,
	}
	if s.opts.RateLimit > 0 {
		burst := s.opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst)
	}
	return opts
}
