package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultWriteTimeout bounds a single write so a stuck peer never hangs a sender.
const DefaultWriteTimeout = 10 * time.Second

// SessionState is the lifecycle position of a connection session.
type SessionState int32

const (
	StateConnecting SessionState = iota // accepted, not yet registered
	StateWelcomed                       // registered and WELCOME written
	StateServing                        // receive-dispatch-respond loop
	StateClosing                        // exit condition met, releasing resources
	StateClosed                         // terminal
)

func (st SessionState) String() string {
	switch st {
	case StateConnecting:
		return "CONNECTING"
	case StateWelcomed:
		return "WELCOMED"
	case StateServing:
		return "SERVING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(st))
	}
}

// SessionOptions tunes a single session. Zero values select defaults,
// negative timeouts disable the deadline.
type SessionOptions struct {
	MaxMessageSize int
	IdleTimeout    time.Duration // read deadline between two messages, zero or negative waits forever
	WriteTimeout   time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
}

// Session is the server side of one accepted connection.
type Session struct {
	id          int64  // unique for the lifetime of the process = key in registry
	tag         string // random tag that correlates log lines across restarts
	conn        net.Conn
	connectedAt time.Time
	state       atomic.Int32

	decoder *Decoder
	encoder *Encoder
	writeMu sync.Mutex // one writer at a time: responses, pushes and broadcasts share the socket

	writerHeld bool // writeMu held since before registration, owned by the serving goroutine

	idleTimeout  time.Duration
	writeTimeout time.Duration
	limiter      *rate.Limiter

	ctx       context.Context // cancelled on Close, handed to handlers
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

// constructor for Session
func NewSession(id int64, conn net.Conn, opts SessionOptions, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	tag := uuid.NewString()
	return &Session{
		id:           id,
		tag:          tag,
		conn:         conn,
		connectedAt:  time.Now(),
		decoder:      NewDecoder(conn, opts.MaxMessageSize),
		encoder:      NewEncoder(conn),
		idleTimeout:  opts.IdleTimeout,
		writeTimeout: opts.WriteTimeout,
		limiter:      opts.Limiter,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("client_id", id, "session", tag),
	}
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) Tag() string { return s.tag }

func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Send writes msg to the client. It is safe for concurrent use.
func (s *Session) Send(msg *Message) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write(msg)
}

// write encodes msg; the caller holds writeMu.
func (s *Session) write(msg *Message) error {
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.encoder.Encode(msg); err != nil {
		return fmt.Errorf("send to client %d: %w", s.id, err)
	}
	return nil
}

// holdWriter takes the write lock before the session becomes visible to
// broadcasts, so any push that finds it in the registry is queued behind the
// WELCOME. welcome or releaseWriter gives the lock back.
func (s *Session) holdWriter() {
	s.writeMu.Lock()
	s.writerHeld = true
}

func (s *Session) releaseWriter() {
	if s.writerHeld {
		s.writerHeld = false
		s.writeMu.Unlock()
	}
}

// welcome tells the client its assigned id before any request is read.
func (s *Session) welcome() error {
	msg := NewSuccessMessage(TypeWelcome, fmt.Sprintf("connection established, client id: %d", s.id)).
		With("client_id", s.id).
		With("session", s.tag)

	if !s.writerHeld {
		s.holdWriter()
	}
	err := s.write(msg)
	if err == nil {
		// a concurrent Close wins over the greeting
		s.state.CompareAndSwap(int32(StateConnecting), int32(StateWelcomed))
	}
	s.releaseWriter()
	return err
}

// Listen runs the receive-dispatch-respond loop. Messages from one client are
// handled strictly one at a time, in arrival order. The loop ends when active
// reports false, the peer disconnects, the transport fails or the stream can no
// longer be framed.
func (s *Session) Listen(active func() bool, d *Dispatcher) {
	s.setState(StateServing)
	s.logger.Info("client_started_listening",
		"remote_addr", s.RemoteAddr(),
	)

	for active() {
		if s.idleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		msg, err := s.decoder.Decode()
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				s.logger.Warn("invalid_message_received",
					"error", perr.Error(),
				)
				d.metrics.protocolError()
				if err := s.Send(NewErrorMessage(TypeError, perr.Error())); err != nil {
					s.logger.Warn("client_write_failed", "error", err.Error())
					return
				}
				continue
			}
			s.logReadError(err)
			return
		}

		// check rate limit
		if s.limiter != nil && !s.limiter.Allow() { // returns true if a token is available then consumes it
			s.logger.Warn("rate_limit_exceeded",
				"message_type", msg.Type,
			)
			if err := s.Send(NewErrorMessage(msg.Type, "rate limit exceeded")); err != nil {
				s.logger.Warn("client_write_failed", "error", err.Error())
				return
			}
			continue
		}

		s.logger.Debug("message_received",
			"message_type", msg.Type,
		)
		resp := d.Dispatch(s.ctx, s, msg)
		if resp == nil {
			continue
		}
		if err := s.Send(resp); err != nil {
			s.logger.Warn("client_write_failed",
				"message_type", resp.Type,
				"error", err.Error(),
			)
			return
		}
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, io.EOF): // client disconnection or EOF signal
		s.logger.Info("client_disconnected")
	case errors.Is(err, ErrFrameTooLarge):
		s.logger.Warn("message_too_large",
			"max_size", s.decoder.maxSize,
		)
	case isTimeout(err):
		s.logger.Warn("client_read_timeout")
	case isClosedConnError(err):
		// expected during shutdown or when the session was closed under us
		s.logger.Debug("client_connection_closed")
	default:
		s.logger.Error("client_read_error",
			"error", err.Error(),
		)
	}
}

// Close releases the transport. It is idempotent and safe to call from the
// session's own teardown and from a forced shutdown at the same time.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.State() < StateClosing {
			s.setState(StateClosing)
		}
		s.cancel()

		// the reader holds no OS resources; flush the writer if nobody is mid-write
		if s.writeMu.TryLock() {
			if ferr := s.encoder.Flush(); ferr != nil && !isClosedConnError(ferr) {
				s.logger.Debug("flush_on_close_failed", "error", ferr.Error())
			}
			s.writeMu.Unlock()
		}

		if cerr := s.conn.Close(); cerr != nil && !isClosedConnError(cerr) {
			err = fmt.Errorf("close client %d: %w", s.id, cerr)
		}
		s.setState(StateClosed)
	})
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Check for connection closed errors which are expected during shutdown
// On Windows: "wsarecv: An established connection was aborted by the software in your host machine."
//
//	"wsarecv: An existing connection was forcibly closed by the remote host."
//
// On Linux: "use of closed network connection"
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	text := err.Error()
	return strings.Contains(text, "closed network connection") ||
		strings.Contains(text, "connection was aborted") ||
		strings.Contains(text, "forcibly closed") ||
		strings.Contains(text, "connection reset by peer") ||
		strings.Contains(text, "broken pipe")
}
