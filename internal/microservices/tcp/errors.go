package tcp

import "errors"

var (
	ErrServerRunning  = errors.New("server is already running")
	ErrServerStopped  = errors.New("server is not running")
	ErrClientNotFound = errors.New("client not found")
	ErrInvalidPort    = errors.New("port must be between 0 and 65535")
	ErrSessionClosed  = errors.New("session is closed")
	ErrFrameTooLarge  = errors.New("message exceeds maximum size")
)
