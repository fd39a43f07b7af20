package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a minimal client for the message protocol, used by the CLI and tests.
type Client struct {
	conn    net.Conn
	encoder *Encoder
	decoder *Decoder
	writeMu sync.Mutex
	id      int64
	welcome *Message
}

// Dial connects to addr and waits for the WELCOME message.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	c := &Client{
		conn:    conn,
		encoder: NewEncoder(conn),
		decoder: NewDecoder(conn, 0),
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	}
	msg, err := c.decoder.Decode()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("waiting for welcome: %w", err)
	}
	if msg.Type != TypeWelcome {
		conn.Close()
		return nil, fmt.Errorf("expected %s, got %s", TypeWelcome, msg.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.welcome = msg
	if id, ok := msg.Int64("client_id"); ok {
		c.id = id
	}
	return c, nil
}

// ID returns the id the server assigned to this connection.
func (c *Client) ID() int64 { return c.id }

// Welcome returns the greeting received on connect.
func (c *Client) Welcome() *Message { return c.welcome }

func (c *Client) Send(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.encoder.Encode(msg)
}

// Receive blocks for the next message: a response or a server push.
func (c *Client) Receive() (*Message, error) {
	return c.decoder.Decode()
}

// Request sends msg and returns the next message read from the server.
// With concurrent pushes the returned message may be a push; callers that
// mix both should use Send and Receive.
func (c *Client) Request(msg *Message) (*Message, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}
	return c.Receive()
}

func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
