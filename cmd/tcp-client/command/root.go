package command

// root.go defines the root command and the flags shared by every subcommand.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Giozar/distributed-systems/internal/microservices/tcp"

	"github.com/spf13/cobra"
)

type options struct {
	addr    string        // TCP server address
	timeout time.Duration // dial and per-request timeout
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "txclient",
		Short: "txclient - command line client for the transaction TCP server",
		Long: `txclient talks to the transaction server over its newline-delimited JSON protocol.
It can:
- check that the server answers (ping)
- send any message type (send)
- print server pushes as they arrive (listen)
- manage transactions (transactions)

Use "txclient command --help" to see the flags of a command.`,
		SilenceUsage: true,
	}

	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", envOr("TCP_ADDR", "localhost:8081"), "TCP server address")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "dial and request timeout")

	rootCmd.AddCommand(
		newPingCmd(opts),
		newSendCmd(opts),
		newListenCmd(opts),
		newTransactionsCmd(opts),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure. Called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		stop()
		os.Exit(1)
	}
}

// connect dials the server and applies the request timeout to the connection.
func (o *options) connect(ctx context.Context) (*tcp.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	c, err := tcp.Dial(dialCtx, o.addr)
	if err != nil {
		return nil, fmt.Errorf("cannot reach %s: %w", o.addr, err)
	}
	return c, nil
}

// request performs one request/response exchange and turns ERROR responses into errors.
// Pushes received while waiting are skipped.
func (o *options) request(ctx context.Context, msg *tcp.Message) (*tcp.Message, error) {
	c, err := o.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.SetDeadline(time.Now().Add(o.timeout)); err != nil {
		return nil, err
	}
	if err := c.Send(msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", msg.Type, err)
	}
	for {
		resp, err := c.Receive()
		if err != nil {
			return nil, fmt.Errorf("waiting for %s response: %w", msg.Type, err)
		}
		if resp.Type != msg.Type {
			continue
		}
		if resp.IsError() {
			return resp, fmt.Errorf("✗ %s failed: %s", msg.Type, resp.Content)
		}
		return resp, nil
	}
}

func printMessage(w io.Writer, msg *tcp.Message) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
