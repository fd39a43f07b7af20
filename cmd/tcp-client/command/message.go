package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Giozar/distributed-systems/internal/microservices/tcp"

	"github.com/spf13/cobra"
)

func newPingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			resp, err := opts.request(cmd.Context(), tcp.NewMessage("PING"))
			if err != nil {
				return err
			}
			id, _ := resp.Int64("client_id")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s from %s (client %d) in %s\n",
				resp.Content, opts.addr, id, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newSendCmd(opts *options) *cobra.Command {
	var (
		msgType string
		content string
		payload string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message and print the response",
		Long: `Send a message of any type. The payload flag takes a JSON object, for example:
  txclient send --type GET_TRANSACTION --payload '{"id": 3}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := buildMessage(msgType, content, payload)
			if err != nil {
				return err
			}
			resp, err := opts.request(cmd.Context(), msg)
			if resp != nil {
				if perr := printMessage(cmd.OutOrStdout(), resp); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&msgType, "type", "", "message type (required)")
	cmd.Flags().StringVar(&content, "content", "", "message content")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object payload")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// buildMessage validates the flags with the same rules the server decoder applies.
func buildMessage(msgType, content, payload string) (*tcp.Message, error) {
	raw := map[string]any{"type": msgType}
	if content != "" {
		raw["content"] = content
	}
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return nil, fmt.Errorf("--payload is not valid JSON")
		}
		raw["payload"] = json.RawMessage(payload)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return tcp.ParseMessage(data)
}

func newListenCmd(opts *options) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print messages pushed by the server",
		Long:  `Stay connected and print every message the server pushes, such as TRANSACTION_CHANGED notifications.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "listening on %s as client %d\n", opts.addr, c.ID())
			return listen(ctx, c, out, count)
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many messages, 0 means forever")
	return cmd
}

func listen(ctx context.Context, c *tcp.Client, out io.Writer, count int) error {
	// unblock Receive when the command is interrupted
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for received := 0; count == 0 || received < count; received++ {
		msg, err := c.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		if err := printMessage(out, msg); err != nil {
			return err
		}
	}
	return nil
}
