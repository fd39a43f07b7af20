package command

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Giozar/distributed-systems/internal/microservices/tcp"
	"github.com/Giozar/distributed-systems/internal/transactions/handler"

	"github.com/spf13/cobra"
)

func newTransactionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "Manage transactions stored by the server",
	}
	cmd.AddCommand(
		newTransactionListCmd(opts),
		newTransactionGetCmd(opts),
		newTransactionCreateCmd(opts),
		newTransactionDeleteCmd(opts),
	)
	return cmd
}

func newTransactionListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every transaction, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.request(cmd.Context(), tcp.NewMessage(handler.TypeGetAllTransactions))
			if err != nil {
				return err
			}
			items, _ := resp.Slice("transactions")
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No transactions.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tTITLE")
			for _, item := range items {
				tx, ok := item.(map[string]any)
				if !ok {
					continue
				}
				id, _ := tcp.ToInt64(tx["id"])
				amount, _ := tcp.ToFloat64(tx["amount"])
				fmt.Fprintf(w, "%d\t%s\t%v\t%.2f\t%v\n", id, shortDate(tx["date"]), tx["type"], amount, tx["title"])
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d transaction(s)\n", len(items))
			return nil
		},
	}
}

func newTransactionGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			resp, err := opts.request(cmd.Context(), tcp.NewMessage(handler.TypeGetTransaction).With("id", id))
			if err != nil {
				return err
			}
			return printMessage(cmd.OutOrStdout(), resp)
		},
	}
}

func newTransactionCreateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a new transaction",
		Long: `Record a new transaction, for example:
  txclient transactions create --type EXPENSE --amount 12.5 --title Lunch --category food --tags work,team`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := transactionFromFlags(cmd)
			if err != nil {
				return err
			}
			resp, err := opts.request(cmd.Context(), tcp.NewMessage(handler.TypeCreateTransaction).With("transaction", tx))
			if err != nil {
				return err
			}
			created, _ := resp.Map("transaction")
			id, _ := tcp.ToInt64(created["id"])
			fmt.Fprintf(cmd.OutOrStdout(), "✓ transaction %d created\n", id)
			return nil
		},
	}
	cmd.Flags().String("type", "", "INCOME or EXPENSE (required)")
	cmd.Flags().Float64("amount", 0, "amount, zero or positive (required)")
	cmd.Flags().String("title", "", "short title (required)")
	cmd.Flags().String("payment", "", "CASH, DEBIT_CARD, CREDIT_CARD, BANK_TRANSFER or OTHER")
	cmd.Flags().String("category", "", "category")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().String("date", "", "RFC 3339 timestamp or YYYY-MM-DD, defaults to now")
	cmd.Flags().StringSlice("tags", nil, "comma separated tags")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTransactionDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := opts.request(cmd.Context(), tcp.NewMessage(handler.TypeDeleteTransaction).With("id", id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ transaction %d deleted\n", id)
			return nil
		},
	}
}

// transactionFromFlags builds the payload map the server expects. Validation is left to the server.
func transactionFromFlags(cmd *cobra.Command) (map[string]any, error) {
	flags := cmd.Flags()
	txType, _ := flags.GetString("type")
	amount, _ := flags.GetFloat64("amount")
	title, _ := flags.GetString("title")

	tx := map[string]any{
		"type":   strings.ToUpper(txType),
		"amount": amount,
		"title":  title,
	}
	for flag, key := range map[string]string{"payment": "payment_method", "category": "category", "description": "description"} {
		if v, _ := flags.GetString(flag); v != "" {
			tx[key] = v
		}
	}
	if v, _ := flags.GetString("date"); v != "" {
		date, err := parseDate(v)
		if err != nil {
			return nil, err
		}
		tx["date"] = date.Format(time.RFC3339)
	}
	if tags, _ := flags.GetStringSlice("tags"); len(tags) > 0 {
		list := make([]any, len(tags))
		for i, tag := range tags {
			list[i] = tag
		}
		tx["tags"] = list
	}
	return tx, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: use RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transaction id %q", arg)
	}
	return id, nil
}

func shortDate(v any) string {
	s, _ := v.(string)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Format(time.DateOnly)
	}
	return s
}
