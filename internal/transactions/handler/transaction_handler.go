package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Giozar/distributed-systems/internal/microservices/tcp"
	"github.com/Giozar/distributed-systems/internal/transactions/service"
)

// message types served by TransactionHandler
const (
	TypeCreateTransaction  = "CREATE_TRANSACTION"
	TypeGetTransaction     = "GET_TRANSACTION"
	TypeUpdateTransaction  = "UPDATE_TRANSACTION"
	TypeDeleteTransaction  = "DELETE_TRANSACTION"
	TypeGetAllTransactions = "GET_ALL_TRANSACTIONS"

	// pushed to the other clients after a successful write
	TypeTransactionChanged = "TRANSACTION_CHANGED"
)

type TransactionHandler struct {
	svc    service.TransactionService
	srv    *tcp.Server
	logger *slog.Logger
}

func NewTransactionHandler(svc service.TransactionService, srv *tcp.Server, logger *slog.Logger) *TransactionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionHandler{svc: svc, srv: srv, logger: logger}
}

// Register wires the transaction handlers into srv.
func Register(srv *tcp.Server, svc service.TransactionService, logger *slog.Logger) *TransactionHandler {
	h := NewTransactionHandler(svc, srv, logger)
	h.RegisterHandlers()
	return h
}

func (h *TransactionHandler) RegisterHandlers() {
	h.srv.
		RegisterHandler(TypeCreateTransaction, h.Create).
		RegisterHandler(TypeGetTransaction, h.Get).
		RegisterHandler(TypeUpdateTransaction, h.Update).
		RegisterHandler(TypeDeleteTransaction, h.Delete).
		RegisterHandler(TypeGetAllTransactions, h.List)
}

func (h *TransactionHandler) Create(ctx context.Context, s *tcp.Session, msg *tcp.Message) (*tcp.Message, error) {
	data, ok := msg.Map("transaction")
	if !ok {
		return tcp.NewErrorMessage(msg.Type, "transaction data not provided"), nil
	}
	tx, err := fromPayload(data)
	if err != nil {
		return failure(msg.Type, err)
	}
	created, err := h.svc.Create(ctx, tx)
	if err != nil {
		return failure(msg.Type, err)
	}

	h.logger.Info("transaction_created",
		"client_id", s.ID(),
		"transaction_id", created.ID,
	)
	h.notify(s, "created", created.ID)
	return tcp.NewSuccessMessage(msg.Type, "transaction created").
		With("transaction", toPayload(created)), nil
}

func (h *TransactionHandler) Get(ctx context.Context, s *tcp.Session, msg *tcp.Message) (*tcp.Message, error) {
	id, ok := msg.Int64("id")
	if !ok {
		return tcp.NewErrorMessage(msg.Type, "transaction id not provided"), nil
	}
	tx, err := h.svc.Get(ctx, id)
	if err != nil {
		return failure(msg.Type, err)
	}
	return tcp.NewSuccessMessage(msg.Type, "transaction found").
		With("transaction", toPayload(tx)), nil
}

// Update takes the id from the top-level "id" key, or from the transaction itself.
func (h *TransactionHandler) Update(ctx context.Context, s *tcp.Session, msg *tcp.Message) (*tcp.Message, error) {
	data, ok := msg.Map("transaction")
	if !ok {
		return tcp.NewErrorMessage(msg.Type, "transaction data not provided"), nil
	}
	tx, err := fromPayload(data)
	if err != nil {
		return failure(msg.Type, err)
	}
	id, ok := msg.Int64("id")
	if !ok {
		id = tx.ID
	}
	if id == 0 {
		return tcp.NewErrorMessage(msg.Type, "transaction id not provided"), nil
	}

	updated, err := h.svc.Update(ctx, id, tx)
	if err != nil {
		return failure(msg.Type, err)
	}

	h.logger.Info("transaction_updated",
		"client_id", s.ID(),
		"transaction_id", id,
	)
	h.notify(s, "updated", id)
	return tcp.NewSuccessMessage(msg.Type, "transaction updated").
		With("transaction", toPayload(updated)), nil
}

func (h *TransactionHandler) Delete(ctx context.Context, s *tcp.Session, msg *tcp.Message) (*tcp.Message, error) {
	id, ok := msg.Int64("id")
	if !ok {
		return tcp.NewErrorMessage(msg.Type, "transaction id not provided"), nil
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		return failure(msg.Type, err)
	}

	h.logger.Info("transaction_deleted",
		"client_id", s.ID(),
		"transaction_id", id,
	)
	h.notify(s, "deleted", id)
	return tcp.NewSuccessMessage(msg.Type, "transaction deleted").
		With("id", id), nil
}

func (h *TransactionHandler) List(ctx context.Context, s *tcp.Session, msg *tcp.Message) (*tcp.Message, error) {
	list, err := h.svc.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(list))
	for i := range list {
		items = append(items, toPayload(&list[i]))
	}
	return tcp.NewSuccessMessage(msg.Type, fmt.Sprintf("%d transactions", len(items))).
		With("transactions", items).
		With("count", int64(len(items))), nil
}

// notify tells every other connected client that a transaction changed.
func (h *TransactionHandler) notify(origin *tcp.Session, action string, id int64) {
	msg := tcp.NewSuccessMessage(TypeTransactionChanged, "transaction "+action).
		With("action", action).
		With("id", id).
		With("origin_client_id", origin.ID())
	h.srv.BroadcastExcept(origin.ID(), msg)
}

// failure turns client-caused errors into ERROR responses and lets everything
// else reach the dispatcher as a handler error.
func failure(msgType string, err error) (*tcp.Message, error) {
	if errors.Is(err, service.ErrInvalidTransaction) || errors.Is(err, service.ErrTransactionNotFound) {
		return tcp.NewErrorMessage(msgType, err.Error()), nil
	}
	return nil, err
}
