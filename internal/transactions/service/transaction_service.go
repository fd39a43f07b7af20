package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Giozar/distributed-systems/internal/transactions/models"
	"github.com/Giozar/distributed-systems/internal/transactions/repository"
)

const maxTitleLength = 200

var (
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrTransactionNotFound = repository.ErrTransactionNotFound
)

type TransactionService interface {
	Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	Get(ctx context.Context, id int64) (*models.Transaction, error)
	Update(ctx context.Context, id int64, tx *models.Transaction) (*models.Transaction, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]models.Transaction, error)
}

type transactionService struct {
	repo repository.TransactionRepository
}

func NewTransactionService(repo repository.TransactionRepository) TransactionService {
	return &transactionService{repo: repo}
}

func (s *transactionService) Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	normalize(tx)
	if err := validate(tx); err != nil {
		return nil, err
	}
	tx.ID = 0
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

func (s *transactionService) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidTransaction)
	}
	return s.repo.GetByID(ctx, id)
}

// Update replaces the transaction stored under id with tx.
func (s *transactionService) Update(ctx context.Context, id int64, tx *models.Transaction) (*models.Transaction, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidTransaction)
	}
	normalize(tx)
	if err := validate(tx); err != nil {
		return nil, err
	}
	tx.ID = id
	if err := s.repo.Update(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update transaction %d: %w", id, err)
	}
	return tx, nil
}

func (s *transactionService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidTransaction)
	}
	return s.repo.Delete(ctx, id)
}

func (s *transactionService) List(ctx context.Context) ([]models.Transaction, error) {
	return s.repo.List(ctx)
}

func normalize(tx *models.Transaction) {
	tx.Type = strings.ToUpper(strings.TrimSpace(tx.Type))
	tx.PaymentMethod = strings.ToUpper(strings.TrimSpace(tx.PaymentMethod))
	tx.Title = strings.TrimSpace(tx.Title)
	if tx.Date.IsZero() {
		tx.Date = time.Now()
	}
}

func validate(tx *models.Transaction) error {
	switch tx.Type {
	case models.TypeIncome, models.TypeExpense:
	default:
		return fmt.Errorf("%w: type must be %s or %s", ErrInvalidTransaction, models.TypeIncome, models.TypeExpense)
	}

	switch tx.PaymentMethod {
	case "", models.PaymentCash, models.PaymentDebitCard, models.PaymentCreditCard,
		models.PaymentBankTransfer, models.PaymentOther:
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidTransaction, tx.PaymentMethod)
	}

	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount < 0 {
		return fmt.Errorf("%w: amount must be a non-negative number", ErrInvalidTransaction)
	}
	if tx.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTransaction)
	}
	if len(tx.Title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidTransaction, maxTitleLength)
	}
	return nil
}
