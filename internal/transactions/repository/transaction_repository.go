package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Giozar/distributed-systems/internal/transactions/models"

	"gorm.io/gorm"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]models.Transaction, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *transactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// Update overwrites every mutable column of the row identified by tx.ID.
func (r *transactionRepository) Update(ctx context.Context, tx *models.Transaction) error {
	tx.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", tx.ID).
		Select("type", "payment_method", "amount", "title", "category",
			"description", "comments", "date", "tags", "updated_at").
		Updates(tx)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *transactionRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&models.Transaction{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// List returns every transaction, most recent first.
func (r *transactionRepository) List(ctx context.Context) ([]models.Transaction, error) {
	var list []models.Transaction
	if err := r.db.WithContext(ctx).Order("date DESC, id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
