package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Giozar/distributed-systems/internal/transactions/models"
)

// MemoryRepository keeps transactions in process memory.
// Used when no DATABASE_URL is configured and in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[int64]*models.Transaction
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[int64]*models.Transaction)}
}

func (r *MemoryRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	tx.ID = r.nextID
	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.items[tx.ID] = tx.Clone()
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.items[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, tx *models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[tx.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = time.Now()
	r.items[tx.ID] = tx.Clone()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrTransactionNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	list := make([]models.Transaction, 0, len(r.items))
	for _, tx := range r.items {
		list = append(list, *tx.Clone())
	}
	r.mu.RUnlock()

	// same ordering as the SQL repository: date desc, then id desc
	slices.SortFunc(list, func(a, b models.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return list, nil
}
