package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Giozar/distributed-systems/internal/transactions/models"

	"github.com/redis/go-redis/v9"
)

const DefaultCacheTTL = time.Hour

// CachedRepository is a read-through Redis cache in front of another repository.
// Redis: fast lookups by id
// next: source of truth, every write goes there first
// Cache failures are logged and never fail the request.
type CachedRepository struct {
	next   TransactionRepository
	client *redis.Client // nil disables caching
	ttl    time.Duration
	logger *slog.Logger
}

// constructor for CachedRepository
func NewCachedRepository(next TransactionRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("transaction:%d", id)
}

func (r *CachedRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := r.next.Create(ctx, tx); err != nil {
		return err
	}
	r.store(ctx, tx)
	return nil
}

func (r *CachedRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	if tx, ok := r.load(ctx, id); ok {
		return tx, nil
	}
	tx, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, tx)
	return tx, nil
}

func (r *CachedRepository) Update(ctx context.Context, tx *models.Transaction) error {
	err := r.next.Update(ctx, tx)
	// evict even on failure, a stale entry must not outlive the row
	r.evict(ctx, tx.ID)
	return err
}

func (r *CachedRepository) Delete(ctx context.Context, id int64) error {
	err := r.next.Delete(ctx, id)
	r.evict(ctx, id)
	return err
}

// List is not cached, it always reads the underlying repository.
func (r *CachedRepository) List(ctx context.Context) ([]models.Transaction, error) {
	return r.next.List(ctx)
}

func (r *CachedRepository) load(ctx context.Context, id int64) (*models.Transaction, bool) {
	if r.client == nil {
		return nil, false
	}
	data, err := r.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("transaction_cache_read_failed",
				"transaction_id", id,
				"error", err.Error(),
			)
		}
		return nil, false
	}
	var tx models.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		r.logger.Warn("transaction_cache_corrupt",
			"transaction_id", id,
			"error", err.Error(),
		)
		r.evict(ctx, id)
		return nil, false
	}
	return &tx, true
}

func (r *CachedRepository) store(ctx context.Context, tx *models.Transaction) {
	if r.client == nil {
		return
	}
	data, err := json.Marshal(tx)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, cacheKey(tx.ID), data, r.ttl).Err(); err != nil {
		r.logger.Warn("transaction_cache_write_failed",
			"transaction_id", tx.ID,
			"error", err.Error(),
		)
	}
}

func (r *CachedRepository) evict(ctx context.Context, id int64) {
	if r.client == nil {
		return
	}
	if err := r.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		r.logger.Warn("transaction_cache_evict_failed",
			"transaction_id", id,
			"error", err.Error(),
		)
	}
}
