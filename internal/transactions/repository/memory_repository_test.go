package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Giozar/distributed-systems/internal/transactions/models"
	"github.com/Giozar/distributed-systems/internal/transactions/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransaction(title string, date time.Time) *models.Transaction {
	return &models.Transaction{
		Type:   models.TypeExpense,
		Amount: 12.5,
		Title:  title,
		Date:   date,
		Tags:   []string{"food"},
	}
}

func TestMemoryRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	tx := sampleTransaction("coffee", time.Now())
	require.NoError(t, repo.Create(ctx, tx))
	assert.Equal(t, int64(1), tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "coffee", got.Title)

	got.Title = "espresso"
	require.NoError(t, repo.Update(ctx, got))
	updated, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "espresso", updated.Title)
	assert.Equal(t, tx.CreatedAt, updated.CreatedAt)

	require.NoError(t, repo.Delete(ctx, tx.ID))
	_, err = repo.GetByID(ctx, tx.ID)
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
}

func TestMemoryRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	_, err := repo.GetByID(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &models.Transaction{ID: 99}), repository.ErrTransactionNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, 99), repository.ErrTransactionNotFound)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	tx := sampleTransaction("rent", time.Now())
	require.NoError(t, repo.Create(ctx, tx))

	tx.Tags[0] = "mutated"
	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"food"}, got.Tags)

	got.Tags[0] = "mutated again"
	again, _ := repo.GetByID(ctx, tx.ID)
	assert.Equal(t, []string{"food"}, again.Tags)
}

func TestMemoryRepository_ListOrdersByDateDesc(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleTransaction("old", base.Add(-48*time.Hour))))
	require.NoError(t, repo.Create(ctx, sampleTransaction("new", base)))
	require.NoError(t, repo.Create(ctx, sampleTransaction("same-day", base)))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "same-day", list[0].Title)
	assert.Equal(t, "new", list[1].Title)
	assert.Equal(t, "old", list[2].Title)
}

func TestMemoryRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Create(ctx, sampleTransaction("tx", time.Now())))
		}()
	}
	wg.Wait()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 40)

	seen := make(map[int64]bool)
	for _, tx := range list {
		assert.False(t, seen[tx.ID], "duplicate id %d", tx.ID)
		seen[tx.ID] = true
	}
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := repository.NewMemoryRepository()

	assert.ErrorIs(t, repo.Create(ctx, sampleTransaction("x", time.Now())), context.Canceled)
	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
