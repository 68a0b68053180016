package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrigger/internal/domain"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)}
}

func TestEvaluationLock_SingleWinner(t *testing.T) {
	table := NewLockTable(nil)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := NewEvaluationLock(table, "evaluation").TryAcquire(ctx, time.Minute)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestEvaluationLock_SharedHandleSingleWinner(t *testing.T) {
	lock := NewEvaluationLock(NewLockTable(nil), "evaluation")
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := lock.TryAcquire(ctx, time.Minute)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())

	require.NoError(t, lock.Release(ctx))
	ok, err := lock.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluationLock_LeaseExpires(t *testing.T) {
	clock := newClock()
	table := NewLockTable(clock.Now)
	a := NewEvaluationLock(table, "evaluation")
	b := NewEvaluationLock(table, "evaluation")
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = b.TryAcquire(ctx, 30*time.Second)
	assert.False(t, ok)

	clock.Advance(30 * time.Second)
	ok, _ = b.TryAcquire(ctx, 30*time.Second)
	assert.True(t, ok, "an expired lease can be taken over")

	// a's stale release must not drop b's lease
	require.NoError(t, a.Release(ctx))
	ok, _ = a.TryAcquire(ctx, 30*time.Second)
	assert.False(t, ok)
}

func TestEvaluationLock_ReleaseAndReacquire(t *testing.T) {
	table := NewLockTable(nil)
	a := NewEvaluationLock(table, "evaluation")
	b := NewEvaluationLock(table, "evaluation")
	other := NewEvaluationLock(table, "other")
	ctx := context.Background()

	ok, _ := a.TryAcquire(ctx, time.Minute)
	require.True(t, ok)
	ok, _ = a.TryAcquire(ctx, time.Minute)
	assert.False(t, ok, "a live lease is not re-granted to its holder")
	ok, _ = other.TryAcquire(ctx, time.Minute)
	assert.True(t, ok, "names are independent")

	require.NoError(t, a.Release(ctx))
	ok, _ = b.TryAcquire(ctx, time.Minute)
	assert.True(t, ok)
}

func TestPriceBaselineStore_TTL(t *testing.T) {
	clock := newClock()
	store := NewPriceBaselineStore(clock.Now)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "aapl", 187.5, time.Hour))
	price, found, err := store.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 187.5, price)

	clock.Advance(time.Hour)
	_, found, err = store.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPriceHistoryRepository_KeepsFirstValuePerDay(t *testing.T) {
	repo := NewPriceHistoryRepository()
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertBulk(ctx, "spy", []domain.PricePoint{
		{Date: day.AddDate(0, 0, 1), Price: 101},
		{Date: day, Price: 100},
	}))
	require.NoError(t, repo.InsertBulk(ctx, "SPY", []domain.PricePoint{{Date: day, Price: 999}}))

	points, err := repo.GetRange(ctx, "SPY", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []domain.PricePoint{
		{Date: day, Price: 100},
		{Date: day.AddDate(0, 0, 1), Price: 101},
	}, points)
}
